package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/telemetry"
)

// Progress percentages for the fixed pipeline phases. Per-control progress is
// interpolated between evaluationStart and evaluationEnd.
const (
	organizingPercent = 5
	evaluationStart   = 10
	evaluationEnd     = 95
)

// ProgressPublisher is the in-process channel the orchestrator reports
// through. Subscription happens elsewhere; the orchestrator only writes.
type ProgressPublisher interface {
	Publish(analysisID string, update domain.ProgressUpdate)
	AppendInterim(analysisID string, result domain.InterimResult)
}

// CorpusOrganizerInterface builds the shared evidence corpus for an analysis
type CorpusOrganizerInterface interface {
	Organize(ctx context.Context, orgID string, documentIDs []string, explicitSubset bool) (*domain.OrganizedCorpus, []*domain.AttributionEntry, error)
}

// ControlEvaluatorInterface evaluates one control against the corpus
type ControlEvaluatorInterface interface {
	Evaluate(ctx context.Context, analysis *domain.Analysis, framework *domain.Framework, control *domain.Control, corpus *domain.OrganizedCorpus, attributions []*domain.AttributionEntry) (*domain.EvidenceMapping, []*domain.EvidenceItem, error)
}

// StartAnalysisRequest describes one analysis run. Empty ControlIDs means the
// framework's full catalog; empty DocumentIDs means every processed document
// in the organization.
type StartAnalysisRequest struct {
	OrgID       string
	FrameworkID string
	Model       string
	ControlIDs  []string
	DocumentIDs []string
}

// ControlResult pairs one control's verdict with its cited evidence
type ControlResult struct {
	Mapping *domain.EvidenceMapping
	Items   []*domain.EvidenceItem
}

// AnalysisReport is the full read model for one analysis
type AnalysisReport struct {
	Analysis *domain.Analysis
	Results  []*ControlResult
}

// AnalysisServiceDeps wires the orchestrator's collaborators
type AnalysisServiceDeps struct {
	Analyses     AnalysisRepositoryInterface
	Frameworks   FrameworkRepositoryInterface
	Documents    DocumentRepositoryInterface
	Evidence     EvidenceRepositoryInterface
	Organizer    CorpusOrganizerInterface
	Evaluator    ControlEvaluatorInterface
	Progress     ProgressPublisher
	Retryer      StoreRetryer
	DefaultModel string
}

// AnalysisService orchestrates analysis jobs through their state machine:
// pending -> processing -> completed | failed. Precondition failures are
// reported synchronously before any row exists; once the row is created, the
// job always reaches a terminal, inspectable state.
type AnalysisService struct {
	analyses     AnalysisRepositoryInterface
	frameworks   FrameworkRepositoryInterface
	documents    DocumentRepositoryInterface
	evidence     EvidenceRepositoryInterface
	organizer    CorpusOrganizerInterface
	evaluator    ControlEvaluatorInterface
	progress     ProgressPublisher
	retryer      StoreRetryer
	defaultModel string

	uuidGen UUIDGenerator
	now     func() time.Time
	// spawn runs the detached processing task; tests replace it to run inline
	spawn func(fn func())
}

// NewAnalysisService creates a new AnalysisService
func NewAnalysisService(deps AnalysisServiceDeps) *AnalysisService {
	return &AnalysisService{
		analyses:     deps.Analyses,
		frameworks:   deps.Frameworks,
		documents:    deps.Documents,
		evidence:     deps.Evidence,
		organizer:    deps.Organizer,
		evaluator:    deps.Evaluator,
		progress:     deps.Progress,
		retryer:      deps.Retryer,
		defaultModel: deps.DefaultModel,
		uuidGen:      &DefaultUUIDGenerator{},
		now:          time.Now,
		spawn:        func(fn func()) { go fn() },
	}
}

// Start validates the request, creates the analysis row and kicks off the
// detached processing task. Validation failures surface here, before any row
// is written; the returned analysis is already in status processing.
func (s *AnalysisService) Start(ctx context.Context, req StartAnalysisRequest) (*domain.Analysis, error) {
	ctx, span := telemetry.StartSpan(ctx, "analysis.start", telemetry.SpanAttributes{
		OrgID:       req.OrgID,
		FrameworkID: req.FrameworkID,
		Operation:   "start",
	})
	defer span.End()

	// Without a configured oracle every control would degrade to missing;
	// refuse the job up front instead.
	if s.evaluator == nil {
		return nil, domain.ErrOracleNotConfigured
	}

	framework, err := s.frameworks.GetByID(ctx, req.FrameworkID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	controls, err := s.resolveControls(ctx, framework.ID, req.ControlIDs)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	documentIDs, explicit, err := s.resolveDocuments(ctx, req)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	chunkCount, err := s.documents.CountChunksByDocuments(ctx, req.OrgID, documentIDs)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to count evidence chunks: %w", err)
	}
	if chunkCount == 0 {
		return nil, domain.ErrNoEvidenceAvailable
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	analysis := &domain.Analysis{
		ID:            s.uuidGen.NewString(),
		OrgID:         req.OrgID,
		FrameworkID:   framework.ID,
		Model:         model,
		Status:        domain.AnalysisStatusProcessing,
		TotalControls: len(controls),
		StartedAt:     s.now().UTC(),
	}

	err = s.retryer.Do(ctx, "analysis.create", func(ctx context.Context) error {
		return s.analyses.Create(ctx, analysis)
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	s.progress.Publish(analysis.ID, domain.ProgressUpdate{
		Stage:         domain.StagePtr(domain.StageQueued),
		Percent:       domain.IntPtr(0),
		Message:       domain.StringPtr("analysis queued"),
		ControlsTotal: domain.IntPtr(len(controls)),
	})

	s.spawn(func() {
		// The request context dies with the HTTP response; the job owns
		// its own lifetime from here.
		s.run(context.Background(), analysis, framework, controls, documentIDs, explicit)
	})

	return analysis, nil
}

func (s *AnalysisService) resolveControls(ctx context.Context, frameworkID string, controlIDs []string) ([]*domain.Control, error) {
	controls, err := s.frameworks.ListControls(ctx, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list controls: %w", err)
	}

	if len(controlIDs) > 0 {
		wanted := make(map[string]bool, len(controlIDs))
		for _, id := range controlIDs {
			wanted[id] = true
		}
		filtered := controls[:0]
		for _, c := range controls {
			if wanted[c.ID] {
				filtered = append(filtered, c)
			}
		}
		controls = filtered
	}

	if len(controls) == 0 {
		return nil, domain.ErrNoMatchingControls
	}
	return controls, nil
}

func (s *AnalysisService) resolveDocuments(ctx context.Context, req StartAnalysisRequest) ([]string, bool, error) {
	if len(req.DocumentIDs) > 0 {
		return req.DocumentIDs, true, nil
	}

	ids, err := s.documents.ListProcessedIDsByOrg(ctx, req.OrgID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list processed documents: %w", err)
	}
	if len(ids) == 0 {
		return nil, false, domain.ErrNoDocuments
	}
	return ids, false, nil
}

// run is the detached processing task. Every exit path ends in a terminal
// state: completed, failed, or at worst a terminal progress publish when even
// the failure cannot be persisted.
func (s *AnalysisService) run(ctx context.Context, analysis *domain.Analysis, framework *domain.Framework, controls []*domain.Control, documentIDs []string, explicitSubset bool) {
	ctx, span := telemetry.StartSpan(ctx, "analysis.run", telemetry.SpanAttributes{
		OrgID:       analysis.OrgID,
		AnalysisID:  analysis.ID,
		FrameworkID: framework.ID,
		Operation:   "run",
	})
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("analysis panicked: %v", r)
			span.SetError(err)
			s.fail(ctx, analysis.ID, err)
		}
	}()

	s.progress.Publish(analysis.ID, domain.ProgressUpdate{
		Stage:   domain.StagePtr(domain.StageOrganizing),
		Percent: domain.IntPtr(organizingPercent),
		Message: domain.StringPtr("organizing evidence corpus"),
	})

	corpus, attributions, err := s.organizer.Organize(ctx, analysis.OrgID, documentIDs, explicitSubset)
	if err != nil {
		span.SetError(err)
		s.fail(ctx, analysis.ID, fmt.Errorf("corpus organization failed: %w", err))
		return
	}

	s.progress.Publish(analysis.ID, domain.ProgressUpdate{
		Stage:   domain.StagePtr(domain.StageEvaluating),
		Percent: domain.IntPtr(evaluationStart),
		Message: domain.StringPtr(fmt.Sprintf("evaluating %d controls", len(controls))),
	})

	var compliant, partial, missing, totalConfidence int
	for i, control := range controls {
		mapping := s.evaluateControl(ctx, analysis, framework, control, corpus, attributions)

		switch mapping.Status {
		case domain.EvidenceStatusCompliant:
			compliant++
		case domain.EvidenceStatusPartial:
			partial++
		default:
			missing++
		}
		totalConfidence += mapping.Confidence

		s.progress.AppendInterim(analysis.ID, domain.InterimResult{
			ControlID:   control.ID,
			ControlCode: control.Code,
			Title:       control.Title,
			Status:      mapping.Status,
			Confidence:  mapping.Confidence,
		})
		done := i + 1
		percent := evaluationStart + done*(evaluationEnd-evaluationStart)/len(controls)
		s.progress.Publish(analysis.ID, domain.ProgressUpdate{
			Percent:        domain.IntPtr(percent),
			Message:        domain.StringPtr(fmt.Sprintf("evaluated control %s", control.Code)),
			ControlsDone:   domain.IntPtr(done),
			CompliantCount: domain.IntPtr(compliant),
			PartialCount:   domain.IntPtr(partial),
			MissingCount:   domain.IntPtr(missing),
		})
	}

	s.progress.Publish(analysis.ID, domain.ProgressUpdate{
		Stage:   domain.StagePtr(domain.StageAggregating),
		Message: domain.StringPtr("aggregating results"),
	})

	now := s.now().UTC()
	analysis.CompliantCount = compliant
	analysis.PartialCount = partial
	analysis.MissingCount = missing
	analysis.AverageConfidence = int(math.Round(float64(totalConfidence) / float64(len(controls))))
	analysis.Status = domain.AnalysisStatusCompleted
	analysis.CompletedAt = &now
	analysis.DurationMS = now.Sub(analysis.StartedAt).Milliseconds()

	err = s.retryer.Do(ctx, "analysis.complete", func(ctx context.Context) error {
		return s.analyses.MarkCompleted(ctx, analysis)
	})
	if err != nil {
		span.SetError(err)
		s.fail(ctx, analysis.ID, fmt.Errorf("failed to persist completion: %w", err))
		return
	}

	s.progress.Publish(analysis.ID, domain.ProgressUpdate{
		Stage:   domain.StagePtr(domain.StageCompleted),
		Percent: domain.IntPtr(100),
		Message: domain.StringPtr("analysis completed"),
	})
}

// evaluateControl never fails: an evaluator error degrades the control to a
// missing/0 mapping so a single control cannot abort the batch.
func (s *AnalysisService) evaluateControl(ctx context.Context, analysis *domain.Analysis, framework *domain.Framework, control *domain.Control, corpus *domain.OrganizedCorpus, attributions []*domain.AttributionEntry) *domain.EvidenceMapping {
	mapping, _, err := s.evaluator.Evaluate(ctx, analysis, framework, control, corpus, attributions)
	if err == nil {
		return mapping
	}

	log.Printf("analysis %s: control %s degraded: %v", analysis.ID, control.Code, err)
	telemetry.CaptureError(ctx, err)

	degraded := &domain.EvidenceMapping{
		ID:         s.uuidGen.NewString(),
		AnalysisID: analysis.ID,
		ControlID:  control.ID,
		Status:     domain.EvidenceStatusMissing,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("evaluation failed: %v", err),
		CreatedAt:  s.now().UTC(),
	}

	persistErr := s.retryer.Do(ctx, "analysis.degraded_mapping", func(ctx context.Context) error {
		return s.evidence.CreateMapping(ctx, degraded)
	})
	if persistErr != nil {
		// The in-memory mapping still counts toward the aggregate; the
		// report for this control is lost but the job continues.
		log.Printf("analysis %s: could not persist degraded mapping for control %s: %v", analysis.ID, control.Code, persistErr)
		telemetry.CaptureError(ctx, persistErr)
	}

	return degraded
}

// fail marks the analysis failed. If even that cannot be persisted, the
// terminal progress publish below still runs, so no subscriber hangs forever.
func (s *AnalysisService) fail(ctx context.Context, analysisID string, cause error) {
	log.Printf("analysis %s failed: %v", analysisID, cause)
	telemetry.CaptureError(ctx, cause)

	err := s.retryer.Do(ctx, "analysis.mark_failed", func(ctx context.Context) error {
		return s.analyses.MarkFailed(ctx, analysisID, cause.Error())
	})
	if err != nil {
		log.Printf("analysis %s: could not persist failure: %v", analysisID, err)
		telemetry.CaptureError(ctx, err)
	}

	s.progress.Publish(analysisID, domain.ProgressUpdate{
		Stage:   domain.StagePtr(domain.StageFailed),
		Percent: domain.IntPtr(100),
		Message: domain.StringPtr(cause.Error()),
	})
}

// Get returns one analysis scoped to the organization
func (s *AnalysisService) Get(ctx context.Context, orgID, analysisID string) (*domain.Analysis, error) {
	analysis, err := s.analyses.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis.OrgID != orgID {
		return nil, domain.ErrAnalysisNotFound
	}
	return analysis, nil
}

// List returns the organization's analyses, newest first
func (s *AnalysisService) List(ctx context.Context, orgID string) ([]*domain.Analysis, error) {
	return s.analyses.ListByOrg(ctx, orgID)
}

// GetReport returns the analysis with every control verdict and its cited
// evidence. Results are ordered by control code.
func (s *AnalysisService) GetReport(ctx context.Context, orgID, analysisID string) (*AnalysisReport, error) {
	analysis, err := s.Get(ctx, orgID, analysisID)
	if err != nil {
		return nil, err
	}

	mappings, err := s.evidence.ListMappingsByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence mappings: %w", err)
	}

	items, err := s.evidence.ListItemsByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence items: %w", err)
	}

	byMapping := make(map[string][]*domain.EvidenceItem, len(mappings))
	for _, item := range items {
		byMapping[item.MappingID] = append(byMapping[item.MappingID], item)
	}

	report := &AnalysisReport{Analysis: analysis}
	for _, m := range mappings {
		report.Results = append(report.Results, &ControlResult{
			Mapping: m,
			Items:   byMapping[m.ID],
		})
	}
	return report, nil
}
