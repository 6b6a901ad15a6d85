package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrganizer is a mock implementation of CorpusOrganizerInterface
type MockOrganizer struct {
	mock.Mock
}

func (m *MockOrganizer) Organize(ctx context.Context, orgID string, documentIDs []string, explicitSubset bool) (*domain.OrganizedCorpus, []*domain.AttributionEntry, error) {
	args := m.Called(ctx, orgID, documentIDs, explicitSubset)
	var corpus *domain.OrganizedCorpus
	if args.Get(0) != nil {
		corpus = args.Get(0).(*domain.OrganizedCorpus)
	}
	var entries []*domain.AttributionEntry
	if args.Get(1) != nil {
		entries = args.Get(1).([]*domain.AttributionEntry)
	}
	return corpus, entries, args.Error(2)
}

// MockEvaluator is a mock implementation of ControlEvaluatorInterface
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, analysis *domain.Analysis, framework *domain.Framework, control *domain.Control, corpus *domain.OrganizedCorpus, attributions []*domain.AttributionEntry) (*domain.EvidenceMapping, []*domain.EvidenceItem, error) {
	args := m.Called(ctx, analysis, framework, control, corpus, attributions)
	var mapping *domain.EvidenceMapping
	if args.Get(0) != nil {
		mapping = args.Get(0).(*domain.EvidenceMapping)
	}
	var items []*domain.EvidenceItem
	if args.Get(1) != nil {
		items = args.Get(1).([]*domain.EvidenceItem)
	}
	return mapping, items, args.Error(2)
}

type orchestratorFixture struct {
	analyses   *MockAnalysisRepository
	frameworks *MockFrameworkRepository
	documents  *MockDocumentRepository
	evidence   *MockEvidenceRepository
	organizer  *MockOrganizer
	evaluator  *MockEvaluator
	registry   *progress.Registry
	svc        *AnalysisService
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		analyses:   new(MockAnalysisRepository),
		frameworks: new(MockFrameworkRepository),
		documents:  new(MockDocumentRepository),
		evidence:   new(MockEvidenceRepository),
		organizer:  new(MockOrganizer),
		evaluator:  new(MockEvaluator),
		registry:   progress.NewRegistry(),
	}
	f.svc = NewAnalysisService(AnalysisServiceDeps{
		Analyses:     f.analyses,
		Frameworks:   f.frameworks,
		Documents:    f.documents,
		Evidence:     f.evidence,
		Organizer:    f.organizer,
		Evaluator:    f.evaluator,
		Progress:     f.registry,
		Retryer:      passRetryer{},
		DefaultModel: "gpt-4o",
	})
	f.svc.uuidGen = &seqUUID{}
	// run the detached task inline so assertions see the finished job
	f.svc.spawn = func(fn func()) { fn() }
	return f
}

func orchestratorControls() []*domain.Control {
	return []*domain.Control{
		{ID: "ctrl-a", FrameworkID: "fw-1", Code: "CC1.1", Title: "Control A", Requirement: "req a"},
		{ID: "ctrl-b", FrameworkID: "fw-1", Code: "CC1.2", Title: "Control B", Requirement: "req b"},
		{ID: "ctrl-c", FrameworkID: "fw-1", Code: "CC1.3", Title: "Control C", Requirement: "req c"},
	}
}

func (f *orchestratorFixture) expectHappyPreconditions(controls []*domain.Control) {
	framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
	f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
	f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(controls, nil)
	f.documents.On("ListProcessedIDsByOrg", mock.Anything, "org-1").Return([]string{"doc-1"}, nil)
	f.documents.On("CountChunksByDocuments", mock.Anything, "org-1", []string{"doc-1"}).Return(12, nil)
	f.analyses.On("Create", mock.Anything, mock.AnythingOfType("*domain.Analysis")).Return(nil)
}

func mappingFor(control *domain.Control, status domain.EvidenceStatus, confidence int) *domain.EvidenceMapping {
	return &domain.EvidenceMapping{
		ID: "mapping-" + control.ID, AnalysisID: "irrelevant", ControlID: control.ID,
		Status: status, Confidence: confidence,
	}
}

func TestAnalysisService_Start(t *testing.T) {
	ctx := context.Background()
	req := StartAnalysisRequest{OrgID: "org-1", FrameworkID: "fw-1"}
	corpus := &domain.OrganizedCorpus{ID: "corpus-1", OrgID: "org-1", Content: "evidence"}

	t.Run("mixed verdicts complete with aggregated counts", func(t *testing.T) {
		f := newOrchestratorFixture()
		controls := orchestratorControls()
		f.expectHappyPreconditions(controls)
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-1"}, false).
			Return(corpus, []*domain.AttributionEntry{}, nil)

		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[0], corpus, mock.Anything).
			Return(mappingFor(controls[0], domain.EvidenceStatusCompliant, 90), []*domain.EvidenceItem{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[1], corpus, mock.Anything).
			Return(mappingFor(controls[1], domain.EvidenceStatusPartial, 50), []*domain.EvidenceItem{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[2], corpus, mock.Anything).
			Return(mappingFor(controls[2], domain.EvidenceStatusMissing, 0), []*domain.EvidenceItem{}, nil)

		f.analyses.On("MarkCompleted", mock.Anything, mock.AnythingOfType("*domain.Analysis")).Return(nil)

		analysis, err := f.svc.Start(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusCompleted, analysis.Status)
		assert.Equal(t, 3, analysis.TotalControls)
		assert.Equal(t, 1, analysis.CompliantCount)
		assert.Equal(t, 1, analysis.PartialCount)
		assert.Equal(t, 1, analysis.MissingCount)
		assert.Equal(t, analysis.TotalControls, analysis.CompliantCount+analysis.PartialCount+analysis.MissingCount)
		// round((90+50+0)/3)
		assert.Equal(t, 47, analysis.AverageConfidence)
		require.NotNil(t, analysis.CompletedAt)

		state, ok := f.registry.Latest(analysis.ID)
		require.True(t, ok)
		assert.Equal(t, domain.StageCompleted, state.Stage)
		assert.Equal(t, 100, state.Percent)
		assert.Equal(t, 3, state.ControlsDone)
		assert.Len(t, state.InterimResults, 3)
		assert.Equal(t, "CC1.1", state.InterimResults[0].ControlCode)
		f.analyses.AssertExpectations(t)
	})

	t.Run("one failing control degrades without aborting the batch", func(t *testing.T) {
		f := newOrchestratorFixture()
		controls := orchestratorControls()
		f.expectHappyPreconditions(controls)
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-1"}, false).
			Return(corpus, []*domain.AttributionEntry{}, nil)

		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[0], corpus, mock.Anything).
			Return(mappingFor(controls[0], domain.EvidenceStatusCompliant, 90), []*domain.EvidenceItem{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[1], corpus, mock.Anything).
			Return(nil, nil, errors.New("oracle timeout"))
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[2], corpus, mock.Anything).
			Return(mappingFor(controls[2], domain.EvidenceStatusCompliant, 80), []*domain.EvidenceItem{}, nil)

		f.evidence.On("CreateMapping", mock.Anything, mock.MatchedBy(func(m *domain.EvidenceMapping) bool {
			return m.ControlID == "ctrl-b" && m.Status == domain.EvidenceStatusMissing && m.Confidence == 0
		})).Return(nil)
		f.analyses.On("MarkCompleted", mock.Anything, mock.Anything).Return(nil)

		analysis, err := f.svc.Start(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, domain.AnalysisStatusCompleted, analysis.Status)
		assert.Equal(t, 2, analysis.CompliantCount)
		assert.Equal(t, 1, analysis.MissingCount)
		f.evidence.AssertExpectations(t)
	})

	t.Run("no processed documents fails before a row is created", func(t *testing.T) {
		f := newOrchestratorFixture()
		framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
		f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(orchestratorControls(), nil)
		f.documents.On("ListProcessedIDsByOrg", mock.Anything, "org-1").Return([]string{}, nil)

		_, err := f.svc.Start(ctx, req)

		assert.ErrorIs(t, err, domain.ErrNoDocuments)
		f.analyses.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("no evidence chunks fails before a row is created", func(t *testing.T) {
		f := newOrchestratorFixture()
		framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
		f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(orchestratorControls(), nil)
		f.documents.On("ListProcessedIDsByOrg", mock.Anything, "org-1").Return([]string{"doc-1"}, nil)
		f.documents.On("CountChunksByDocuments", mock.Anything, "org-1", []string{"doc-1"}).Return(0, nil)

		_, err := f.svc.Start(ctx, req)

		assert.ErrorIs(t, err, domain.ErrNoEvidenceAvailable)
		f.analyses.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown framework propagates", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(nil, domain.ErrFrameworkNotFound)

		_, err := f.svc.Start(ctx, req)

		assert.ErrorIs(t, err, domain.ErrFrameworkNotFound)
	})

	t.Run("control subset matching nothing fails", func(t *testing.T) {
		f := newOrchestratorFixture()
		framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
		f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(orchestratorControls(), nil)

		_, err := f.svc.Start(ctx, StartAnalysisRequest{
			OrgID: "org-1", FrameworkID: "fw-1", ControlIDs: []string{"not-a-control"},
		})

		assert.ErrorIs(t, err, domain.ErrNoMatchingControls)
	})

	t.Run("control subset filters the catalog", func(t *testing.T) {
		f := newOrchestratorFixture()
		controls := orchestratorControls()
		framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
		f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(controls, nil)
		f.documents.On("ListProcessedIDsByOrg", mock.Anything, "org-1").Return([]string{"doc-1"}, nil)
		f.documents.On("CountChunksByDocuments", mock.Anything, "org-1", []string{"doc-1"}).Return(5, nil)
		f.analyses.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-1"}, false).
			Return(corpus, []*domain.AttributionEntry{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, controls[1], corpus, mock.Anything).
			Return(mappingFor(controls[1], domain.EvidenceStatusCompliant, 70), []*domain.EvidenceItem{}, nil)
		f.analyses.On("MarkCompleted", mock.Anything, mock.Anything).Return(nil)

		analysis, err := f.svc.Start(ctx, StartAnalysisRequest{
			OrgID: "org-1", FrameworkID: "fw-1", ControlIDs: []string{"ctrl-b"},
		})

		require.NoError(t, err)
		assert.Equal(t, 1, analysis.TotalControls)
		f.evaluator.AssertNumberOfCalls(t, "Evaluate", 1)
	})

	t.Run("corpus failure marks the job failed", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.expectHappyPreconditions(orchestratorControls())
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-1"}, false).
			Return(nil, nil, errors.New("corpus build exploded"))
		f.analyses.On("MarkFailed", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(msg string) bool {
			return msg != ""
		})).Return(nil)

		analysis, err := f.svc.Start(ctx, req)

		require.NoError(t, err)
		f.analyses.AssertCalled(t, "MarkFailed", mock.Anything, analysis.ID, mock.Anything)

		state, ok := f.registry.Latest(analysis.ID)
		require.True(t, ok)
		assert.Equal(t, domain.StageFailed, state.Stage)
		assert.Equal(t, 100, state.Percent)
	})

	t.Run("terminal publish still happens when failure cannot be persisted", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.expectHappyPreconditions(orchestratorControls())
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-1"}, false).
			Return(nil, nil, errors.New("corpus build exploded"))
		f.analyses.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("database is down"))

		analysis, err := f.svc.Start(ctx, req)

		require.NoError(t, err)
		state, ok := f.registry.Latest(analysis.ID)
		require.True(t, ok)
		assert.Equal(t, domain.StageFailed, state.Stage)
		assert.Contains(t, state.Message, "corpus build exploded")
	})

	t.Run("explicit document subset skips corpus reuse", func(t *testing.T) {
		f := newOrchestratorFixture()
		controls := orchestratorControls()[:1]
		framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
		f.frameworks.On("GetByID", mock.Anything, "fw-1").Return(framework, nil)
		f.frameworks.On("ListControls", mock.Anything, "fw-1").Return(controls, nil)
		f.documents.On("CountChunksByDocuments", mock.Anything, "org-1", []string{"doc-9"}).Return(3, nil)
		f.analyses.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.organizer.On("Organize", mock.Anything, "org-1", []string{"doc-9"}, true).
			Return(corpus, []*domain.AttributionEntry{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, corpus, mock.Anything).
			Return(mappingFor(controls[0], domain.EvidenceStatusCompliant, 80), []*domain.EvidenceItem{}, nil)
		f.analyses.On("MarkCompleted", mock.Anything, mock.Anything).Return(nil)

		_, err := f.svc.Start(ctx, StartAnalysisRequest{
			OrgID: "org-1", FrameworkID: "fw-1", DocumentIDs: []string{"doc-9"},
		})

		require.NoError(t, err)
		f.organizer.AssertExpectations(t)
		f.documents.AssertNotCalled(t, "ListProcessedIDsByOrg", mock.Anything, mock.Anything)
	})

	t.Run("applies the default model", func(t *testing.T) {
		f := newOrchestratorFixture()
		controls := orchestratorControls()[:1]
		f.expectHappyPreconditions(controls)
		f.organizer.On("Organize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(corpus, []*domain.AttributionEntry{}, nil)
		f.evaluator.On("Evaluate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(mappingFor(controls[0], domain.EvidenceStatusCompliant, 80), []*domain.EvidenceItem{}, nil)
		f.analyses.On("MarkCompleted", mock.Anything, mock.Anything).Return(nil)

		analysis, err := f.svc.Start(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", analysis.Model)
	})

	t.Run("refuses to start without a configured oracle", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.svc.evaluator = nil

		_, err := f.svc.Start(ctx, req)

		assert.ErrorIs(t, err, domain.ErrOracleNotConfigured)
		f.analyses.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestAnalysisService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects cross-organization access", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.analyses.On("GetByID", mock.Anything, "analysis-1").
			Return(&domain.Analysis{ID: "analysis-1", OrgID: "org-2"}, nil)

		_, err := f.svc.Get(ctx, "org-1", "analysis-1")

		assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
	})
}

func TestAnalysisService_GetReport(t *testing.T) {
	ctx := context.Background()

	t.Run("groups items under their mapping", func(t *testing.T) {
		f := newOrchestratorFixture()
		f.analyses.On("GetByID", mock.Anything, "analysis-1").
			Return(&domain.Analysis{ID: "analysis-1", OrgID: "org-1", Status: domain.AnalysisStatusCompleted}, nil)
		f.evidence.On("ListMappingsByAnalysis", mock.Anything, "analysis-1").Return([]*domain.EvidenceMapping{
			{ID: "m-1", AnalysisID: "analysis-1", ControlID: "ctrl-a", Status: domain.EvidenceStatusCompliant},
			{ID: "m-2", AnalysisID: "analysis-1", ControlID: "ctrl-b", Status: domain.EvidenceStatusMissing},
		}, nil)
		f.evidence.On("ListItemsByAnalysis", mock.Anything, "analysis-1").Return([]*domain.EvidenceItem{
			{ID: "i-1", MappingID: "m-1", Text: "a"},
			{ID: "i-2", MappingID: "m-1", Text: "b"},
		}, nil)

		report, err := f.svc.GetReport(ctx, "org-1", "analysis-1")

		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Len(t, report.Results[0].Items, 2)
		assert.Empty(t, report.Results[1].Items)
	})
}
