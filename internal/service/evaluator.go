package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/telemetry"
)

// OracleInterface is the language-model collaborator used to produce verdicts
// and embed search queries
type OracleInterface interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, model string, maxOutputTokens int) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EvaluationService evaluates a single control against the organized corpus.
// Oracle transport errors are returned to the caller, who converts them into
// a degraded mapping; an unparseable verdict is degraded here, because by
// then the oracle call itself succeeded.
type EvaluationService struct {
	oracle          OracleInterface
	txRunner        TxRunnerInterface
	retryer         StoreRetryer
	uuidGen         UUIDGenerator
	now             func() time.Time
	maxOutputTokens int
}

// NewEvaluationService creates a new EvaluationService
func NewEvaluationService(oracle OracleInterface, txRunner TxRunnerInterface, retryer StoreRetryer, maxOutputTokens int) *EvaluationService {
	return NewEvaluationServiceWithUUID(oracle, txRunner, retryer, maxOutputTokens, &DefaultUUIDGenerator{})
}

// NewEvaluationServiceWithUUID creates a new EvaluationService with a custom
// UUID generator (for testing)
func NewEvaluationServiceWithUUID(oracle OracleInterface, txRunner TxRunnerInterface, retryer StoreRetryer, maxOutputTokens int, uuidGen UUIDGenerator) *EvaluationService {
	return &EvaluationService{
		oracle:          oracle,
		txRunner:        txRunner,
		retryer:         retryer,
		uuidGen:         uuidGen,
		now:             time.Now,
		maxOutputTokens: maxOutputTokens,
	}
}

// Evaluate produces and persists the evidence mapping for one control.
// The mapping is created exactly once and never updated afterwards.
func (s *EvaluationService) Evaluate(ctx context.Context, analysis *domain.Analysis, framework *domain.Framework, control *domain.Control, corpus *domain.OrganizedCorpus, attributions []*domain.AttributionEntry) (*domain.EvidenceMapping, []*domain.EvidenceItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "evaluation.evaluate", telemetry.SpanAttributes{
		OrgID:      analysis.OrgID,
		AnalysisID: analysis.ID,
		ControlID:  control.ID,
		Operation:  "evaluate",
	})
	defer span.End()

	systemPrompt, userPrompt := buildEvaluationPrompt(framework, control, corpus)

	raw, err := s.oracle.Generate(ctx, systemPrompt, userPrompt, analysis.Model, s.maxOutputTokens)
	if err != nil {
		span.SetError(err)
		return nil, nil, fmt.Errorf("oracle evaluation of control %s failed: %w", control.Code, err)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		verdict = &Verdict{
			Status:     string(domain.EvidenceStatusMissing),
			Confidence: 0,
			Reasoning:  fmt.Sprintf("could not parse oracle response for control %s: %v", control.Code, err),
		}
	}

	now := s.now().UTC()
	mapping := &domain.EvidenceMapping{
		ID:         s.uuidGen.NewString(),
		AnalysisID: analysis.ID,
		ControlID:  control.ID,
		Status:     domain.EvidenceStatus(verdict.Status),
		Confidence: clampScore(verdict.Confidence),
		Reasoning:  verdict.Reasoning,
		CreatedAt:  now,
	}

	items := s.resolveCitations(mapping, verdict.Evidence, corpus, attributions, now)

	err = s.retryer.Do(ctx, "evaluation.persist", func(ctx context.Context) error {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Evidence().CreateMapping(ctx, mapping); err != nil {
				return err
			}
			return repos.Evidence().CreateItems(ctx, items)
		})
	})
	if err != nil {
		span.SetError(err)
		return nil, nil, fmt.Errorf("failed to persist evaluation of control %s: %w", control.Code, err)
	}

	return mapping, items, nil
}

// resolveCitations turns each cited snippet into one evidence item. A snippet
// located in the corpus resolves to the attribution entry covering its line;
// an unlocatable snippet is still recorded, just without a source reference.
func (s *EvaluationService) resolveCitations(mapping *domain.EvidenceMapping, citations []VerdictCitation, corpus *domain.OrganizedCorpus, attributions []*domain.AttributionEntry, now time.Time) []*domain.EvidenceItem {
	items := make([]*domain.EvidenceItem, 0, len(citations))
	for _, citation := range citations {
		text := strings.TrimSpace(citation.Text)
		if text == "" {
			continue
		}

		item := &domain.EvidenceItem{
			ID:         s.uuidGen.NewString(),
			MappingID:  mapping.ID,
			Text:       text,
			Confidence: clampScore(citation.Confidence),
			Relevance:  clampScore(citation.Relevance),
			CreatedAt:  now,
		}

		if entry := resolveAttribution(corpus.Content, attributions, text); entry != nil {
			item.DocumentID = entry.DocumentID
			item.DocumentName = entry.DocumentName
			item.PageNumber = entry.PageNumber
			item.ChunkIndex = entry.ChunkIndex
			item.Attributed = true
		} else {
			// Keep the model's hints for display, but never as a claim
			// of provenance.
			item.DocumentName = citation.DocumentHint
			item.PageNumber = citation.PageHint
		}

		items = append(items, item)
	}
	return items
}

// resolveAttribution locates the cited text in the corpus and returns the
// first attribution entry whose line span contains it, or nil.
func resolveAttribution(content string, attributions []*domain.AttributionEntry, cited string) *domain.AttributionEntry {
	idx := strings.Index(content, cited)
	if idx < 0 {
		return nil
	}

	line := 1 + strings.Count(content[:idx], "\n")
	for _, entry := range attributions {
		if entry.Covers(line) {
			return entry
		}
	}
	return nil
}
