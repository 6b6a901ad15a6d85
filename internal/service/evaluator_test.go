package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func evaluationFixtures() (*domain.Analysis, *domain.Framework, *domain.Control, *domain.OrganizedCorpus, []*domain.AttributionEntry) {
	analysis := &domain.Analysis{ID: "analysis-1", OrgID: "org-1", FrameworkID: "fw-1", Model: "gpt-4o"}
	framework := &domain.Framework{ID: "fw-1", Name: "SOC 2"}
	control := &domain.Control{ID: "ctrl-1", FrameworkID: "fw-1", Code: "CC6.1", Title: "Logical Access", Requirement: "Access to systems requires multi-factor authentication."}
	corpus := &domain.OrganizedCorpus{
		ID:      "corpus-1",
		OrgID:   "org-1",
		Content: "## Category: Access Control\n\nMFA is enforced for all user accounts.\n",
	}
	attributions := []*domain.AttributionEntry{
		{ID: "attr-1", CorpusID: "corpus-1", DocumentID: "doc-1", DocumentName: "access-policy.pdf", PageNumber: 2, ChunkIndex: 0, StartLine: 3, EndLine: 3},
	}
	return analysis, framework, control, corpus, attributions
}

func TestEvaluationService_Evaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("persists verdict with attributed citation", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything, mock.Anything, mock.Anything, "gpt-4o", 2048).
			Return(`{"status":"compliant","confidence":88,"reasoning":"MFA is enforced","evidence":[{"text":"MFA is enforced for all user accounts.","confidence":90,"relevance":95}]}`, nil)

		evidence := new(MockEvidenceRepository)
		evidence.On("CreateMapping", mock.Anything, mock.AnythingOfType("*domain.EvidenceMapping")).Return(nil)
		evidence.On("CreateItems", mock.Anything, mock.Anything).Return(nil)
		runner := &fakeTxRunner{repos: &fakeTxRepos{evidence: evidence}}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		mapping, items, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.NoError(t, err)
		assert.Equal(t, domain.EvidenceStatusCompliant, mapping.Status)
		assert.Equal(t, 88, mapping.Confidence)
		assert.Equal(t, "analysis-1", mapping.AnalysisID)
		assert.Equal(t, "ctrl-1", mapping.ControlID)

		require.Len(t, items, 1)
		assert.True(t, items[0].Attributed)
		assert.Equal(t, "doc-1", items[0].DocumentID)
		assert.Equal(t, "access-policy.pdf", items[0].DocumentName)
		assert.Equal(t, 2, items[0].PageNumber)
		assert.Equal(t, mapping.ID, items[0].MappingID)
		evidence.AssertExpectations(t)
	})

	t.Run("sends the framework family prompt to the oracle", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything,
			mock.MatchedBy(func(system string) bool { return strings.Contains(system, "SOC 2") }),
			mock.MatchedBy(func(prompt string) bool {
				return strings.Contains(prompt, "CC6.1") && strings.Contains(prompt, corpus.Content)
			}),
			"gpt-4o", 2048,
		).Return(`{"status":"missing","confidence":0,"reasoning":"none"}`, nil)

		evidence := new(MockEvidenceRepository)
		evidence.On("CreateMapping", mock.Anything, mock.Anything).Return(nil)
		evidence.On("CreateItems", mock.Anything, mock.Anything).Return(nil)
		runner := &fakeTxRunner{repos: &fakeTxRepos{evidence: evidence}}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		_, _, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.NoError(t, err)
		oracle.AssertExpectations(t)
	})

	t.Run("oracle failure surfaces to the caller", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("rate limited"))

		evidence := new(MockEvidenceRepository)
		runner := &fakeTxRunner{repos: &fakeTxRepos{evidence: evidence}}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		_, _, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "CC6.1")
		evidence.AssertNotCalled(t, "CreateMapping", mock.Anything, mock.Anything)
	})

	t.Run("unparseable response degrades to missing instead of failing", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("I am unable to answer in the requested format.", nil)

		evidence := new(MockEvidenceRepository)
		evidence.On("CreateMapping", mock.Anything, mock.Anything).Return(nil)
		evidence.On("CreateItems", mock.Anything, mock.Anything).Return(nil)
		runner := &fakeTxRunner{repos: &fakeTxRepos{evidence: evidence}}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		mapping, items, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.NoError(t, err)
		assert.Equal(t, domain.EvidenceStatusMissing, mapping.Status)
		assert.Equal(t, 0, mapping.Confidence)
		assert.Contains(t, mapping.Reasoning, "could not parse oracle response")
		assert.Empty(t, items)
	})

	t.Run("unlocatable citation is kept but unattributed", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{"status":"partial","confidence":50,"reasoning":"weak","evidence":[{"text":"this sentence is not in the corpus","documentHint":"guessed.pdf","pageHint":7}]}`, nil)

		evidence := new(MockEvidenceRepository)
		evidence.On("CreateMapping", mock.Anything, mock.Anything).Return(nil)
		evidence.On("CreateItems", mock.Anything, mock.Anything).Return(nil)
		runner := &fakeTxRunner{repos: &fakeTxRepos{evidence: evidence}}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		_, items, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.False(t, items[0].Attributed)
		assert.Empty(t, items[0].DocumentID)
		assert.Equal(t, "guessed.pdf", items[0].DocumentName)
		assert.Equal(t, 7, items[0].PageNumber)
	})

	t.Run("persistence failure surfaces to the caller", func(t *testing.T) {
		analysis, framework, control, corpus, attributions := evaluationFixtures()

		oracle := new(MockOracle)
		oracle.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(`{"status":"compliant","confidence":80,"reasoning":"ok"}`, nil)

		runner := &fakeTxRunner{err: errors.New("connection reset")}

		svc := NewEvaluationService(oracle, runner, passRetryer{}, 2048)
		_, _, err := svc.Evaluate(ctx, analysis, framework, control, corpus, attributions)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist evaluation")
	})
}

func TestResolveAttribution(t *testing.T) {
	content := "heading\n\nline three text\nline four text\n"
	attributions := []*domain.AttributionEntry{
		{ID: "attr-1", DocumentID: "doc-1", StartLine: 3, EndLine: 3},
		{ID: "attr-2", DocumentID: "doc-2", StartLine: 4, EndLine: 4},
	}

	t.Run("resolves to the entry covering the cited line", func(t *testing.T) {
		entry := resolveAttribution(content, attributions, "line four text")
		require.NotNil(t, entry)
		assert.Equal(t, "doc-2", entry.DocumentID)
	})

	t.Run("returns nil for text not in the corpus", func(t *testing.T) {
		assert.Nil(t, resolveAttribution(content, attributions, "absent"))
	})

	t.Run("returns nil when no entry covers the line", func(t *testing.T) {
		assert.Nil(t, resolveAttribution(content, attributions, "heading"))
	})
}
