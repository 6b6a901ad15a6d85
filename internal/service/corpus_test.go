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

func corpusTestChunks() []*domain.DocumentChunk {
	return []*domain.DocumentChunk{
		{
			ID: "chunk-1", DocumentID: "doc-1", OrgID: "org-1", ChunkIndex: 0, PageNumber: 1,
			Topic: "Authentication", Category: "Access Control", RelevanceScore: 90,
			Text: "MFA is enforced for all user accounts.",
		},
		{
			ID: "chunk-2", DocumentID: "doc-1", OrgID: "org-1", ChunkIndex: 1, PageNumber: 2,
			Topic: "Authentication", Category: "Access Control", RelevanceScore: 95,
			Text: "Passwords must be rotated every 90 days.",
		},
		{
			ID: "chunk-3", DocumentID: "doc-2", OrgID: "org-1", ChunkIndex: 0, PageNumber: 5,
			Topic: "Recovery", Category: "Backup", RelevanceScore: 80,
			Text: "Backups are tested quarterly.\nRestore drills are documented.",
		},
	}
}

func TestBuildCorpus(t *testing.T) {
	names := map[string]string{"doc-1": "access-policy.pdf", "doc-2": "bcp.pdf"}

	t.Run("groups by category and topic with relevance ordering", func(t *testing.T) {
		content, categories, entries := buildCorpus(corpusTestChunks(), names)

		assert.Equal(t, []string{"Access Control", "Backup"}, categories)

		lines := strings.Split(content, "\n")
		assert.Equal(t, "## Category: Access Control", lines[0])
		assert.Equal(t, "### Topic: Authentication", lines[2])
		assert.Equal(t, "Passwords must be rotated every 90 days.", lines[4])
		assert.Equal(t, "MFA is enforced for all user accounts.", lines[6])
		assert.Equal(t, "## Category: Backup", lines[8])
		assert.Equal(t, "### Topic: Recovery", lines[10])
		assert.Equal(t, "Backups are tested quarterly.", lines[12])
		assert.Equal(t, "Restore drills are documented.", lines[13])

		require.Len(t, entries, 3)
		assert.Equal(t, "doc-1", entries[0].DocumentID)
		assert.Equal(t, "access-policy.pdf", entries[0].DocumentName)
		assert.Equal(t, 1, entries[0].ChunkIndex)
		assert.Equal(t, 5, entries[0].StartLine)
		assert.Equal(t, 5, entries[0].EndLine)

		assert.Equal(t, 7, entries[1].StartLine)
		assert.Equal(t, 7, entries[1].EndLine)

		assert.Equal(t, "doc-2", entries[2].DocumentID)
		assert.Equal(t, 13, entries[2].StartLine)
		assert.Equal(t, 14, entries[2].EndLine)
	})

	t.Run("same inputs render identical content", func(t *testing.T) {
		a, _, _ := buildCorpus(corpusTestChunks(), names)
		b, _, _ := buildCorpus(corpusTestChunks(), names)
		assert.Equal(t, a, b)
	})

	t.Run("labels unclassified chunks", func(t *testing.T) {
		content, categories, _ := buildCorpus([]*domain.DocumentChunk{
			{ID: "chunk-1", DocumentID: "doc-1", Text: "some text"},
		}, names)

		assert.Equal(t, []string{"Uncategorized"}, categories)
		assert.Contains(t, content, "### Topic: General")
	})

	t.Run("omits empty chunks from attribution", func(t *testing.T) {
		_, _, entries := buildCorpus([]*domain.DocumentChunk{
			{ID: "chunk-1", DocumentID: "doc-1", Category: "A", Topic: "T", Text: ""},
			{ID: "chunk-2", DocumentID: "doc-1", Category: "A", Topic: "T", Text: "real text"},
		}, names)

		require.Len(t, entries, 1)
		assert.Equal(t, "doc-1", entries[0].DocumentID)
	})
}

func TestCorpusService_Organize(t *testing.T) {
	ctx := context.Background()
	docIDs := []string{"doc-1", "doc-2"}
	digest := sourceDigest(docIDs)

	docs := []*domain.Document{
		{ID: "doc-1", OrgID: "org-1", Name: "access-policy.pdf"},
		{ID: "doc-2", OrgID: "org-1", Name: "bcp.pdf"},
	}

	t.Run("builds and persists a new corpus", func(t *testing.T) {
		corpora := new(MockCorpusRepository)
		documents := new(MockDocumentRepository)
		txCorpora := new(MockCorpusRepository)
		runner := &fakeTxRunner{repos: &fakeTxRepos{corpora: txCorpora}}

		corpora.On("GetByOrgAndDigest", mock.Anything, "org-1", digest).
			Return(nil, domain.ErrCorpusNotFound)
		documents.On("ListChunksByDocuments", mock.Anything, "org-1", docIDs).
			Return(corpusTestChunks(), nil)
		documents.On("ListByOrg", mock.Anything, "org-1").Return(docs, nil)
		txCorpora.On("Create", mock.Anything, mock.AnythingOfType("*domain.OrganizedCorpus")).Return(nil)
		txCorpora.On("CreateAttributions", mock.Anything, mock.Anything).Return(nil)

		svc := NewCorpusServiceWithUUID(corpora, documents, runner, passRetryer{}, &seqUUID{})
		corpus, entries, err := svc.Organize(ctx, "org-1", docIDs, false)

		require.NoError(t, err)
		assert.Equal(t, "org-1", corpus.OrgID)
		assert.Equal(t, digest, corpus.SourceDigest)
		assert.Equal(t, 3, corpus.ChunkCount)
		assert.Equal(t, []string{"Access Control", "Backup"}, corpus.Categories)
		require.Len(t, entries, 3)
		for _, e := range entries {
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, corpus.ID, e.CorpusID)
		}
		corpora.AssertExpectations(t)
		txCorpora.AssertExpectations(t)
	})

	t.Run("reuses existing corpus for the same source set", func(t *testing.T) {
		existing := &domain.OrganizedCorpus{ID: "corpus-1", OrgID: "org-1", SourceDigest: digest}
		attributions := []*domain.AttributionEntry{{ID: "attr-1", CorpusID: "corpus-1", DocumentID: "doc-1", StartLine: 5, EndLine: 5}}

		corpora := new(MockCorpusRepository)
		documents := new(MockDocumentRepository)
		corpora.On("GetByOrgAndDigest", mock.Anything, "org-1", digest).Return(existing, nil)
		corpora.On("ListAttributions", mock.Anything, "corpus-1").Return(attributions, nil)

		svc := NewCorpusService(corpora, documents, &fakeTxRunner{}, passRetryer{})
		corpus, entries, err := svc.Organize(ctx, "org-1", docIDs, false)

		require.NoError(t, err)
		assert.Equal(t, "corpus-1", corpus.ID)
		assert.Equal(t, attributions, entries)
		documents.AssertNotCalled(t, "ListChunksByDocuments", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("explicit subset always rebuilds", func(t *testing.T) {
		corpora := new(MockCorpusRepository)
		documents := new(MockDocumentRepository)
		txCorpora := new(MockCorpusRepository)
		runner := &fakeTxRunner{repos: &fakeTxRepos{corpora: txCorpora}}

		documents.On("ListChunksByDocuments", mock.Anything, "org-1", []string{"doc-1"}).
			Return(corpusTestChunks()[:1], nil)
		documents.On("ListByOrg", mock.Anything, "org-1").Return(docs, nil)
		txCorpora.On("Create", mock.Anything, mock.Anything).Return(nil)
		txCorpora.On("CreateAttributions", mock.Anything, mock.Anything).Return(nil)

		svc := NewCorpusService(corpora, documents, runner, passRetryer{})
		_, _, err := svc.Organize(ctx, "org-1", []string{"doc-1"}, true)

		require.NoError(t, err)
		corpora.AssertNotCalled(t, "GetByOrgAndDigest", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("fails with NoEvidenceAvailable when no chunks exist", func(t *testing.T) {
		corpora := new(MockCorpusRepository)
		documents := new(MockDocumentRepository)
		corpora.On("GetByOrgAndDigest", mock.Anything, "org-1", digest).
			Return(nil, domain.ErrCorpusNotFound)
		documents.On("ListChunksByDocuments", mock.Anything, "org-1", docIDs).
			Return([]*domain.DocumentChunk{}, nil)

		svc := NewCorpusService(corpora, documents, &fakeTxRunner{}, passRetryer{})
		_, _, err := svc.Organize(ctx, "org-1", docIDs, false)

		assert.ErrorIs(t, err, domain.ErrNoEvidenceAvailable)
	})

	t.Run("propagates persistence failures", func(t *testing.T) {
		corpora := new(MockCorpusRepository)
		documents := new(MockDocumentRepository)
		runner := &fakeTxRunner{err: errors.New("commit failed")}

		corpora.On("GetByOrgAndDigest", mock.Anything, "org-1", digest).
			Return(nil, domain.ErrCorpusNotFound)
		documents.On("ListChunksByDocuments", mock.Anything, "org-1", docIDs).
			Return(corpusTestChunks(), nil)
		documents.On("ListByOrg", mock.Anything, "org-1").Return(docs, nil)

		svc := NewCorpusService(corpora, documents, runner, passRetryer{})
		_, _, err := svc.Organize(ctx, "org-1", docIDs, false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist corpus")
	})

	t.Run("digest is order independent", func(t *testing.T) {
		assert.Equal(t, sourceDigest([]string{"a", "b"}), sourceDigest([]string{"b", "a"}))
		assert.NotEqual(t, sourceDigest([]string{"a"}), sourceDigest([]string{"a", "b"}))
	})
}
