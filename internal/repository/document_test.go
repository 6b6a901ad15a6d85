//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitEmbedding returns a 1536-dim unit vector with a 1.0 at the given axis,
// so cosine distances between fixtures are exact.
func unitEmbedding(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc, pool := newRepoTestPool(ctx, t)
	defer pc.Terminate(ctx)
	defer pool.Close()

	org := seedOrg(ctx, t, pool, "Doc Org")
	repo := NewDocumentRepository(pool)

	doc := seedDocument(ctx, t, pool, org.ID, "policy.pdf", domain.DocumentStatusPending)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "policy.pdf", got.Name)
	assert.Equal(t, domain.DocumentStatusPending, got.Status)
	assert.Empty(t, got.ContentType)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	pc, pool := newRepoTestPool(ctx, t)
	defer pc.Terminate(ctx)
	defer pool.Close()

	org := seedOrg(ctx, t, pool, "Doc Org")
	repo := NewDocumentRepository(pool)
	doc := seedDocument(ctx, t, pool, org.ID, "policy.pdf", domain.DocumentStatusUploaded)

	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessed, 4))

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, got.Status)
	assert.Equal(t, 4, got.ChunkCount)

	err = repo.UpdateStatus(ctx, uuid.NewString(), domain.DocumentStatusProcessed, 0)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ListProcessedIDsByOrg(t *testing.T) {
	ctx := context.Background()
	pc, pool := newRepoTestPool(ctx, t)
	defer pc.Terminate(ctx)
	defer pool.Close()

	org := seedOrg(ctx, t, pool, "Doc Org")
	repo := NewDocumentRepository(pool)

	processed := seedDocument(ctx, t, pool, org.ID, "processed.pdf", domain.DocumentStatusProcessed)
	seedDocument(ctx, t, pool, org.ID, "pending.pdf", domain.DocumentStatusPending)

	ids, err := repo.ListProcessedIDsByOrg(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{processed.ID}, ids)
}

func TestDocumentRepository_ReplaceChunks(t *testing.T) {
	ctx := context.Background()
	pc, pool := newRepoTestPool(ctx, t)
	defer pc.Terminate(ctx)
	defer pool.Close()

	org := seedOrg(ctx, t, pool, "Doc Org")
	repo := NewDocumentRepository(pool)
	doc := seedDocument(ctx, t, pool, org.ID, "policy.pdf", domain.DocumentStatusUploaded)

	first := []*domain.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 0, Topic: "stale", Category: "access-control", Text: "old text"},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, doc.ID, first))

	second := []*domain.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 0, PageNumber: 2, Topic: "mfa", Category: "access-control", RelevanceScore: 90, Text: "MFA is enforced"},
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 1, Topic: "backups", Category: "availability", RelevanceScore: 70, Text: "Nightly backups"},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, doc.ID, second))

	chunks, err := repo.ListChunksByDocuments(ctx, org.ID, []string{doc.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "mfa", chunks[0].Topic)
	assert.Equal(t, 2, chunks[0].PageNumber)
	assert.Equal(t, "backups", chunks[1].Topic)

	count, err := repo.CountChunksByDocuments(ctx, org.ID, []string{doc.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDocumentRepository_SearchChunks(t *testing.T) {
	ctx := context.Background()
	pc, pool := newRepoTestPool(ctx, t)
	defer pc.Terminate(ctx)
	defer pool.Close()

	org := seedOrg(ctx, t, pool, "Doc Org")
	repo := NewDocumentRepository(pool)
	doc := seedDocument(ctx, t, pool, org.ID, "policy.pdf", domain.DocumentStatusProcessed)

	chunks := []*domain.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 0, Topic: "mfa", Category: "access-control", Text: "MFA is enforced", Embedding: unitEmbedding(0)},
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 1, Topic: "backups", Category: "availability", Text: "Nightly backups", Embedding: unitEmbedding(1)},
		// No embedding: must be excluded from results
		{ID: uuid.NewString(), DocumentID: doc.ID, OrgID: org.ID, ChunkIndex: 2, Topic: "misc", Category: "other", Text: "Unembedded"},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, doc.ID, chunks))

	results, err := repo.SearchChunks(ctx, org.ID, unitEmbedding(0), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mfa", results[0].Chunk.Topic)
	assert.Equal(t, "policy.pdf", results[0].DocumentName)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
	assert.Equal(t, "backups", results[1].Chunk.Topic)
	assert.InDelta(t, 0.0, results[1].Similarity, 0.001)
}
