package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, org_id, name, content_type, size_bytes, storage_key, status, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.OrgID, d.Name, nullableString(d.ContentType), d.SizeBytes, d.StorageKey, d.Status, d.ChunkCount, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	var contentType *string
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, name, content_type, size_bytes, storage_key, status, chunk_count, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.OrgID, &d.Name, &contentType, &d.SizeBytes, &d.StorageKey, &d.Status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if contentType != nil {
		d.ContentType = *contentType
	}
	return &d, nil
}

func (r *DocumentRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, name, content_type, size_bytes, storage_key, status, chunk_count, created_at, updated_at
		 FROM documents WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var contentType *string
		if err := rows.Scan(&d.ID, &d.OrgID, &d.Name, &contentType, &d.SizeBytes, &d.StorageKey, &d.Status, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if contentType != nil {
			d.ContentType = *contentType
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// ListProcessedIDsByOrg returns the ids of all documents with ingested
// chunks, the default document set for a new analysis.
func (r *DocumentRepository) ListProcessedIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM documents WHERE org_id = $1 AND status = $2 ORDER BY created_at ASC`,
		orgID, domain.DocumentStatusProcessed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, chunkCount int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, chunk_count = $3, updated_at = $4 WHERE id = $1`,
		id, status, chunkCount, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ReplaceChunks deletes existing chunks for a document and inserts the new
// classification. Runs against whatever dbtx the repository holds, so it can
// participate in a transaction.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.DocumentChunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}

		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, document_id, org_id, chunk_index, page_number, topic, category, relevance_score, text, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.DocumentID, c.OrgID, c.ChunkIndex, nullableInt(c.PageNumber),
			c.Topic, c.Category, c.RelevanceScore, c.Text, embedding, createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListChunksByDocuments returns all classified chunks for the given
// documents, scoped to the organization.
func (r *DocumentRepository) ListChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) ([]*domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.org_id, c.chunk_index, c.page_number, c.topic, c.category, c.relevance_score, c.text, c.created_at
		 FROM document_chunks c
		 WHERE c.org_id = $1 AND c.document_id = ANY($2)
		 ORDER BY c.document_id, c.chunk_index`,
		orgID, documentIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunkRows(rows)
}

// CountChunksByDocuments reports how many classified chunks exist for the
// given documents. Used as a precondition check before an analysis job is
// created.
func (r *DocumentRepository) CountChunksByDocuments(ctx context.Context, orgID string, documentIDs []string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE org_id = $1 AND document_id = ANY($2)`,
		orgID, documentIDs,
	).Scan(&count)
	return count, err
}

// SearchChunks ranks chunks by cosine similarity to the query embedding.
// Chunks without an embedding are excluded.
func (r *DocumentRepository) SearchChunks(ctx context.Context, orgID string, embedding []float32, limit int) ([]*service.ChunkSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.org_id, c.chunk_index, c.page_number, c.topic, c.category, c.relevance_score, c.text, c.created_at,
		        d.name, 1 - (c.embedding <=> $2) AS similarity
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.org_id = $1 AND c.embedding IS NOT NULL
		 ORDER BY c.embedding <=> $2
		 LIMIT $3`,
		orgID, pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.ChunkSearchResult
	for rows.Next() {
		var c domain.DocumentChunk
		var pageNumber *int
		var name string
		var similarity float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OrgID, &c.ChunkIndex, &pageNumber, &c.Topic, &c.Category, &c.RelevanceScore, &c.Text, &c.CreatedAt, &name, &similarity); err != nil {
			return nil, err
		}
		if pageNumber != nil {
			c.PageNumber = *pageNumber
		}
		results = append(results, &service.ChunkSearchResult{Chunk: &c, DocumentName: name, Similarity: similarity})
	}
	return results, rows.Err()
}

func scanChunkRows(rows pgx.Rows) ([]*domain.DocumentChunk, error) {
	var chunks []*domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		var pageNumber *int
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OrgID, &c.ChunkIndex, &pageNumber, &c.Topic, &c.Category, &c.RelevanceScore, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		if pageNumber != nil {
			c.PageNumber = *pageNumber
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
