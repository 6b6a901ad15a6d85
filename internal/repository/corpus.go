package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CorpusRepository handles persistence of organized corpora and their
// attribution entries.
type CorpusRepository struct {
	db dbtx
}

func NewCorpusRepository(pool *pgxpool.Pool) *CorpusRepository {
	return &CorpusRepository{db: pool}
}

func NewCorpusRepositoryWithTx(tx pgx.Tx) *CorpusRepository {
	return &CorpusRepository{db: tx}
}

func (r *CorpusRepository) Create(ctx context.Context, c *domain.OrganizedCorpus) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organized_corpora (id, org_id, content, categories, chunk_count, source_digest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.OrgID, c.Content, c.Categories, c.ChunkCount, c.SourceDigest, c.CreatedAt,
	)
	return err
}

func (r *CorpusRepository) CreateAttributions(ctx context.Context, entries []*domain.AttributionEntry) error {
	for _, e := range entries {
		_, err := r.db.Exec(ctx,
			`INSERT INTO attribution_entries (id, corpus_id, document_id, document_name, page_number, chunk_index, start_line, end_line)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.CorpusID, e.DocumentID, e.DocumentName, nullableInt(e.PageNumber), e.ChunkIndex, e.StartLine, e.EndLine,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CorpusRepository) GetByID(ctx context.Context, id string) (*domain.OrganizedCorpus, error) {
	var c domain.OrganizedCorpus
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, content, categories, chunk_count, source_digest, created_at
		 FROM organized_corpora WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OrgID, &c.Content, &c.Categories, &c.ChunkCount, &c.SourceDigest, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCorpusNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByOrgAndDigest returns the corpus previously built for the exact same
// document selection, if one exists. This is the reuse fast path.
func (r *CorpusRepository) GetByOrgAndDigest(ctx context.Context, orgID, sourceDigest string) (*domain.OrganizedCorpus, error) {
	var c domain.OrganizedCorpus
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, content, categories, chunk_count, source_digest, created_at
		 FROM organized_corpora
		 WHERE org_id = $1 AND source_digest = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		orgID, sourceDigest,
	).Scan(&c.ID, &c.OrgID, &c.Content, &c.Categories, &c.ChunkCount, &c.SourceDigest, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCorpusNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CorpusRepository) ListAttributions(ctx context.Context, corpusID string) ([]*domain.AttributionEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, corpus_id, document_id, document_name, page_number, chunk_index, start_line, end_line
		 FROM attribution_entries WHERE corpus_id = $1 ORDER BY start_line ASC`,
		corpusID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AttributionEntry
	for rows.Next() {
		var e domain.AttributionEntry
		var pageNumber *int
		if err := rows.Scan(&e.ID, &e.CorpusID, &e.DocumentID, &e.DocumentName, &pageNumber, &e.ChunkIndex, &e.StartLine, &e.EndLine); err != nil {
			return nil, err
		}
		if pageNumber != nil {
			e.PageNumber = *pageNumber
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
