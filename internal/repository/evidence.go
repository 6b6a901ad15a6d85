package repository

import (
	"context"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvidenceRepository handles persistence of per-control verdicts and their
// cited evidence items. Mappings are insert-only: one per (analysis,
// control), never updated after creation.
type EvidenceRepository struct {
	db dbtx
}

func NewEvidenceRepository(pool *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{db: pool}
}

func NewEvidenceRepositoryWithTx(tx pgx.Tx) *EvidenceRepository {
	return &EvidenceRepository{db: tx}
}

func (r *EvidenceRepository) CreateMapping(ctx context.Context, m *domain.EvidenceMapping) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO evidence_mappings (id, analysis_id, control_id, status, confidence, reasoning, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.AnalysisID, m.ControlID, m.Status, m.Confidence, m.Reasoning, m.CreatedAt,
	)
	return err
}

func (r *EvidenceRepository) CreateItems(ctx context.Context, items []*domain.EvidenceItem) error {
	for _, i := range items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO evidence_items
				(id, mapping_id, text, document_id, document_name, page_number, chunk_index, confidence, relevance, attributed, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			i.ID, i.MappingID, i.Text, nullableString(i.DocumentID), nullableString(i.DocumentName),
			nullableInt(i.PageNumber), i.ChunkIndex, i.Confidence, i.Relevance, i.Attributed, i.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *EvidenceRepository) ListMappingsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceMapping, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.id, m.analysis_id, m.control_id, m.status, m.confidence, m.reasoning, m.created_at
		 FROM evidence_mappings m
		 JOIN controls c ON c.id = m.control_id
		 WHERE m.analysis_id = $1
		 ORDER BY c.code ASC`,
		analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*domain.EvidenceMapping
	for rows.Next() {
		var m domain.EvidenceMapping
		if err := rows.Scan(&m.ID, &m.AnalysisID, &m.ControlID, &m.Status, &m.Confidence, &m.Reasoning, &m.CreatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

func (r *EvidenceRepository) ListItemsByMapping(ctx context.Context, mappingID string) ([]*domain.EvidenceItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, mapping_id, text, document_id, document_name, page_number, chunk_index, confidence, relevance, attributed, created_at
		 FROM evidence_items WHERE mapping_id = $1 ORDER BY created_at ASC, id ASC`,
		mappingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvidenceItemRows(rows)
}

// ListItemsByAnalysis returns all items for an analysis in one pass, used by
// the report read path to avoid one query per mapping.
func (r *EvidenceRepository) ListItemsByAnalysis(ctx context.Context, analysisID string) ([]*domain.EvidenceItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT i.id, i.mapping_id, i.text, i.document_id, i.document_name, i.page_number, i.chunk_index, i.confidence, i.relevance, i.attributed, i.created_at
		 FROM evidence_items i
		 JOIN evidence_mappings m ON m.id = i.mapping_id
		 WHERE m.analysis_id = $1
		 ORDER BY i.created_at ASC, i.id ASC`,
		analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvidenceItemRows(rows)
}

func scanEvidenceItemRows(rows pgx.Rows) ([]*domain.EvidenceItem, error) {
	var items []*domain.EvidenceItem
	for rows.Next() {
		var i domain.EvidenceItem
		var documentID, documentName *string
		var pageNumber *int
		if err := rows.Scan(&i.ID, &i.MappingID, &i.Text, &documentID, &documentName, &pageNumber, &i.ChunkIndex, &i.Confidence, &i.Relevance, &i.Attributed, &i.CreatedAt); err != nil {
			return nil, err
		}
		if documentID != nil {
			i.DocumentID = *documentID
		}
		if documentName != nil {
			i.DocumentName = *documentName
		}
		if pageNumber != nil {
			i.PageNumber = *pageNumber
		}
		items = append(items, &i)
	}
	return items, rows.Err()
}
