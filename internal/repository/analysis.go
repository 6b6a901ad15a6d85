package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnalysisRepository struct {
	db dbtx
}

func NewAnalysisRepository(pool *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: pool}
}

func NewAnalysisRepositoryWithTx(tx pgx.Tx) *AnalysisRepository {
	return &AnalysisRepository{db: tx}
}

func (r *AnalysisRepository) Create(ctx context.Context, a *domain.Analysis) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO analyses
			(id, org_id, framework_id, model, status, total_controls, compliant_count, partial_count, missing_count,
			 average_confidence, error, started_at, completed_at, duration_ms)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.OrgID, a.FrameworkID, a.Model, a.Status, a.TotalControls, a.CompliantCount, a.PartialCount,
		a.MissingCount, a.AverageConfidence, nullableString(a.Error), a.StartedAt, a.CompletedAt, a.DurationMS,
	)
	return err
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.Analysis, error) {
	var a domain.Analysis
	var errMsg *string
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, framework_id, model, status, total_controls, compliant_count, partial_count, missing_count,
		        average_confidence, error, started_at, completed_at, duration_ms
		 FROM analyses WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.OrgID, &a.FrameworkID, &a.Model, &a.Status, &a.TotalControls, &a.CompliantCount,
		&a.PartialCount, &a.MissingCount, &a.AverageConfidence, &errMsg, &a.StartedAt, &a.CompletedAt, &a.DurationMS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, err
	}
	if errMsg != nil {
		a.Error = *errMsg
	}
	return &a, nil
}

func (r *AnalysisRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Analysis, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, framework_id, model, status, total_controls, compliant_count, partial_count, missing_count,
		        average_confidence, error, started_at, completed_at, duration_ms
		 FROM analyses WHERE org_id = $1 ORDER BY started_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var errMsg *string
		if err := rows.Scan(&a.ID, &a.OrgID, &a.FrameworkID, &a.Model, &a.Status, &a.TotalControls,
			&a.CompliantCount, &a.PartialCount, &a.MissingCount, &a.AverageConfidence, &errMsg,
			&a.StartedAt, &a.CompletedAt, &a.DurationMS); err != nil {
			return nil, err
		}
		if errMsg != nil {
			a.Error = *errMsg
		}
		analyses = append(analyses, &a)
	}
	return analyses, rows.Err()
}

// MarkCompleted finalizes a successful analysis with its aggregate counts
func (r *AnalysisRepository) MarkCompleted(ctx context.Context, a *domain.Analysis) error {
	completedAt := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE analyses
		 SET status = $2, compliant_count = $3, partial_count = $4, missing_count = $5,
		     average_confidence = $6, completed_at = $7, duration_ms = $8
		 WHERE id = $1`,
		a.ID, domain.AnalysisStatusCompleted, a.CompliantCount, a.PartialCount, a.MissingCount,
		a.AverageConfidence, completedAt, completedAt.Sub(a.StartedAt).Milliseconds(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	a.Status = domain.AnalysisStatusCompleted
	a.CompletedAt = &completedAt
	a.DurationMS = completedAt.Sub(a.StartedAt).Milliseconds()
	return nil
}

// MarkFailed records a job-fatal failure
func (r *AnalysisRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	completedAt := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE analyses SET status = $2, error = $3, completed_at = $4 WHERE id = $1`,
		id, domain.AnalysisStatusFailed, errMsg, completedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}
