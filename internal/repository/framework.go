package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FrameworkRepository handles persistence of the compliance framework catalog.
// The catalog is read-only input to the pipeline; writes only happen through
// the import endpoint.
type FrameworkRepository struct {
	db dbtx
}

func NewFrameworkRepository(pool *pgxpool.Pool) *FrameworkRepository {
	return &FrameworkRepository{db: pool}
}

func NewFrameworkRepositoryWithTx(tx pgx.Tx) *FrameworkRepository {
	return &FrameworkRepository{db: tx}
}

func (r *FrameworkRepository) Create(ctx context.Context, f *domain.Framework) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO frameworks (id, name, version, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.Name, nullableString(f.Version), nullableString(f.Description), f.CreatedAt,
	)
	return err
}

func (r *FrameworkRepository) GetByID(ctx context.Context, id string) (*domain.Framework, error) {
	var f domain.Framework
	var version, description *string
	err := r.db.QueryRow(ctx,
		`SELECT id, name, version, description, created_at FROM frameworks WHERE id = $1`,
		id,
	).Scan(&f.ID, &f.Name, &version, &description, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFrameworkNotFound
		}
		return nil, err
	}
	if version != nil {
		f.Version = *version
	}
	if description != nil {
		f.Description = *description
	}
	return &f, nil
}

func (r *FrameworkRepository) List(ctx context.Context) ([]*domain.Framework, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, version, description, created_at FROM frameworks ORDER BY name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frameworks []*domain.Framework
	for rows.Next() {
		var f domain.Framework
		var version, description *string
		if err := rows.Scan(&f.ID, &f.Name, &version, &description, &f.CreatedAt); err != nil {
			return nil, err
		}
		if version != nil {
			f.Version = *version
		}
		if description != nil {
			f.Description = *description
		}
		frameworks = append(frameworks, &f)
	}
	return frameworks, rows.Err()
}

func (r *FrameworkRepository) CreateControl(ctx context.Context, c *domain.Control) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO controls (id, framework_id, code, title, requirement, category, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.FrameworkID, c.Code, c.Title, c.Requirement, nullableString(c.Category), c.CreatedAt,
	)
	return err
}

// ListControls returns the framework's controls in stable catalog order
// (ascending control code). Evaluation order and therefore progress event
// order depend on this ordering.
func (r *FrameworkRepository) ListControls(ctx context.Context, frameworkID string) ([]*domain.Control, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, framework_id, code, title, requirement, category, created_at
		 FROM controls WHERE framework_id = $1 ORDER BY code ASC`,
		frameworkID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanControlRows(rows)
}

func scanControlRows(rows pgx.Rows) ([]*domain.Control, error) {
	var controls []*domain.Control
	for rows.Next() {
		var c domain.Control
		var category *string
		if err := rows.Scan(&c.ID, &c.FrameworkID, &c.Code, &c.Title, &c.Requirement, &category, &c.CreatedAt); err != nil {
			return nil, err
		}
		if category != nil {
			c.Category = *category
		}
		controls = append(controls, &c)
	}
	return controls, rows.Err()
}
