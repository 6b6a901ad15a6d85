//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
	"github.com/cloo-solutions/attestai/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func testTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func seedOrg(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.Organization {
	t.Helper()
	org := &domain.Organization{ID: uuid.NewString(), Name: name, CreatedAt: testTime()}
	require.NoError(t, NewOrgRepository(pool).Create(ctx, org))
	return org
}

func seedFramework(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.Framework {
	t.Helper()
	f := &domain.Framework{ID: uuid.NewString(), Name: name, Version: "2017", CreatedAt: testTime()}
	require.NoError(t, NewFrameworkRepository(pool).Create(ctx, f))
	return f
}

func seedControl(ctx context.Context, t *testing.T, pool *pgxpool.Pool, frameworkID, code string) *domain.Control {
	t.Helper()
	c := &domain.Control{
		ID:          uuid.NewString(),
		FrameworkID: frameworkID,
		Code:        code,
		Title:       "Control " + code,
		Requirement: "Requirement for " + code,
		CreatedAt:   testTime(),
	}
	require.NoError(t, NewFrameworkRepository(pool).CreateControl(ctx, c))
	return c
}

func seedDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID, name string, status domain.DocumentStatus) *domain.Document {
	t.Helper()
	now := testTime()
	d := &domain.Document{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Name:       name,
		StorageKey: orgID + "/" + name,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, d))
	return d
}

func seedAnalysis(ctx context.Context, t *testing.T, pool *pgxpool.Pool, orgID, frameworkID string) *domain.Analysis {
	t.Helper()
	a := &domain.Analysis{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		FrameworkID:   frameworkID,
		Model:         "gpt-4o",
		Status:        domain.AnalysisStatusProcessing,
		TotalControls: 2,
		StartedAt:     testTime(),
	}
	require.NoError(t, NewAnalysisRepository(pool).Create(ctx, a))
	return a
}

func newRepoTestPool(ctx context.Context, t *testing.T) (*testutil.PostgresContainer, *pgxpool.Pool) {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	return pc, pool
}
