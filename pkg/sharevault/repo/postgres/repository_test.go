package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/repo/postgres"
	"github.com/tendant/sharevault/pkg/sharevault/repo/repotest"
)

func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("SHAREVAULT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHAREVAULT_TEST_DATABASE_URL not set; skipping postgres tests")
	}

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository_Conformance(t *testing.T) {
	pool := newPool(t)
	ctx := context.Background()
	require.NoError(t, postgres.NewWithPool(pool).EnsureSchema(ctx))

	repotest.Run(t, func(t *testing.T) sharevault.Repository {
		_, err := pool.Exec(ctx, "TRUNCATE content_items, category_index")
		require.NoError(t, err)
		return postgres.NewWithPool(pool)
	})
}

// failingDB returns the configured error from every call.
type failingDB struct {
	err error
}

func (f failingDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.err
}

func (f failingDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, f.err
}

func (f failingDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return failingRow{err: f.err}
}

type failingRow struct {
	err error
}

func (r failingRow) Scan(...any) error {
	return r.err
}

// hangingDB blocks every call until the context is done.
type hangingDB struct{}

func (hangingDB) Exec(ctx context.Context, _ string, _ ...interface{}) (pgconn.CommandTag, error) {
	<-ctx.Done()
	return pgconn.CommandTag{}, ctx.Err()
}

func (hangingDB) Query(ctx context.Context, _ string, _ ...interface{}) (pgx.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingDB) QueryRow(ctx context.Context, _ string, _ ...interface{}) pgx.Row {
	<-ctx.Done()
	return failingRow{err: ctx.Err()}
}

func TestPostgresRepository_QueryTimeout(t *testing.T) {
	ctx := context.Background()
	repo := postgres.New(hangingDB{}, postgres.WithQueryTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 10)
	assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = repo.ResolveCategorySlug(ctx, "notes")
	assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)

	err = repo.Update(ctx, repotest.Item("x", "Alpha", 0))
	assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)
}

func TestPostgresRepository_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("connection failure is retryable", func(t *testing.T) {
		repo := postgres.New(failingDB{err: &pgconn.PgError{Code: "08006", Message: "connection failure"}})
		_, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 10)
		assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)
		assert.True(t, sharevault.IsRetryable(err))
	})

	t.Run("deadline is retryable", func(t *testing.T) {
		repo := postgres.New(failingDB{err: context.DeadlineExceeded})
		_, err := repo.CountMatching(ctx, sharevault.AllItems())
		assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)
	})

	t.Run("shutdown is retryable", func(t *testing.T) {
		repo := postgres.New(failingDB{err: &pgconn.PgError{Code: "57P01"}})
		_, err := repo.CategoryCounts(ctx)
		assert.True(t, sharevault.IsRetryable(err))
	})

	t.Run("slug unique violation", func(t *testing.T) {
		repo := postgres.New(failingDB{err: &pgconn.PgError{Code: "23505", ConstraintName: "content_items_slug_key"}})
		err := repo.Create(ctx, repotest.Item("x", "Alpha", 0))
		assert.ErrorIs(t, err, sharevault.ErrSlugConflict)
		assert.False(t, sharevault.IsRetryable(err))
	})

	t.Run("no rows", func(t *testing.T) {
		repo := postgres.New(failingDB{err: pgx.ErrNoRows})
		_, err := repo.GetBySlug(ctx, "missing")
		assert.ErrorIs(t, err, sharevault.ErrNotFound)

		_, err = repo.ResolveCategorySlug(ctx, "missing")
		assert.ErrorIs(t, err, sharevault.ErrCategoryNotIndexed)
	})

	t.Run("invalid scope never reaches the database", func(t *testing.T) {
		repo := postgres.New(failingDB{err: context.DeadlineExceeded})
		_, err := repo.FetchPage(ctx, sharevault.InCategory(" "), 0, 10)
		assert.ErrorIs(t, err, sharevault.ErrInvalidScope)
	})
}
