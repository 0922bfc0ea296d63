package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements sharevault.Repository using PostgreSQL
type Repository struct {
	db      DBTX
	timeout time.Duration
}

// Option configures the repository
type Option func(*Repository)

// WithQueryTimeout bounds every query. Zero leaves queries bounded only by the caller's context.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.timeout = d
	}
}

// New creates a new PostgreSQL repository
func New(db DBTX, opts ...Option) *Repository {
	r := &Repository{db: db, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Repository {
	return New(pool, opts...)
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS content_items (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	excerpt    TEXT NOT NULL DEFAULT '',
	slug       TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL,
	tags       TEXT[] NOT NULL DEFAULT '{}',
	featured   BOOLEAN NOT NULL DEFAULT FALSE,
	published  BOOLEAN NOT NULL DEFAULT FALSE,
	image_url  TEXT NOT NULL DEFAULT '',
	image_alt  TEXT NOT NULL DEFAULT '',
	author_id  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	read_time  INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS content_items_slug_key ON content_items (slug) WHERE slug <> '';
CREATE INDEX IF NOT EXISTS content_items_listing_idx ON content_items (published, category, created_at DESC, id ASC);
CREATE TABLE IF NOT EXISTS category_index (
	slug       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// EnsureSchema creates the tables and indexes when they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sharevault.Unavailable(operation, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return sharevault.Unavailable(operation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return sharevault.ErrSlugConflict
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case pgErr.Code == "42P01": // undefined_table
			return fmt.Errorf("table does not exist - run EnsureSchema: %w", err)
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03", // shutdown, cannot_connect_now
			pgErr.Code == "53300": // too_many_connections
			return sharevault.Unavailable(operation, err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const itemColumns = `id, title, body, excerpt, slug, category, tags, featured, published,
	image_url, image_alt, author_id, created_at, updated_at, read_time`

func scanItem(row pgx.Row) (*sharevault.ContentItem, error) {
	var item sharevault.ContentItem
	err := row.Scan(
		&item.ID, &item.Title, &item.Body, &item.Excerpt, &item.Slug, &item.Category,
		&item.Tags, &item.Featured, &item.Published, &item.ImageURL, &item.ImageAlt,
		&item.AuthorID, &item.CreatedAt, &item.UpdatedAt, &item.ReadTimeMinutes)
	if err != nil {
		return nil, err
	}
	if len(item.Tags) == 0 {
		item.Tags = nil
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

// where renders the scope predicate, numbering placeholders from 1.
func where(scope sharevault.Scope) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if !scope.IncludeDrafts {
		clauses = append(clauses, "published")
	}
	if !scope.IsAll() {
		args = append(args, scope.Category)
		clauses = append(clauses, "category = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *Repository) FetchPage(ctx context.Context, scope sharevault.Scope, offset, limit int) ([]sharevault.ContentItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	clause, args := where(scope)
	query := "SELECT " + itemColumns + " FROM content_items" + clause + " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	args = append(args, max(offset, 0))
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("fetch page", err)
	}
	defer rows.Close()

	items := []sharevault.ContentItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, r.handlePostgresError("fetch page", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("fetch page", err)
	}
	return items, nil
}

func (r *Repository) CountMatching(ctx context.Context, scope sharevault.Scope) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := scope.Validate(); err != nil {
		return 0, err
	}

	clause, args := where(scope)
	var n int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM content_items"+clause, args...).Scan(&n); err != nil {
		return 0, r.handlePostgresError("count matching", err)
	}
	return n, nil
}

func (r *Repository) CategoryCounts(ctx context.Context) ([]sharevault.CategorySummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT category, COUNT(*) FROM content_items
		WHERE published
		GROUP BY category
		ORDER BY category COLLATE "C"`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("category counts", err)
	}
	defer rows.Close()

	summaries := []sharevault.CategorySummary{}
	for rows.Next() {
		var s sharevault.CategorySummary
		if err := rows.Scan(&s.Name, &s.Count); err != nil {
			return nil, r.handlePostgresError("category counts", err)
		}
		s.Slug = sharevault.ToSlug(s.Name)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("category counts", err)
	}
	return summaries, nil
}

func (r *Repository) getOne(ctx context.Context, op, column, value string) (*sharevault.ContentItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + itemColumns + " FROM content_items WHERE " + column + " = $1"
	item, err := scanItem(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sharevault.ErrNotFound
		}
		return nil, r.handlePostgresError(op, err)
	}
	return item, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*sharevault.ContentItem, error) {
	return r.getOne(ctx, "get by id", "id", id)
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*sharevault.ContentItem, error) {
	if slug == "" {
		return nil, sharevault.ErrNotFound
	}
	return r.getOne(ctx, "get by slug", "slug", slug)
}

func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM content_items WHERE slug = $1 AND slug <> '')", slug).Scan(&exists)
	if err != nil {
		return false, r.handlePostgresError("slug exists", err)
	}
	return exists, nil
}

func (r *Repository) Create(ctx context.Context, item *sharevault.ContentItem) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO content_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		item.ID, item.Title, item.Body, item.Excerpt, item.Slug, item.Category,
		tagsOrEmpty(item.Tags), item.Featured, item.Published, item.ImageURL, item.ImageAlt,
		item.AuthorID, item.CreatedAt, item.UpdatedAt, item.ReadTimeMinutes)
	if err != nil {
		return r.handlePostgresError("create item", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, item *sharevault.ContentItem) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE content_items SET
			title = $2, body = $3, excerpt = $4, slug = $5, category = $6, tags = $7,
			featured = $8, published = $9, image_url = $10, image_alt = $11,
			author_id = $12, updated_at = $13, read_time = $14
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		item.ID, item.Title, item.Body, item.Excerpt, item.Slug, item.Category,
		tagsOrEmpty(item.Tags), item.Featured, item.Published, item.ImageURL, item.ImageAlt,
		item.AuthorID, item.UpdatedAt, item.ReadTimeMinutes)
	if err != nil {
		return r.handlePostgresError("update item", err)
	}
	if tag.RowsAffected() == 0 {
		return sharevault.ErrNotFound
	}
	return nil
}

func (r *Repository) IndexCategory(ctx context.Context, slug, name string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// the no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO category_index (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING name`

	var resolved string
	if err := r.db.QueryRow(ctx, query, slug, name).Scan(&resolved); err != nil {
		return "", r.handlePostgresError("index category", err)
	}
	return resolved, nil
}

func (r *Repository) ResolveCategorySlug(ctx context.Context, slug string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var name string
	err := r.db.QueryRow(ctx, "SELECT name FROM category_index WHERE slug = $1", slug).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", sharevault.ErrCategoryNotIndexed
		}
		return "", r.handlePostgresError("resolve category", err)
	}
	return name, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var _ sharevault.Repository = (*Repository)(nil)
