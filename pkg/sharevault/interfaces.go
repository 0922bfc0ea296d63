package sharevault

import (
	"context"
	"io"
)

// Repository defines the interface over the backing content store.
//
// Every listing method returns items ordered by Less. Implementations classify
// failures: an unreachable or timed out store yields an error matching
// ErrRepositoryUnavailable, a malformed scope one matching ErrInvalidScope.
type Repository interface {
	// FetchPage returns the items matching scope in the window [offset, offset+limit).
	// A limit <= 0 returns every item from offset on.
	FetchPage(ctx context.Context, scope Scope, offset, limit int) ([]ContentItem, error)

	// CountMatching returns how many items match scope, using the same predicate as FetchPage
	CountMatching(ctx context.Context, scope Scope) (int, error)

	// CategoryCounts returns published item counts per category, sorted by name
	CategoryCounts(ctx context.Context) ([]CategorySummary, error)

	GetByID(ctx context.Context, id string) (*ContentItem, error)
	GetBySlug(ctx context.Context, slug string) (*ContentItem, error)
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Create stores a new item. Returns ErrSlugConflict if the slug is taken.
	Create(ctx context.Context, item *ContentItem) error

	// Update replaces an existing item. Returns ErrNotFound if absent.
	Update(ctx context.Context, item *ContentItem) error

	// IndexCategory records slug -> name unless slug is already indexed.
	// It reports the name the slug resolves to after the call.
	IndexCategory(ctx context.Context, slug, name string) (string, error)

	// ResolveCategorySlug returns the indexed category for slug or ErrCategoryNotIndexed
	ResolveCategorySlug(ctx context.Context, slug string) (string, error)
}

// BlobStore defines the interface for object storage backends used by uploads
type BlobStore interface {
	// Put stores the content of reader under key
	Put(ctx context.Context, key string, reader io.Reader, params PutParams) error

	// PublicURL returns the URL under which key is served
	PublicURL(key string) string
}

// PutParams carries the attributes stored with an object
type PutParams struct {
	ContentType string
	Size        int64
	// OriginalName is kept as object metadata only, never as part of the key
	OriginalName string
}
