package sharevault

import (
	"context"

	"github.com/tendant/sharevault/pkg/sharevault/cache"
)

// Service defines the main interface for the ShareVault content core
type Service interface {
	// Listing operations
	ListPosts(ctx context.Context, req PageRequest) (*Page[ContentItem], error)
	ListCategories(ctx context.Context) ([]CategorySummary, error)
	ListCategoryPosts(ctx context.Context, slug string, req PageRequest) (*CategoryPage, error)
	GetPost(ctx context.Context, slug string) (*ContentItem, error)

	// Authoring operations
	CreatePost(ctx context.Context, req CreatePostRequest) (*ContentItem, error)
	UpdatePost(ctx context.Context, req UpdatePostRequest) (*ContentItem, error)
	BackfillSlugs(ctx context.Context) (*BackfillReport, error)

	// Feed operations for sitemaps
	SitemapItems(ctx context.Context) ([]ContentItem, error)
	ImageItems(ctx context.Context) ([]ContentItem, error)

	// Cache operations
	Invalidate(ctx context.Context, tags ...string) int
	Policies() cache.Policies
	CacheStats() cache.Stats
}
