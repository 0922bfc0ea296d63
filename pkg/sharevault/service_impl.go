package sharevault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
)

// wordsPerMinute is the reading speed used to estimate read time.
const wordsPerMinute = 200

// service implements the Service interface
type service struct {
	repository Repository
	cache      *cache.Engine
	policies   cache.Policies
	logger     *slog.Logger
	now        func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithCache sets the memoization engine. Without one every read hits the repository.
func WithCache(engine *cache.Engine) Option {
	return func(s *service) {
		s.cache = engine
	}
}

// WithPolicies overrides the default cache policies
func WithPolicies(policies cache.Policies) Option {
	return func(s *service) {
		s.policies = policies
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		policies: cache.DefaultPolicies(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	return s, nil
}

// Listing operations

func (s *service) ListPosts(ctx context.Context, req PageRequest) (*Page[ContentItem], error) {
	return cache.GetOrCompute(ctx, s.cache, cache.PostsPageKey(req.Offset, req.Limit), s.policies.Posts,
		func(ctx context.Context) (*Page[ContentItem], error) {
			return s.fetchWindow(ctx, AllItems(), req)
		})
}

func (s *service) fetchWindow(ctx context.Context, scope Scope, req PageRequest) (*Page[ContentItem], error) {
	items, err := s.repository.FetchPage(ctx, scope, req.Offset, req.Limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repository.CountMatching(ctx, scope)
	if err != nil {
		return nil, err
	}
	return req.Window(items, total), nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategorySummary, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.CategoriesKey, s.policies.Categories,
		func(ctx context.Context) ([]CategorySummary, error) {
			counts, err := s.repository.CategoryCounts(ctx)
			if err != nil {
				return nil, err
			}
			for i := range counts {
				if counts[i].Slug == "" {
					counts[i].Slug = ToSlug(counts[i].Name)
				}
			}
			return counts, nil
		})
}

type resolvedCategory struct {
	name    string
	indexed bool
}

// resolveCategory maps a route slug back to a category name. The category
// index is authoritative; FromSlug is only used for slugs it does not know.
// Resolutions are cached under the categories tag.
func (s *service) resolveCategory(ctx context.Context, slug string) (string, bool, error) {
	r, err := cache.GetOrCompute(ctx, s.cache, cache.CategorySlugKey(slug), s.policies.Categories,
		func(ctx context.Context) (resolvedCategory, error) {
			name, err := s.repository.ResolveCategorySlug(ctx, slug)
			switch {
			case err == nil:
				return resolvedCategory{name: name, indexed: true}, nil
			case errors.Is(err, ErrCategoryNotIndexed):
				name = FromSlug(slug)
				s.logger.DebugContext(ctx, "category slug not indexed, using heuristic name", "slug", slug, "category", name)
				return resolvedCategory{name: name}, nil
			default:
				return resolvedCategory{}, err
			}
		})
	if err != nil {
		return "", false, err
	}
	return r.name, r.indexed, nil
}

func (s *service) ListCategoryPosts(ctx context.Context, slug string, req PageRequest) (*CategoryPage, error) {
	canonical := ToSlug(slug)
	if canonical == "" {
		return &CategoryPage{Page: *req.Window(nil, 0), Slug: slug}, nil
	}

	name, indexed, err := s.resolveCategory(ctx, canonical)
	if err != nil {
		return nil, err
	}
	scope := InCategory(name)
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	return cache.GetOrCompute(ctx, s.cache, cache.CategoryPageKey(name, req.Offset, req.Limit), s.policies.CategoryPosts,
		func(ctx context.Context) (*CategoryPage, error) {
			page, err := s.fetchWindow(ctx, scope, req)
			if err != nil {
				return nil, err
			}
			return &CategoryPage{Page: *page, Category: name, Slug: canonical, Indexed: indexed}, nil
		})
}

func (s *service) GetPost(ctx context.Context, slug string) (*ContentItem, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.PostKey(slug), s.policies.Post,
		func(ctx context.Context) (*ContentItem, error) {
			item, err := s.repository.GetBySlug(ctx, slug)
			if err != nil {
				return nil, err
			}
			if !item.Published {
				return nil, ErrNotFound
			}
			return item, nil
		}, cache.PostTag(slug))
}

// Authoring operations

func (s *service) CreatePost(ctx context.Context, req CreatePostRequest) (*ContentItem, error) {
	if err := req.Validate(); err != nil {
		return nil, toValidationError(err)
	}

	slug, err := s.uniqueSlug(ctx, ToSlug(req.Title))
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := &ContentItem{
		ID:              uuid.New().String(),
		Title:           strings.TrimSpace(req.Title),
		Body:            req.Body,
		Excerpt:         req.Excerpt,
		Slug:            slug,
		Category:        strings.TrimSpace(req.Category),
		Tags:            req.Tags,
		Featured:        req.Featured,
		Published:       req.Published,
		ImageURL:        req.ImageURL,
		ImageAlt:        req.ImageAlt,
		AuthorID:        req.AuthorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		ReadTimeMinutes: req.ReadTimeMinutes,
	}
	if item.ReadTimeMinutes == 0 {
		item.ReadTimeMinutes = EstimateReadTime(item.Body)
	}

	if err := s.repository.Create(ctx, item); err != nil {
		return nil, &RepositoryError{Op: "create", Err: err}
	}
	if _, err := s.indexCategory(ctx, item.Category); err != nil {
		return nil, err
	}

	s.invalidateWrite(ctx, item.Slug)
	s.logger.InfoContext(ctx, "post created", "id", item.ID, "slug", item.Slug, "category", item.Category)
	return item, nil
}

func (s *service) UpdatePost(ctx context.Context, req UpdatePostRequest) (*ContentItem, error) {
	if err := req.Validate(); err != nil {
		return nil, toValidationError(err)
	}

	item, err := s.repository.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	item.Title = strings.TrimSpace(req.Title)
	item.Body = req.Body
	item.Excerpt = req.Excerpt
	item.Category = strings.TrimSpace(req.Category)
	item.Tags = req.Tags
	item.Featured = req.Featured
	item.Published = req.Published
	item.ImageURL = req.ImageURL
	item.ImageAlt = req.ImageAlt
	item.ReadTimeMinutes = req.ReadTimeMinutes
	if item.ReadTimeMinutes == 0 {
		item.ReadTimeMinutes = EstimateReadTime(item.Body)
	}
	item.UpdatedAt = s.now()

	if err := s.repository.Update(ctx, item); err != nil {
		return nil, &RepositoryError{Op: "update", Err: err}
	}
	if _, err := s.indexCategory(ctx, item.Category); err != nil {
		return nil, err
	}

	s.invalidateWrite(ctx, item.Slug)
	s.logger.InfoContext(ctx, "post updated", "id", item.ID, "slug", item.Slug)
	return item, nil
}

// BackfillSlugs assigns slugs to items that have none and indexes every
// category. This is the only path allowed to set a slug after creation.
func (s *service) BackfillSlugs(ctx context.Context) (*BackfillReport, error) {
	items, err := s.repository.FetchPage(ctx, Scope{IncludeDrafts: true}, 0, 0)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{Scanned: len(items)}
	taken := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Slug != "" {
			taken[item.Slug] = true
		}
	}

	categories := make(map[string]bool)
	for i := range items {
		item := &items[i]
		categories[item.Category] = true
		if item.Slug != "" {
			continue
		}

		item.Slug = UniqueSlug(ToSlug(item.Title), func(c string) bool { return taken[c] })
		taken[item.Slug] = true
		item.UpdatedAt = s.now()
		if err := s.repository.Update(ctx, item); err != nil {
			return report, &RepositoryError{Op: "backfill", Err: err}
		}
		report.SlugsAssigned++
		report.Assigned = append(report.Assigned, item.Slug)
	}

	for name := range categories {
		if ToSlug(name) == "" {
			s.logger.WarnContext(ctx, "category has no usable slug", "category", name)
			continue
		}
		if _, err := s.indexCategory(ctx, name); err != nil {
			return report, err
		}
		report.CategoriesIndexed++
	}

	s.Invalidate(ctx, cache.TagPosts, cache.TagCategories, cache.TagSitemap)
	for _, slug := range report.Assigned {
		s.Invalidate(ctx, cache.PostTag(slug))
	}
	s.logger.InfoContext(ctx, "slug backfill finished",
		"scanned", report.Scanned, "assigned", report.SlugsAssigned, "categories", report.CategoriesIndexed)
	return report, nil
}

func (s *service) uniqueSlug(ctx context.Context, base string) (string, error) {
	var lookupErr error
	slug := UniqueSlug(base, func(candidate string) bool {
		if lookupErr != nil {
			return false
		}
		exists, err := s.repository.SlugExists(ctx, candidate)
		if err != nil {
			lookupErr = err
			return false
		}
		return exists
	})
	if lookupErr != nil {
		return "", lookupErr
	}
	return slug, nil
}

func (s *service) indexCategory(ctx context.Context, name string) (string, error) {
	slug := ToSlug(name)
	resolved, err := s.repository.IndexCategory(ctx, slug, name)
	if err != nil {
		return "", &RepositoryError{Op: "index_category", Err: err}
	}
	if resolved != name {
		s.logger.WarnContext(ctx, "category slug already indexed for a different name",
			"slug", slug, "category", name, "indexed", resolved)
	}
	return resolved, nil
}

func (s *service) invalidateWrite(ctx context.Context, slug string) {
	s.Invalidate(ctx, cache.TagPosts, cache.TagCategories, cache.TagSitemap, cache.PostTag(slug))
}

// Feed operations

func (s *service) SitemapItems(ctx context.Context) ([]ContentItem, error) {
	return cache.GetOrCompute(ctx, s.cache, "all", s.policies.Sitemap,
		func(ctx context.Context) ([]ContentItem, error) {
			return s.repository.FetchPage(ctx, AllItems(), 0, 0)
		})
}

func (s *service) ImageItems(ctx context.Context) ([]ContentItem, error) {
	return cache.GetOrCompute(ctx, s.cache, "images", s.policies.ImageSitemap,
		func(ctx context.Context) ([]ContentItem, error) {
			items, err := s.repository.FetchPage(ctx, AllItems(), 0, 0)
			if err != nil {
				return nil, err
			}
			withImages := make([]ContentItem, 0, len(items))
			for _, item := range items {
				if item.HasImage() {
					withImages = append(withImages, item)
				}
			}
			return withImages, nil
		})
}

// Cache operations

func (s *service) Invalidate(ctx context.Context, tags ...string) int {
	return s.cache.Invalidate(ctx, tags...)
}

func (s *service) Policies() cache.Policies {
	return s.policies
}

func (s *service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// EstimateReadTime returns the minutes needed to read body at 200 words per
// minute, rounded up. An empty body reads in 0 minutes.
func EstimateReadTime(body string) int {
	words := len(strings.Fields(body))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}
