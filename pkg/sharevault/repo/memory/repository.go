package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/tendant/sharevault/pkg/sharevault"
)

// Repository implements sharevault.Repository using in-memory storage
type Repository struct {
	mu         sync.RWMutex
	items      map[string]*sharevault.ContentItem
	slugs      map[string]string // slug -> item id
	categories map[string]string // category slug -> category name
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		items:      make(map[string]*sharevault.ContentItem),
		slugs:      make(map[string]string),
		categories: make(map[string]string),
	}
}

func clone(item *sharevault.ContentItem) *sharevault.ContentItem {
	c := *item
	c.Tags = slices.Clone(item.Tags)
	return &c
}

// matching returns the items in scope, ordered. Callers must hold the read lock.
func (r *Repository) matching(scope sharevault.Scope) []*sharevault.ContentItem {
	var out []*sharevault.ContentItem
	for _, item := range r.items {
		if scope.Matches(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return sharevault.Less(out[i], out[j])
	})
	return out
}

func (r *Repository) FetchPage(ctx context.Context, scope sharevault.Scope, offset, limit int) ([]sharevault.ContentItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, sharevault.Unavailable("fetch_page", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.matching(scope)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []sharevault.ContentItem{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]sharevault.ContentItem, 0, end-offset)
	for _, item := range all[offset:end] {
		page = append(page, *clone(item))
	}
	return page, nil
}

func (r *Repository) CountMatching(ctx context.Context, scope sharevault.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, item := range r.items {
		if scope.Matches(item) {
			n++
		}
	}
	return n, nil
}

func (r *Repository) CategoryCounts(ctx context.Context) ([]sharevault.CategorySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, item := range r.items {
		if item.Published {
			counts[item.Category]++
		}
	}

	out := make([]sharevault.CategorySummary, 0, len(counts))
	for name, n := range counts {
		out = append(out, sharevault.CategorySummary{Name: name, Slug: sharevault.ToSlug(name), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*sharevault.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[id]
	if !exists {
		return nil, sharevault.ErrNotFound
	}
	return clone(item), nil
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*sharevault.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.slugs[slug]
	if !exists {
		return nil, sharevault.ErrNotFound
	}
	return clone(r.items[id]), nil
}

func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.slugs[slug]
	return exists, nil
}

func (r *Repository) Create(ctx context.Context, item *sharevault.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	if item.Slug != "" {
		if _, taken := r.slugs[item.Slug]; taken {
			return sharevault.ErrSlugConflict
		}
		r.slugs[item.Slug] = item.ID
	}
	r.items[item.ID] = clone(item)
	return nil
}

func (r *Repository) Update(ctx context.Context, item *sharevault.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.items[item.ID]
	if !exists {
		return sharevault.ErrNotFound
	}
	if item.Slug != existing.Slug {
		if owner, taken := r.slugs[item.Slug]; taken && owner != item.ID {
			return sharevault.ErrSlugConflict
		}
		delete(r.slugs, existing.Slug)
		if item.Slug != "" {
			r.slugs[item.Slug] = item.ID
		}
	}
	r.items[item.ID] = clone(item)
	return nil
}

func (r *Repository) IndexCategory(ctx context.Context, slug, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.categories[slug]; ok {
		return existing, nil
	}
	r.categories[slug] = name
	return name, nil
}

func (r *Repository) ResolveCategorySlug(ctx context.Context, slug string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.categories[slug]
	if !ok {
		return "", sharevault.ErrCategoryNotIndexed
	}
	return name, nil
}

var _ sharevault.Repository = (*Repository)(nil)
