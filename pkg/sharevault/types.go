package sharevault

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ContentItem is one publishable unit (a post or a quote).
type ContentItem struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	Body            string    `json:"body" bson:"body"`
	Excerpt         string    `json:"excerpt" bson:"excerpt"`
	Slug            string    `json:"slug" bson:"slug"`
	Category        string    `json:"category" bson:"category"`
	Tags            []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	Featured        bool      `json:"featured" bson:"featured"`
	Published       bool      `json:"published" bson:"published"`
	ImageURL        string    `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	ImageAlt        string    `json:"imageAlt,omitempty" bson:"imageAlt,omitempty"`
	AuthorID        string    `json:"authorId" bson:"authorId"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
	ReadTimeMinutes int       `json:"readTime,omitempty" bson:"readTime,omitempty"`
}

// HasImage reports whether the item carries an image reference.
func (c *ContentItem) HasImage() bool {
	return strings.TrimSpace(c.ImageURL) != ""
}

// CategorySummary pairs a category with the live count of published items in it.
type CategorySummary struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Page is a window over an ordered collection.
type Page[T any] struct {
	Items  []T `json:"items"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// CategoryPage is a page of posts within one category, along with how the
// category was resolved from its slug.
type CategoryPage struct {
	Page[ContentItem]
	Category string `json:"category"`
	Slug     string `json:"slug"`
	// Indexed is false when the category name came from the FromSlug fallback.
	Indexed bool `json:"-"`
}

// maxCategoryLength bounds category names accepted in a scope.
const maxCategoryLength = 200

// Scope is the filter predicate applied to the content collection.
type Scope struct {
	// Category restricts the scope to items whose category equals this value
	// exactly. Empty means all items.
	Category string
	// IncludeDrafts also matches unpublished items. Public listings never set it.
	IncludeDrafts bool
}

// AllItems is the scope of every published item.
func AllItems() Scope {
	return Scope{}
}

// InCategory is the scope of published items in the named category.
func InCategory(name string) Scope {
	return Scope{Category: name}
}

// IsAll reports whether the scope has no category filter.
func (s Scope) IsAll() bool {
	return s.Category == ""
}

// Validate checks that the category filter is well formed.
func (s Scope) Validate() error {
	if s.Category == "" {
		return nil
	}
	if strings.TrimSpace(s.Category) == "" {
		return fmt.Errorf("%w: blank category", ErrInvalidScope)
	}
	if len(s.Category) > maxCategoryLength {
		return fmt.Errorf("%w: category longer than %d bytes", ErrInvalidScope, maxCategoryLength)
	}
	for _, r := range s.Category {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: category contains control characters", ErrInvalidScope)
		}
	}
	return nil
}

// Matches reports whether item falls within the scope.
func (s Scope) Matches(item *ContentItem) bool {
	if !s.IncludeDrafts && !item.Published {
		return false
	}
	return s.Category == "" || item.Category == s.Category
}

// Less orders items by creation time descending, then identifier ascending.
// Every repository must return items in this order.
func Less(a, b *ContentItem) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// BackfillReport summarizes a slug backfill run.
type BackfillReport struct {
	Scanned           int      `json:"scanned"`
	SlugsAssigned     int      `json:"slugsAssigned"`
	CategoriesIndexed int      `json:"categoriesIndexed"`
	Assigned          []string `json:"assigned,omitempty"`
}
