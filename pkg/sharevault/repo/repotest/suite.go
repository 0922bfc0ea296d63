// Package repotest holds the behaviour every sharevault.Repository must show,
// run against each backend by its own tests.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) sharevault.Repository

// Base is the creation time of the first fixture item.
var Base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Item builds a published fixture item. Items with the same minute share a
// creation time so that ordering falls back to the identifier.
func Item(id, category string, minute int) *sharevault.ContentItem {
	created := Base.Add(time.Duration(minute) * time.Minute)
	return &sharevault.ContentItem{
		ID:        id,
		Title:     "Title " + id,
		Body:      "body of " + id,
		Slug:      "slug-" + id,
		Category:  category,
		Published: true,
		AuthorID:  "author-1",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Seed creates n items spread over the given categories and returns them in
// creation order.
func Seed(t *testing.T, repo sharevault.Repository, n int, categories ...string) []*sharevault.ContentItem {
	t.Helper()
	ctx := context.Background()
	if len(categories) == 0 {
		categories = []string{"General"}
	}

	items := make([]*sharevault.ContentItem, 0, n)
	for i := 0; i < n; i++ {
		// every third item shares its minute with the previous one
		minute := i - i/3
		item := Item(fmt.Sprintf("item-%03d", i), categories[i%len(categories)], minute)
		require.NoError(t, repo.Create(ctx, item))
		items = append(items, item)
	}
	return items
}

// Run executes the conformance suite.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("PageLengthMatchesWindow", func(t *testing.T) {
		repo := factory(t)
		Seed(t, repo, 25, "Alpha", "Beta")

		total, err := repo.CountMatching(ctx, sharevault.AllItems())
		require.NoError(t, err)
		require.Equal(t, 25, total)

		for _, tc := range []struct{ offset, limit int }{
			{0, 10}, {10, 10}, {20, 10}, {24, 1}, {25, 5}, {40, 5}, {0, 100}, {3, 7},
		} {
			page, err := repo.FetchPage(ctx, sharevault.AllItems(), tc.offset, tc.limit)
			require.NoError(t, err)
			expected := min(tc.limit, max(0, total-tc.offset))
			assert.Len(t, page, expected, "offset=%d limit=%d", tc.offset, tc.limit)
		}
	})

	t.Run("AdjacentPagesDoNotOverlap", func(t *testing.T) {
		repo := factory(t)
		Seed(t, repo, 30, "Alpha")

		all, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 30)

		const n = 8
		first, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, n)
		require.NoError(t, err)
		second, err := repo.FetchPage(ctx, sharevault.AllItems(), n, n)
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, item := range append(first, second...) {
			assert.False(t, seen[item.ID], "duplicate %s", item.ID)
			seen[item.ID] = true
		}
		for i := 0; i < 2*n; i++ {
			assert.True(t, seen[all[i].ID], "missing %s", all[i].ID)
		}
	})

	t.Run("OrderIsCreatedDescThenID", func(t *testing.T) {
		repo := factory(t)
		require.NoError(t, repo.Create(ctx, Item("b", "X", 1)))
		require.NoError(t, repo.Create(ctx, Item("a", "X", 1)))
		require.NoError(t, repo.Create(ctx, Item("c", "X", 2)))
		require.NoError(t, repo.Create(ctx, Item("d", "X", 0)))

		items, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		assert.Equal(t, []string{"c", "a", "b", "d"}, ids)
	})

	t.Run("NewItemsDoNotShiftEarlierPageIntoDuplicates", func(t *testing.T) {
		repo := factory(t)
		Seed(t, repo, 10, "Alpha")

		first, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 5)
		require.NoError(t, err)

		// an item older than everything lands at the end
		require.NoError(t, repo.Create(ctx, Item("old", "Alpha", -100)))

		second, err := repo.FetchPage(ctx, sharevault.AllItems(), 5, 5)
		require.NoError(t, err)
		for _, a := range first {
			for _, b := range second {
				assert.NotEqual(t, a.ID, b.ID)
			}
		}
	})

	t.Run("CategoryCountsSumToTotal", func(t *testing.T) {
		repo := factory(t)
		Seed(t, repo, 17, "Alpha", "Beta", "Self Discipline")

		draft := Item("draft", "Alpha", 50)
		draft.Published = false
		require.NoError(t, repo.Create(ctx, draft))

		summaries, err := repo.CategoryCounts(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 3)

		sum := 0
		for _, s := range summaries {
			n, err := repo.CountMatching(ctx, sharevault.InCategory(s.Name))
			require.NoError(t, err)
			assert.Equal(t, n, s.Count, s.Name)
			sum += n
		}
		total, err := repo.CountMatching(ctx, sharevault.AllItems())
		require.NoError(t, err)
		assert.Equal(t, total, sum)
		assert.Equal(t, 17, total)

		assert.Equal(t, "Alpha", summaries[0].Name)
		assert.Equal(t, "Self Discipline", summaries[2].Name)
	})

	t.Run("CategoryScopeIsExactMatch", func(t *testing.T) {
		repo := factory(t)
		require.NoError(t, repo.Create(ctx, Item("1", "Self-Discipline", 1)))
		require.NoError(t, repo.Create(ctx, Item("2", "Self Discipline", 2)))

		items, err := repo.FetchPage(ctx, sharevault.InCategory("Self Discipline"), 0, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "2", items[0].ID)

		n, err := repo.CountMatching(ctx, sharevault.InCategory("Unknown"))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("DraftsHiddenFromPublicScope", func(t *testing.T) {
		repo := factory(t)
		draft := Item("draft", "Alpha", 1)
		draft.Published = false
		require.NoError(t, repo.Create(ctx, draft))
		require.NoError(t, repo.Create(ctx, Item("live", "Alpha", 0)))

		public, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 0)
		require.NoError(t, err)
		assert.Len(t, public, 1)

		all, err := repo.FetchPage(ctx, sharevault.Scope{IncludeDrafts: true}, 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("InvalidScope", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.FetchPage(ctx, sharevault.InCategory("bad\x00name"), 0, 10)
		assert.ErrorIs(t, err, sharevault.ErrInvalidScope)
		assert.False(t, sharevault.IsRetryable(err))

		_, err = repo.CountMatching(ctx, sharevault.InCategory("   "))
		assert.ErrorIs(t, err, sharevault.ErrInvalidScope)
	})

	t.Run("LookupsAndSlugUniqueness", func(t *testing.T) {
		repo := factory(t)
		item := Item("one", "Alpha", 1)
		item.Tags = []string{"a", "b"}
		require.NoError(t, repo.Create(ctx, item))

		got, err := repo.GetBySlug(ctx, item.Slug)
		require.NoError(t, err)
		assert.Equal(t, item.ID, got.ID)
		assert.Equal(t, []string{"a", "b"}, got.Tags)
		assert.True(t, item.CreatedAt.Equal(got.CreatedAt))

		got, err = repo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.Slug, got.Slug)

		_, err = repo.GetBySlug(ctx, "missing")
		assert.ErrorIs(t, err, sharevault.ErrNotFound)
		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, sharevault.ErrNotFound)

		exists, err := repo.SlugExists(ctx, item.Slug)
		require.NoError(t, err)
		assert.True(t, exists)

		dup := Item("two", "Alpha", 2)
		dup.Slug = item.Slug
		assert.ErrorIs(t, repo.Create(ctx, dup), sharevault.ErrSlugConflict)
	})

	t.Run("ItemsWithoutSlugCoexist", func(t *testing.T) {
		repo := factory(t)
		a := Item("a", "Alpha", 1)
		a.Slug = ""
		b := Item("b", "Alpha", 2)
		b.Slug = ""
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		a.Slug = "assigned"
		require.NoError(t, repo.Update(ctx, a))
		got, err := repo.GetBySlug(ctx, "assigned")
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
	})

	t.Run("Update", func(t *testing.T) {
		repo := factory(t)
		item := Item("one", "Alpha", 1)
		require.NoError(t, repo.Create(ctx, item))

		item.Title = "Changed"
		item.Category = "Beta"
		require.NoError(t, repo.Update(ctx, item))

		got, err := repo.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "Changed", got.Title)
		assert.Equal(t, "Beta", got.Category)

		assert.ErrorIs(t, repo.Update(ctx, Item("ghost", "Alpha", 1)), sharevault.ErrNotFound)

		other := Item("two", "Alpha", 2)
		require.NoError(t, repo.Create(ctx, other))
		other.Slug = item.Slug
		assert.ErrorIs(t, repo.Update(ctx, other), sharevault.ErrSlugConflict)
	})

	t.Run("CategoryIndexFirstWriterWins", func(t *testing.T) {
		repo := factory(t)

		_, err := repo.ResolveCategorySlug(ctx, "r-d")
		assert.ErrorIs(t, err, sharevault.ErrCategoryNotIndexed)

		name, err := repo.IndexCategory(ctx, "rd-tips", "R&D Tips")
		require.NoError(t, err)
		assert.Equal(t, "R&D Tips", name)

		name, err = repo.IndexCategory(ctx, "rd-tips", "RD Tips")
		require.NoError(t, err)
		assert.Equal(t, "R&D Tips", name)

		name, err = repo.ResolveCategorySlug(ctx, "rd-tips")
		require.NoError(t, err)
		assert.Equal(t, "R&D Tips", name)
	})
}
