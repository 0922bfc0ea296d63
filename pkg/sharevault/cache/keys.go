package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator separates the policy namespace from the key proper.
const KeySeparator = "::"

// CategoriesKey is the key of the category listing with live counts.
const CategoriesKey = "categories-with-counts"

// PostsPageKey is the key of one page of the global post listing.
func PostsPageKey(offset, limit int) string {
	return "posts:page:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
}

// CategoryPageKey is the key of one page of a category listing. The category
// name is hashed so that arbitrary names stay delimiter-safe.
func CategoryPageKey(category string, offset, limit int) string {
	return "category:" + HashName(category) + ":page:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
}

// CategorySlugKey is the key of the category name a canonical slug resolves to.
func CategorySlugKey(slug string) string {
	return "category-slug:" + slug
}

// PostKey is the key of a single post.
func PostKey(slug string) string {
	return "post:" + slug
}

// HashName returns a short stable hash of name.
func HashName(name string) string {
	return strconv.FormatUint(xxhash.Sum64String(name), 16)
}

func namespaced(policy, key string) string {
	var b strings.Builder
	b.Grow(len(policy) + len(KeySeparator) + len(key))
	b.WriteString(policy)
	b.WriteString(KeySeparator)
	b.WriteString(key)
	return b.String()
}
