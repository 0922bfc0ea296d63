package sharevault

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ToSlug converts a human name into its URL-safe slug.
//
// The name is lower-cased, every character outside [a-z0-9], whitespace and
// '-' is removed, whitespace runs become a single hyphen, repeated hyphens
// collapse, and leading/trailing hyphens are trimmed. ToSlug is idempotent.
func ToSlug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return b.String()
}

// FromSlug is the heuristic inverse of ToSlug: segments are title-cased and
// joined with single spaces.
//
// The inverse is lossy. "R&D Tips" slugifies to "rd-tips" which comes back as
// "Rd Tips", so FromSlug must not be used where exact category identity
// matters. Use the category index instead.
func FromSlug(slug string) string {
	parts := strings.Split(slug, "-")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		words = append(words, string(unicode.ToTitle(r))+p[size:])
	}
	return strings.Join(words, " ")
}

// UniqueSlug returns base, or base suffixed with -2, -3, ... when taken
// reports the candidate as already in use.
func UniqueSlug(base string, taken func(string) bool) string {
	if base == "" {
		base = "post"
	}
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}
