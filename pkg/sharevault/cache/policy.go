package cache

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidation tags shared by the service and the revalidate webhook.
const (
	TagPosts      = "posts"
	TagCategories = "categories"
	TagSitemap    = "sitemap"
)

// PostTag is the tag carried by the cached copy of a single post.
func PostTag(slug string) string {
	return "post:" + slug
}

// Policy describes how one content class is cached.
//
// TTL governs application-level memoization. MaxAge, SharedMaxAge and
// StaleWhileRevalidate govern the outbound Cache-Control header for browsers
// and edge caches. The two sets are independent.
type Policy struct {
	Name                 string
	TTL                  time.Duration
	MaxAge               time.Duration
	SharedMaxAge         time.Duration
	StaleWhileRevalidate time.Duration
	Tags                 []string
}

// Memoized reports whether values under this policy are kept in-process.
func (p Policy) Memoized() bool {
	return p.TTL > 0
}

// CacheControl renders the Cache-Control header value for the policy.
func (p Policy) CacheControl() string {
	if p.MaxAge <= 0 && p.SharedMaxAge <= 0 && p.StaleWhileRevalidate <= 0 {
		return "no-store"
	}

	directives := []string{"public", fmt.Sprintf("max-age=%d", seconds(p.MaxAge))}
	if p.SharedMaxAge > 0 {
		directives = append(directives, fmt.Sprintf("s-maxage=%d", seconds(p.SharedMaxAge)))
	}
	if p.StaleWhileRevalidate > 0 {
		directives = append(directives, fmt.Sprintf("stale-while-revalidate=%d", seconds(p.StaleWhileRevalidate)))
	}
	return strings.Join(directives, ", ")
}

// Apply sets the Cache-Control header on h.
func (p Policy) Apply(h http.Header) {
	h.Set("Cache-Control", p.CacheControl())
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Policies holds the policy for each content class served by the site.
type Policies struct {
	Categories    Policy
	Posts         Policy
	CategoryPosts Policy
	Post          Policy
	Sitemap       Policy
	ImageSitemap  Policy
	Robots        Policy
	Manifest      Policy
}

// DefaultPolicies returns the production freshness windows.
func DefaultPolicies() Policies {
	return Policies{
		Categories: Policy{
			Name:                 "categories",
			TTL:                  time.Hour,
			SharedMaxAge:         time.Hour,
			StaleWhileRevalidate: time.Hour,
			Tags:                 []string{TagCategories},
		},
		Posts: Policy{
			Name:                 "posts",
			TTL:                  5 * time.Minute,
			SharedMaxAge:         5 * time.Minute,
			StaleWhileRevalidate: time.Minute,
			Tags:                 []string{TagPosts},
		},
		CategoryPosts: Policy{
			Name:                 "category-posts",
			TTL:                  5 * time.Minute,
			SharedMaxAge:         5 * time.Minute,
			StaleWhileRevalidate: time.Minute,
			Tags:                 []string{TagPosts, TagCategories},
		},
		Post: Policy{
			Name:         "post",
			TTL:          10 * time.Minute,
			SharedMaxAge: 10 * time.Minute,
		},
		Sitemap: Policy{
			Name:                 "sitemap",
			TTL:                  time.Hour,
			SharedMaxAge:         time.Hour,
			StaleWhileRevalidate: 5 * time.Minute,
			Tags:                 []string{TagSitemap},
		},
		ImageSitemap: Policy{
			Name:                 "image-sitemap",
			TTL:                  time.Hour,
			SharedMaxAge:         time.Hour,
			StaleWhileRevalidate: 5 * time.Minute,
			Tags:                 []string{TagSitemap},
		},
		Robots: Policy{
			Name:         "robots",
			SharedMaxAge: 24 * time.Hour,
		},
		Manifest: Policy{
			Name:         "manifest",
			SharedMaxAge: 24 * time.Hour,
		},
	}
}

// All returns every policy, used for logging the effective configuration.
func (ps Policies) All() []Policy {
	return []Policy{
		ps.Categories, ps.Posts, ps.CategoryPosts, ps.Post,
		ps.Sitemap, ps.ImageSitemap, ps.Robots, ps.Manifest,
	}
}
