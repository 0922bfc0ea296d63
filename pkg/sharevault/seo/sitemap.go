// Package seo renders the crawler-facing documents: sitemaps, robots.txt and
// the web app manifest.
package seo

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/tendant/sharevault/pkg/sharevault"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	imageNS   = "http://www.google.com/schemas/sitemap-image/1.1"

	lastModLayout = "2006-01-02"
)

// StaticPage is a fixed site page listed in the sitemap
type StaticPage struct {
	Path       string
	ChangeFreq string
	Priority   float64
}

// DefaultStaticPages lists the public pages that exist independent of content
var DefaultStaticPages = []StaticPage{
	{Path: "/", ChangeFreq: "daily", Priority: 1.0},
	{Path: "/blog", ChangeFreq: "daily", Priority: 0.9},
	{Path: "/categories", ChangeFreq: "weekly", Priority: 0.7},
	{Path: "/about", ChangeFreq: "monthly", Priority: 0.5},
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNS   string     `xml:"xmlns,attr"`
	Image   string     `xml:"xmlns:image,attr,omitempty"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string       `xml:"loc"`
	LastMod    string       `xml:"lastmod,omitempty"`
	ChangeFreq string       `xml:"changefreq,omitempty"`
	Priority   string       `xml:"priority,omitempty"`
	Images     []imageEntry `xml:"image:image,omitempty"`
}

type imageEntry struct {
	Loc     string `xml:"image:loc"`
	Title   string `xml:"image:title,omitempty"`
	Caption string `xml:"image:caption,omitempty"`
}

// PostPath returns the public path of a post
func PostPath(slug string) string {
	return "/blog/" + slug
}

// CategoryPath returns the public path of a category page
func CategoryPath(slug string) string {
	return "/category/" + slug
}

func absolute(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func lastMod(item sharevault.ContentItem) string {
	t := item.UpdatedAt
	if t.IsZero() {
		t = item.CreatedAt
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(lastModLayout)
}

func priority(p float64) string {
	if p <= 0 {
		return ""
	}
	return strconv.FormatFloat(p, 'f', 1, 64)
}

func encode(set urlSet) ([]byte, error) {
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Sitemap renders the sitemaps.org document for the static pages, every
// published post with a slug, and every category.
func Sitemap(baseURL string, static []StaticPage, items []sharevault.ContentItem, categories []sharevault.CategorySummary) ([]byte, error) {
	set := urlSet{XMLNS: sitemapNS}
	for _, page := range static {
		set.URLs = append(set.URLs, urlEntry{
			Loc:        absolute(baseURL, page.Path),
			ChangeFreq: page.ChangeFreq,
			Priority:   priority(page.Priority),
		})
	}
	for _, item := range items {
		if !item.Published || item.Slug == "" {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        absolute(baseURL, PostPath(item.Slug)),
			LastMod:    lastMod(item),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}
	for _, c := range categories {
		slug := c.Slug
		if slug == "" {
			slug = sharevault.ToSlug(c.Name)
		}
		if slug == "" {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        absolute(baseURL, CategoryPath(slug)),
			ChangeFreq: "weekly",
			Priority:   "0.6",
		})
	}
	return encode(set)
}

// ImageSitemap renders the image sitemap for published posts carrying an image
func ImageSitemap(baseURL string, items []sharevault.ContentItem) ([]byte, error) {
	set := urlSet{XMLNS: sitemapNS, Image: imageNS}
	for _, item := range items {
		if !item.Published || item.Slug == "" || !item.HasImage() {
			continue
		}
		caption := item.ImageAlt
		if caption == "" {
			caption = item.Excerpt
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:     absolute(baseURL, PostPath(item.Slug)),
			LastMod: lastMod(item),
			Images: []imageEntry{{
				Loc:     absolute(baseURL, item.ImageURL),
				Title:   item.Title,
				Caption: caption,
			}},
		})
	}
	return encode(set)
}

// EmptySitemap is the valid document served when content cannot be listed
func EmptySitemap() []byte {
	return []byte(xml.Header + `<urlset xmlns="` + sitemapNS + `"></urlset>`)
}

// EmptyImageSitemap is the valid image sitemap served when content cannot be listed
func EmptyImageSitemap() []byte {
	return []byte(xml.Header + `<urlset xmlns="` + sitemapNS + `" xmlns:image="` + imageNS + `"></urlset>`)
}
