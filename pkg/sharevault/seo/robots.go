package seo

import (
	"strings"
)

// DefaultDisallow lists the paths crawlers are kept out of
var DefaultDisallow = []string{"/admin/", "/api/"}

// Robots renders robots.txt. Every path in disallow is blocked for all user
// agents and both sitemaps are advertised.
func Robots(baseURL string, disallow []string) string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	for _, path := range disallow {
		b.WriteString("Disallow: " + path + "\n")
	}
	b.WriteString("\n")
	b.WriteString("Sitemap: " + absolute(baseURL, "/sitemap.xml") + "\n")
	b.WriteString("Sitemap: " + absolute(baseURL, "/image-sitemap.xml") + "\n")
	return b.String()
}

// Icon is a web app manifest icon
type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

// Manifest is the web app manifest document
type Manifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	Description     string `json:"description,omitempty"`
	StartURL        string `json:"start_url"`
	Scope           string `json:"scope"`
	Display         string `json:"display"`
	BackgroundColor string `json:"background_color"`
	ThemeColor      string `json:"theme_color"`
	Icons           []Icon `json:"icons"`
}

// NewManifest returns the site manifest with the standard icon set
func NewManifest(name, shortName, description string) Manifest {
	if shortName == "" {
		shortName = name
	}
	return Manifest{
		Name:            name,
		ShortName:       shortName,
		Description:     description,
		StartURL:        "/",
		Scope:           "/",
		Display:         "standalone",
		BackgroundColor: "#ffffff",
		ThemeColor:      "#111827",
		Icons: []Icon{
			{Src: "/icons/icon-192.png", Sizes: "192x192", Type: "image/png"},
			{Src: "/icons/icon-512.png", Sizes: "512x512", Type: "image/png"},
			{Src: "/icons/maskable-512.png", Sizes: "512x512", Type: "image/png", Purpose: "maskable"},
		},
	}
}
