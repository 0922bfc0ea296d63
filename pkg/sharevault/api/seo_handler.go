package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/cache"
	"github.com/tendant/sharevault/pkg/sharevault/seo"
)

// SEOHandler serves the crawler-facing documents. Sitemaps never fail: when
// content cannot be listed an empty valid document is served instead.
type SEOHandler struct {
	service  sharevault.Service
	siteURL  string
	manifest seo.Manifest
	logger   *slog.Logger
}

// NewSEOHandler creates the handler for sitemaps, robots.txt and the manifest
func NewSEOHandler(service sharevault.Service, siteURL string, manifest seo.Manifest, logger *slog.Logger) *SEOHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SEOHandler{
		service:  service,
		siteURL:  siteURL,
		manifest: manifest,
		logger:   logger,
	}
}

// Register adds the SEO routes to r
func (h *SEOHandler) Register(r chi.Router) {
	r.Get("/sitemap.xml", h.Sitemap)
	r.Get("/image-sitemap.xml", h.ImageSitemap)
	r.Get("/robots.txt", h.Robots)
	r.Get("/manifest.webmanifest", h.Manifest)
}

func writeXML(w http.ResponseWriter, policy *cache.Policy, doc []byte) {
	if policy != nil {
		policy.Apply(w.Header())
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// Sitemap lists static pages, published posts and categories
func (h *SEOHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.SitemapItems(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "serving empty sitemap", "error", err)
		writeXML(w, nil, seo.EmptySitemap())
		return
	}
	categories, err := h.service.ListCategories(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "serving empty sitemap", "error", err)
		writeXML(w, nil, seo.EmptySitemap())
		return
	}

	doc, err := seo.Sitemap(h.siteURL, seo.DefaultStaticPages, items, categories)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render sitemap", "error", err)
		writeXML(w, nil, seo.EmptySitemap())
		return
	}
	policy := h.service.Policies().Sitemap
	writeXML(w, &policy, doc)
}

// ImageSitemap lists published posts that carry an image
func (h *SEOHandler) ImageSitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.ImageItems(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "serving empty image sitemap", "error", err)
		writeXML(w, nil, seo.EmptyImageSitemap())
		return
	}

	doc, err := seo.ImageSitemap(h.siteURL, items)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render image sitemap", "error", err)
		writeXML(w, nil, seo.EmptyImageSitemap())
		return
	}
	policy := h.service.Policies().ImageSitemap
	writeXML(w, &policy, doc)
}

// Robots serves robots.txt
func (h *SEOHandler) Robots(w http.ResponseWriter, r *http.Request) {
	h.service.Policies().Robots.Apply(w.Header())
	render.PlainText(w, r, seo.Robots(h.siteURL, seo.DefaultDisallow))
}

// Manifest serves the web app manifest
func (h *SEOHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(h.manifest)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.service.Policies().Manifest.Apply(w.Header())
	w.Header().Set("Content-Type", "application/manifest+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
