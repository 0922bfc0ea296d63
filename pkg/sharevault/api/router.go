// Package api exposes the ShareVault service over HTTP with chi.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/seo"
	"github.com/tendant/sharevault/pkg/sharevault/upload"
)

// RouterConfig collects what Register needs to wire the HTTP surface
type RouterConfig struct {
	Service  sharevault.Service
	Uploader *upload.Uploader

	SiteURL          string
	Manifest         seo.Manifest
	StrictPagination bool

	// AdminAuth guards authoring and uploads. Nil denies every request.
	AdminAuth Middleware
	// RevalidateAuth guards the revalidation webhook. Nil denies every request.
	RevalidateAuth Middleware

	Logger *slog.Logger
}

// Register adds every ShareVault route to r
func Register(r chi.Router, cfg RouterConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adminAuth := cfg.AdminAuth
	if adminAuth == nil {
		adminAuth = DenyAll
	}
	revalidateAuth := cfg.RevalidateAuth
	if revalidateAuth == nil {
		revalidateAuth = DenyAll
	}
	uploader := cfg.Uploader
	if uploader == nil {
		uploader = upload.New(nil, upload.WithLogger(logger))
	}

	posts := NewPostsHandler(cfg.Service, cfg.StrictPagination, logger)
	seoHandler := NewSEOHandler(cfg.Service, cfg.SiteURL, cfg.Manifest, logger)
	uploads := NewUploadHandler(uploader, logger)
	admin := NewAdminHandler(cfg.Service, logger)
	revalidate := NewRevalidateHandler(cfg.Service, logger)

	r.Group(func(r chi.Router) {
		r.Use(Compress)
		posts.Register(r)
		seoHandler.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/upload", uploads.Upload)
		r.Mount("/admin", admin.Routes())
	})

	r.Group(func(r chi.Router) {
		r.Use(revalidateAuth, RequestSizeLimit(64<<10))
		r.Mount("/api/revalidate", revalidate.Routes())
	})
}
