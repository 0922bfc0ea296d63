package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// AdminHandler serves the authoring endpoints. It expects to be mounted
// behind authentication.
type AdminHandler struct {
	service sharevault.Service
	logger  *slog.Logger
}

// NewAdminHandler creates the authoring handler
func NewAdminHandler(service sharevault.Service, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{service: service, logger: logger}
}

// Routes returns the router for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestSizeLimit(1 << 20))
	r.Post("/posts", h.CreatePost)
	r.Put("/posts/{id}", h.UpdatePost)
	r.Post("/backfill-slugs", h.BackfillSlugs)
	r.Get("/cache/stats", h.CacheStats)
	return r
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return sharevault.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}

// subject returns the authenticated user id from the request token, if any
func subject(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// CreatePost creates a post. The author defaults to the token subject.
func (h *AdminHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req sharevault.CreatePostRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.AuthorID == "" {
		req.AuthorID = subject(r)
	}

	item, err := h.service.CreatePost(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

// UpdatePost replaces the editable fields of a post
func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req sharevault.UpdatePostRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.ID = chi.URLParam(r, "id")

	item, err := h.service.UpdatePost(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, item)
}

// BackfillSlugs assigns slugs to posts created without one
func (h *AdminHandler) BackfillSlugs(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.BackfillSlugs(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, report)
}

// CacheStats reports the memoization counters
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, h.service.CacheStats())
}
