package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// PostsHandler serves the public listing endpoints
type PostsHandler struct {
	service          sharevault.Service
	strictPagination bool
	logger           *slog.Logger
}

// NewPostsHandler creates the listing handler. With strictPagination,
// malformed offset/limit values are rejected instead of defaulted.
func NewPostsHandler(service sharevault.Service, strictPagination bool, logger *slog.Logger) *PostsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostsHandler{
		service:          service,
		strictPagination: strictPagination,
		logger:           logger,
	}
}

// Register adds the listing routes to r
func (h *PostsHandler) Register(r chi.Router) {
	r.Get("/posts", h.ListPosts)
	r.Get("/posts/{slug}", h.GetPost)
	r.Get("/categories", h.ListCategories)
	r.Get("/category/{slug}/posts", h.ListCategoryPosts)
}

// PostsResponse is the body of GET /posts
type PostsResponse struct {
	Posts  []sharevault.ContentItem `json:"posts"`
	Offset int                      `json:"offset"`
	Limit  int                      `json:"limit"`
	Total  int                      `json:"total"`
}

// CategoriesResponse is the body of GET /categories
type CategoriesResponse struct {
	Categories []sharevault.CategorySummary `json:"categories"`
	Total      int                          `json:"total"`
}

// CategoryPostsResponse is the body of GET /category/{slug}/posts
type CategoryPostsResponse struct {
	Posts    []sharevault.ContentItem `json:"posts"`
	Offset   int                      `json:"offset"`
	Limit    int                      `json:"limit"`
	Total    int                      `json:"total"`
	Category string                   `json:"category"`
	Slug     string                   `json:"slug"`
}

func (h *PostsHandler) pageRequest(r *http.Request) (sharevault.PageRequest, error) {
	q := r.URL.Query()
	if h.strictPagination {
		return sharevault.ParsePageRequestStrict(q.Get("offset"), q.Get("limit"))
	}
	return sharevault.ParsePageRequest(q.Get("offset"), q.Get("limit")), nil
}

// ListPosts returns one page of published posts, newest first
func (h *PostsHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.service.ListPosts(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.service.Policies().Posts.Apply(w.Header())
	render.JSON(w, r, PostsResponse{
		Posts:  nonNil(page.Items),
		Offset: page.Offset,
		Limit:  page.Limit,
		Total:  page.Total,
	})
}

// GetPost returns a single published post by slug
func (h *PostsHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	item, err := h.service.GetPost(r.Context(), slug)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.service.Policies().Post.Apply(w.Header())
	render.JSON(w, r, item)
}

// ListCategories returns every category with its published post count
func (h *PostsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if categories == nil {
		categories = []sharevault.CategorySummary{}
	}

	h.service.Policies().Categories.Apply(w.Header())
	render.JSON(w, r, CategoriesResponse{Categories: categories, Total: len(categories)})
}

// ListCategoryPosts returns one page of a category's posts. Unknown
// categories yield an empty page.
func (h *PostsHandler) ListCategoryPosts(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.service.ListCategoryPosts(r.Context(), slug, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.service.Policies().CategoryPosts.Apply(w.Header())
	render.JSON(w, r, CategoryPostsResponse{
		Posts:    nonNil(page.Items),
		Offset:   page.Offset,
		Limit:    page.Limit,
		Total:    page.Total,
		Category: page.Category,
		Slug:     page.Slug,
	})
}

func nonNil(items []sharevault.ContentItem) []sharevault.ContentItem {
	if items == nil {
		return []sharevault.ContentItem{}
	}
	return items
}
