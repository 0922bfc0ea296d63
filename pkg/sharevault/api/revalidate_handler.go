package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// RevalidateHandler drops memoized entries by tag on request, typically from
// a content webhook.
type RevalidateHandler struct {
	service sharevault.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewRevalidateHandler creates the revalidation handler
func NewRevalidateHandler(service sharevault.Service, logger *slog.Logger) *RevalidateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevalidateHandler{service: service, logger: logger, now: time.Now}
}

// Routes returns the router for the revalidation endpoint
func (h *RevalidateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Revalidate)
	return r
}

// RevalidateRequest names the tags to invalidate
type RevalidateRequest struct {
	Tags []string `json:"tags"`
}

// Validate checks the tag list
func (req RevalidateRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Tags, validation.Required, validation.Length(1, 50),
			validation.Each(validation.Required, validation.Length(1, 256))),
	)
}

// RevalidateResponse reports what was dropped
type RevalidateResponse struct {
	Revalidated bool     `json:"revalidated"`
	Tags        []string `json:"tags"`
	Dropped     int      `json:"dropped"`
	Now         int64    `json:"now"`
}

// Revalidate accepts {"tags": [...]} or repeated ?tag= query parameters
func (h *RevalidateHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req RevalidateRequest
	if tags := r.URL.Query()["tag"]; len(tags) > 0 {
		req.Tags = tags
	} else if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, r, h.logger, sharevault.NewValidationError("tags", "%v", err))
		return
	}

	dropped := h.service.Invalidate(r.Context(), req.Tags...)
	h.logger.InfoContext(r.Context(), "cache revalidated", "tags", req.Tags, "dropped", dropped)

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, RevalidateResponse{
		Revalidated: true,
		Tags:        req.Tags,
		Dropped:     dropped,
		Now:         h.now().UnixMilli(),
	})
}
