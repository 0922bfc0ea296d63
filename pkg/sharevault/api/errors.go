package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case sharevault.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, sharevault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sharevault.ErrSlugConflict):
		return http.StatusConflict
	case errors.Is(err, sharevault.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the text shown to the caller. Internal failures are not
// described beyond their class.
func messageFor(status int, err error) string {
	switch {
	case status < 500:
		return err.Error()
	case errors.Is(err, sharevault.ErrRepositoryUnavailable):
		return "content store temporarily unavailable"
	case errors.Is(err, sharevault.ErrStorageNotConfigured):
		return sharevault.ErrStorageNotConfigured.Error()
	case errors.Is(err, sharevault.ErrUploadFailed):
		return sharevault.ErrUploadFailed.Error()
	default:
		return http.StatusText(status)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.DebugContext(r.Context(), "request rejected",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	w.Header().Set("Cache-Control", "no-store")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: messageFor(status, err)})
}
