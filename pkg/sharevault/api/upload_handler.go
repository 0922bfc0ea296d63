package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/upload"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// UploadHandler accepts multipart file uploads
type UploadHandler struct {
	uploader *upload.Uploader
	logger   *slog.Logger
}

// NewUploadHandler creates the upload handler
func NewUploadHandler(uploader *upload.Uploader, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{uploader: uploader, logger: logger}
}

// UploadedFile is one stored file in an upload response
type UploadedFile struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// FailedFile is one file that could not be stored
type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadResponse is the body of POST /upload
type UploadResponse struct {
	Success bool           `json:"success"`
	Files   []UploadedFile `json:"files"`
	Failed  []FailedFile   `json:"failed,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// MaxRequestBytes is the largest multipart body the handler accepts
func (h *UploadHandler) MaxRequestBytes() int64 {
	p := h.uploader.Policy()
	// room for part headers and form fields
	return p.MaxFileSize*int64(p.MaxFiles) + 1<<20
}

func filesFromForm(form *multipart.Form) []upload.File {
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, upload.File{
			Name:         fh.Filename,
			DeclaredType: fh.Header.Get("Content-Type"),
			Size:         fh.Size,
			Open: func() (io.ReadSeekCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

// Upload validates and stores every file of the request. Either all files
// are rejected (400) or all are attempted; files stored before a failure
// stay stored and are listed in the 500 response.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxRequestBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if !errors.As(err, &mbe) {
			err = sharevault.NewValidationError("files", "invalid multipart body: %v", err)
		}
		writeError(w, r, h.logger, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	stored, err := h.uploader.UploadBatch(r.Context(), filesFromForm(r.MultipartForm))

	resp := UploadResponse{Files: make([]UploadedFile, 0, len(stored))}
	for _, s := range stored {
		resp.Files = append(resp.Files, UploadedFile{URL: s.URL, Key: s.Key, Name: s.Name, Type: s.ContentType, Size: s.Size})
	}

	var batchErr *sharevault.BatchError
	switch {
	case err == nil:
		resp.Success = true
		h.logger.InfoContext(r.Context(), "files uploaded", "count", len(resp.Files))
		render.JSON(w, r, resp)
	case errors.As(err, &batchErr):
		for _, f := range batchErr.Failures {
			resp.Failed = append(resp.Failed, FailedFile{Name: f.FileName, Error: messageFor(http.StatusInternalServerError, f.Err)})
		}
		resp.Error = messageFor(http.StatusInternalServerError, err)
		h.logger.ErrorContext(r.Context(), "upload batch failed",
			"stored", len(resp.Files), "failed", len(resp.Failed), "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp)
	default:
		writeError(w, r, h.logger, err)
	}
}
