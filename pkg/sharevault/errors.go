package sharevault

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrNotFound indicates a content item was not found
	ErrNotFound = errors.New("content not found")

	// ErrRepositoryUnavailable indicates the backing store could not be reached
	// or timed out. Callers may retry.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrInvalidScope indicates a malformed filter. Retrying will not help.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrSlugConflict indicates another item already owns the slug
	ErrSlugConflict = errors.New("slug already in use")

	// ErrCategoryNotIndexed indicates the category index has no entry for a slug
	ErrCategoryNotIndexed = errors.New("category slug not indexed")

	// ErrUploadFailed indicates an object store write failed
	ErrUploadFailed = errors.New("upload failed")

	// ErrStorageNotConfigured indicates uploads were attempted without an object store
	ErrStorageNotConfigured = errors.New("object storage not configured")
)

// RepositoryError represents an error raised by a repository operation
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository operation %s failed: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err so that it matches ErrRepositoryUnavailable while
// keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return &RepositoryError{Op: op, Err: errors.Join(ErrRepositoryUnavailable, err)}
}

// ValidationError represents bad caller input: pagination parameters,
// authoring fields, or a rejected upload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UploadError represents a failed write of a single file
type UploadError struct {
	FileName string
	Key      string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s to %s failed: %v", e.FileName, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// BatchError collects per-file failures of a multi-file upload. Files that
// were stored before or alongside the failures stay stored.
type BatchError struct {
	Failures []*UploadError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d of the batch uploads failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// IsRetryable reports whether err is transient and safe to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRepositoryUnavailable)
}

// IsValidation reports whether err stems from caller input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidScope)
}
