// Package upload validates user files and stores them in a blob store under
// generated keys.
//
// A batch is validated as a whole before any byte is written: one rejected
// file rejects the batch. Accepted files are then uploaded in parallel and
// independently. A failed upload does not retract the others.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// MiB is one mebibyte
const MiB = 1 << 20

// DefaultAllowedTypes maps each accepted media type to the extension stored keys get.
var DefaultAllowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/avif":      ".avif",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// Policy holds the acceptance rules for uploads
type Policy struct {
	AllowedTypes map[string]string
	MaxFileSize  int64
	MaxFiles     int
	Concurrency  int
	KeyPrefix    string
}

// DefaultPolicy returns the production upload rules
func DefaultPolicy() Policy {
	return Policy{
		AllowedTypes: DefaultAllowedTypes,
		MaxFileSize:  10 * MiB,
		MaxFiles:     10,
		Concurrency:  4,
		KeyPrefix:    "uploads",
	}
}

// File is one file of a batch. Open may be called more than once.
type File struct {
	Name         string
	DeclaredType string
	Size         int64
	Open         func() (io.ReadSeekCloser, error)
}

type bytesFile struct {
	*bytes.Reader
}

func (bytesFile) Close() error { return nil }

// FromBytes wraps in-memory content as a File
func FromBytes(name, declaredType string, data []byte) File {
	return File{
		Name:         name,
		DeclaredType: declaredType,
		Size:         int64(len(data)),
		Open: func() (io.ReadSeekCloser, error) {
			return bytesFile{bytes.NewReader(data)}, nil
		},
	}
}

// Stored describes an uploaded file
type Stored struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// accepted is a validated file with its destination
type accepted struct {
	file        File
	key         string
	contentType string
	size        int64
}

// Uploader stores batches of files in a blob store
type Uploader struct {
	store  sharevault.BlobStore
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Uploader
type Option func(*Uploader)

// WithPolicy overrides the default policy
func WithPolicy(p Policy) Option {
	return func(u *Uploader) {
		u.policy = p
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithClock sets the time source used for key partitioning
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		if now != nil {
			u.now = now
		}
	}
}

// New creates an uploader. A nil store yields an uploader whose every upload
// fails with ErrStorageNotConfigured.
func New(store sharevault.BlobStore, opts ...Option) *Uploader {
	if store == nil {
		store = Unconfigured()
	}
	u := &Uploader{
		store:  store,
		policy: DefaultPolicy(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.policy.Concurrency <= 0 {
		u.policy.Concurrency = 1
	}
	return u
}

// Policy returns the active policy
func (u *Uploader) Policy() Policy {
	return u.policy
}

func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

// validate checks one file and assigns it a key
func (u *Uploader) validate(i int, f File) (*accepted, error) {
	field := fmt.Sprintf("files[%d]", i)
	if f.Size > u.policy.MaxFileSize {
		return nil, sharevault.NewValidationError(field, "%s exceeds the %d byte limit", f.Name, u.policy.MaxFileSize)
	}
	if f.Open == nil {
		return nil, sharevault.NewValidationError(field, "%s has no content", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, sharevault.NewValidationError(field, "%s could not be read: %v", f.Name, err)
	}
	defer rc.Close()

	size, err := rc.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, sharevault.NewValidationError(field, "%s could not be read: %v", f.Name, err)
	}
	if size == 0 {
		return nil, sharevault.NewValidationError(field, "%s is empty", f.Name)
	}
	if size > u.policy.MaxFileSize {
		return nil, sharevault.NewValidationError(field, "%s exceeds the %d byte limit", f.Name, u.policy.MaxFileSize)
	}
	if _, err := rc.Seek(0, io.SeekStart); err != nil {
		return nil, sharevault.NewValidationError(field, "%s could not be read: %v", f.Name, err)
	}

	detected, err := mimetype.DetectReader(rc)
	if err != nil {
		return nil, sharevault.NewValidationError(field, "%s could not be read: %v", f.Name, err)
	}
	contentType := baseType(detected.String())
	ext, ok := u.policy.AllowedTypes[contentType]
	if !ok {
		return nil, sharevault.NewValidationError(field, "%s has disallowed type %s", f.Name, contentType)
	}
	if declared := baseType(f.DeclaredType); declared != "" && declared != "application/octet-stream" {
		if _, ok := u.policy.AllowedTypes[declared]; !ok {
			return nil, sharevault.NewValidationError(field, "%s was declared as disallowed type %s", f.Name, declared)
		}
	}

	now := u.now()
	key := fmt.Sprintf("%s/%04d/%02d/%s%s", u.policy.KeyPrefix, now.Year(), int(now.Month()), ulid.Make().String(), ext)
	return &accepted{file: f, key: key, contentType: contentType, size: size}, nil
}

// Validate checks every file of a batch and returns the first rejection
func (u *Uploader) Validate(files []File) error {
	_, err := u.validateAll(files)
	return err
}

func (u *Uploader) validateAll(files []File) ([]*accepted, error) {
	if len(files) == 0 {
		return nil, sharevault.NewValidationError("files", "no files provided")
	}
	if len(files) > u.policy.MaxFiles {
		return nil, sharevault.NewValidationError("files", "at most %d files per upload, got %d", u.policy.MaxFiles, len(files))
	}

	out := make([]*accepted, 0, len(files))
	for i, f := range files {
		a, err := u.validate(i, f)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// UploadBatch validates all files and then uploads them in parallel.
//
// A validation failure returns a *sharevault.ValidationError and nothing is
// written. Upload failures return the files that were stored together with a
// *sharevault.BatchError listing the ones that were not.
func (u *Uploader) UploadBatch(ctx context.Context, files []File) ([]Stored, error) {
	batch, err := u.validateAll(files)
	if err != nil {
		return nil, err
	}

	results := make([]*Stored, len(batch))
	failures := make([]*sharevault.UploadError, len(batch))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(u.policy.Concurrency).WithContext(ctx)
	for i, a := range batch {
		p.Go(func(ctx context.Context) error {
			stored, err := u.put(ctx, a)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = &sharevault.UploadError{FileName: a.file.Name, Key: a.key, Err: err}
				return failures[i]
			}
			results[i] = stored
			return nil
		})
	}
	_ = p.Wait()

	var stored []Stored
	var failed []*sharevault.UploadError
	for i := range batch {
		if results[i] != nil {
			stored = append(stored, *results[i])
		}
		if failures[i] != nil {
			failed = append(failed, failures[i])
		}
	}

	if len(failed) > 0 {
		u.logger.ErrorContext(ctx, "upload batch partially failed",
			"stored", len(stored), "failed", len(failed))
		return stored, &sharevault.BatchError{Failures: failed}
	}
	u.logger.InfoContext(ctx, "upload batch stored", "files", len(stored))
	return stored, nil
}

func (u *Uploader) put(ctx context.Context, a *accepted) (*Stored, error) {
	rc, err := a.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sharevault.ErrUploadFailed, err)
	}
	defer rc.Close()

	err = u.store.Put(ctx, a.key, rc, sharevault.PutParams{
		ContentType:  a.contentType,
		Size:         a.size,
		OriginalName: a.file.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sharevault.ErrUploadFailed, err)
	}

	return &Stored{
		Key:         a.key,
		URL:         u.store.PublicURL(a.key),
		Name:        a.file.Name,
		ContentType: a.contentType,
		Size:        a.size,
	}, nil
}

type unconfigured struct{}

// Unconfigured returns a blob store that rejects every write with
// ErrStorageNotConfigured.
func Unconfigured() sharevault.BlobStore {
	return unconfigured{}
}

func (unconfigured) Put(context.Context, string, io.Reader, sharevault.PutParams) error {
	return sharevault.ErrStorageNotConfigured
}

func (unconfigured) PublicURL(string) string {
	return ""
}

// IsUnconfigured reports whether store is the placeholder returned by Unconfigured
func IsUnconfigured(store sharevault.BlobStore) bool {
	_, ok := store.(unconfigured)
	return ok
}
