package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/sharevault/pkg/sharevault"
)

// Backend is a filesystem implementation of the sharevault.BlobStore interface
type Backend struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // URL prefix files are served under, e.g. /media
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimRight(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, clean), nil
}

// Put writes the content of reader to the file for key. The file is written
// under a temporary name and renamed into place once complete.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, params sharevault.PutParams) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// PublicURL returns the URL under which key is served
func (b *Backend) PublicURL(key string) string {
	return b.urlPrefix + "/" + strings.TrimLeft(key, "/")
}

// URLPrefix returns the path prefix Handler should be mounted under
func (b *Backend) URLPrefix() string {
	return b.urlPrefix
}

// Handler serves stored files. Mount it with the URL prefix stripped.
func (b *Backend) Handler() http.Handler {
	return http.FileServer(http.Dir(b.baseDir))
}

var _ sharevault.BlobStore = (*Backend)(nil)
