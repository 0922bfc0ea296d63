package memory

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/tendant/sharevault/pkg/sharevault"
)

// Object is a stored blob with its attributes
type Object struct {
	Data   []byte
	Params sharevault.PutParams
}

// Backend is an in-memory implementation of the sharevault.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	objects   map[string]Object
	urlPrefix string
	failure   func(key string) error
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:   make(map[string]Object),
		urlPrefix: "memory://",
	}
}

// SetFailure makes Put fail with the error fn returns for a key. A nil
// function restores normal behaviour.
func (b *Backend) SetFailure(fn func(key string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = fn
}

// Put stores the content of reader under key
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, params sharevault.PutParams) error {
	b.mu.RLock()
	failure := b.failure
	b.mu.RUnlock()
	if failure != nil {
		if err := failure(key); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = Object{Data: data, Params: params}
	return nil
}

// PublicURL returns the URL under which key is served
func (b *Backend) PublicURL(key string) string {
	return b.urlPrefix + key
}

// Get returns the object stored under key
func (b *Backend) Get(key string) (Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Keys returns the stored keys in sorted order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ sharevault.BlobStore = (*Backend)(nil)
