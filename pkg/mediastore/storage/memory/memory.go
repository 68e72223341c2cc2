package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/mediastore"
)

// Backend is an in-memory implementation of the mediastore.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ mediastore.BlobStore = (*Backend)(nil)

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Write stores a copy of data under key
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &mediastore.StorageError{Key: key, Op: "write", Err: corerr.Unavailable(err)}
	}
	if key == "" {
		return &mediastore.StorageError{Key: key, Op: "write", Err: corerr.Invalid("empty key")}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = bytes.Clone(data)
	return nil
}

// Read returns a copy of the bytes stored under key
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: corerr.Unavailable(err)}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: corerr.ErrNotFound}
	}
	return bytes.Clone(data), nil
}

// Open returns a reader over the bytes stored under key
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := b.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key. Deleting an absent key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &mediastore.StorageError{Key: key, Op: "delete", Err: corerr.Unavailable(err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

// Keys lists the stored keys with the given prefix in lexical order.
func (b *Backend) Keys(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
