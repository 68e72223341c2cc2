package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/mediastore"
)

// Repository implements mediastore.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	objects map[string]*mediastore.Object
}

var _ mediastore.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		objects: make(map[string]*mediastore.Object),
	}
}

func (r *Repository) CreateObject(ctx context.Context, obj *mediastore.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[obj.Name]; exists {
		return fmt.Errorf("object %q: %w", obj.Name, corerr.ErrConflict)
	}
	objCopy := *obj
	r.objects[obj.Name] = &objCopy
	return nil
}

func (r *Repository) GetObject(ctx context.Context, name string) (*mediastore.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, exists := r.objects[name]
	if !exists {
		return nil, fmt.Errorf("object %q: %w", name, corerr.ErrNotFound)
	}
	objCopy := *obj
	return &objCopy, nil
}

func (r *Repository) SwapBlob(ctx context.Context, u mediastore.BlobUpdate) (*mediastore.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, exists := r.objects[u.Name]
	if !exists {
		return nil, fmt.Errorf("object %q: %w", u.Name, corerr.ErrNotFound)
	}
	if obj.BlobRef != u.OldRef {
		return nil, fmt.Errorf("object %q: %w", u.Name, mediastore.ErrRefChanged)
	}
	obj.BlobRef = u.NewRef
	obj.ContentType = u.ContentType
	obj.SizeBytes = u.SizeBytes
	obj.ModifiedAt = u.ModifiedAt

	objCopy := *obj
	return &objCopy, nil
}

func (r *Repository) SetSafetyChecked(ctx context.Context, name string, checked bool, modifiedAt time.Time) (*mediastore.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, exists := r.objects[name]
	if !exists {
		return nil, fmt.Errorf("object %q: %w", name, corerr.ErrNotFound)
	}
	obj.SafetyChecked = checked
	obj.ModifiedAt = modifiedAt

	objCopy := *obj
	return &objCopy, nil
}

func (r *Repository) DeleteObject(ctx context.Context, name string) (*mediastore.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, exists := r.objects[name]
	if !exists {
		return nil, fmt.Errorf("object %q: %w", name, corerr.ErrNotFound)
	}
	delete(r.objects, name)
	return obj, nil
}

func (r *Repository) ListObjects(ctx context.Context, req mediastore.ListObjectsRequest) ([]*mediastore.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediastore.Object
	for _, obj := range r.objects {
		if req.Uploader != "" && obj.Uploader != req.Uploader {
			continue
		}
		if req.SafetyChecked != nil && obj.SafetyChecked != *req.SafetyChecked {
			continue
		}
		if req.After != nil && !after(obj, req.After) {
			continue
		}
		objCopy := *obj
		result = append(result, &objCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Name < result[j].Name
	})

	if req.Offset > 0 {
		if req.Offset >= len(result) {
			return []*mediastore.Object{}, nil
		}
		result = result[req.Offset:]
	}
	if req.Limit > 0 && req.Limit < len(result) {
		result = result[:req.Limit]
	}
	return result, nil
}

func after(obj *mediastore.Object, c *mediastore.Cursor) bool {
	if !obj.CreatedAt.Equal(c.CreatedAt) {
		return obj.CreatedAt.After(c.CreatedAt)
	}
	return obj.Name > c.Name
}
