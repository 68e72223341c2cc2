package mediastore

import (
	"context"
	"io"
)

// Service is the content object store.
type Service interface {
	// Create stores data under a new, unique name.
	Create(ctx context.Context, name string, data []byte, uploader string) (*Object, error)
	// UpdateContent replaces the bytes of an existing object and re-sniffs
	// its content type.
	UpdateContent(ctx context.Context, name string, data []byte) (*Object, error)
	Get(ctx context.Context, name string) (*Object, error)
	// Open streams the current bytes of an object. The caller closes the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, *Object, error)
	// Delete removes the record and its blob. Deleting an absent name succeeds.
	Delete(ctx context.Context, name string) error
	SetSafetyChecked(ctx context.Context, name string, checked bool) (*Object, error)
	List(ctx context.Context, req ListObjectsRequest) ([]*Object, error)
}
