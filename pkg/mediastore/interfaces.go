package mediastore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository persists object metadata records.
type Repository interface {
	// CreateObject inserts a new record. A record with the same name must
	// not exist; otherwise the call fails with corerr.ErrConflict.
	CreateObject(ctx context.Context, obj *Object) error
	GetObject(ctx context.Context, name string) (*Object, error)
	// SwapBlob replaces the blob reference, content type and size of a
	// record only if its current reference equals u.OldRef. It returns
	// ErrRefChanged when the reference differs and corerr.ErrNotFound when
	// the record is gone.
	SwapBlob(ctx context.Context, u BlobUpdate) (*Object, error)
	SetSafetyChecked(ctx context.Context, name string, checked bool, modifiedAt time.Time) (*Object, error)
	// DeleteObject removes the record and returns it as it was.
	DeleteObject(ctx context.Context, name string) (*Object, error)
	ListObjects(ctx context.Context, req ListObjectsRequest) ([]*Object, error)
}

// BlobStore stores opaque byte sequences under keys.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) error
	// Read fails with corerr.ErrNotFound when the key is absent.
	Read(ctx context.Context, key string) ([]byte, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete of an absent key succeeds.
	Delete(ctx context.Context, key string) error
}

// Sniffer derives a media type from the leading bytes of a blob.
type Sniffer interface {
	Detect(prefix []byte) string
}

// KeyGenerator derives the blob key for a revision of an object.
type KeyGenerator interface {
	GenerateKey(name string, revision uuid.UUID) string
}

// EventSink receives lifecycle notifications. Errors are logged by the
// service and never fail the operation that triggered them.
type EventSink interface {
	ObjectCreated(ctx context.Context, obj *Object) error
	ObjectUpdated(ctx context.Context, obj *Object) error
	ObjectDeleted(ctx context.Context, obj *Object) error
}
