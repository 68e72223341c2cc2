package mediastore

import "time"

// Object is the metadata record of a stored artifact.
type Object struct {
	Name          string    `json:"name"`
	BlobRef       string    `json:"blob_ref"`
	ContentType   string    `json:"content_type"`
	Uploader      string    `json:"uploader"`
	SafetyChecked bool      `json:"safety_checked"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// ListObjectsRequest filters and pages a listing. Zero values mean "any".
// Results are ordered by CreatedAt, then Name.
type ListObjectsRequest struct {
	Uploader      string
	SafetyChecked *bool
	// After restricts the listing to objects sorting strictly after the
	// cursor. Unlike Offset it stays stable while objects are modified.
	After  *Cursor
	Limit  int
	Offset int
}

// Cursor is a position in the (CreatedAt, Name) listing order.
type Cursor struct {
	CreatedAt time.Time
	Name      string
}

// CursorOf returns the cursor positioned at obj.
func CursorOf(obj *Object) *Cursor {
	return &Cursor{CreatedAt: obj.CreatedAt, Name: obj.Name}
}

// BlobUpdate describes a compare-and-swap of an object's blob reference.
type BlobUpdate struct {
	Name        string
	OldRef      string
	NewRef      string
	ContentType string
	SizeBytes   int64
	ModifiedAt  time.Time
}

const (
	// MaxNameLength is the longest accepted object name.
	MaxNameLength = 200
	// MaxUploaderLength is the longest accepted uploader identity.
	MaxUploaderLength = 200
	// SniffLength is how many leading bytes are inspected for the content type.
	SniffLength = 1024
	// DefaultMaxObjectSize bounds Create and UpdateContent unless overridden.
	DefaultMaxObjectSize = 32 << 20
)
