package tags

import (
	"github.com/google/uuid"
)

// Tag is a url-safe label attached to posts.
type Tag struct {
	ID         uuid.UUID `json:"id"`
	Identifier string    `json:"identifier"`
}

// Translation is the display name of a tag in one language.
type Translation struct {
	TagID    uuid.UUID `json:"tag_id"`
	Language string    `json:"language"`
	Name     string    `json:"name"`
}

// Resolution is the outcome of a translation lookup. Name is meaningful
// only when Found is true.
type Resolution struct {
	Name  string
	Found bool
}

const (
	MaxIdentifierLength = 20
	MaxNameLength       = 20
	MaxLanguageLength   = 8
)
