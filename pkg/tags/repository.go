package tags

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists tags, their translations and the post/tag relation.
type Repository interface {
	// CreateTag fails with corerr.ErrConflict when the identifier is taken.
	CreateTag(ctx context.Context, tag *Tag) error
	GetTag(ctx context.Context, id uuid.UUID) (*Tag, error)
	GetTagByIdentifier(ctx context.Context, identifier string) (*Tag, error)
	// DeleteTag removes the tag with its translations and post relations.
	DeleteTag(ctx context.Context, id uuid.UUID) error

	// UpsertTranslation creates or replaces the (tag, language) translation.
	UpsertTranslation(ctx context.Context, tr Translation) error
	GetTranslation(ctx context.Context, tagID uuid.UUID, language string) (*Translation, error)
	ListTranslations(ctx context.Context, tagID uuid.UUID) ([]Translation, error)

	// AttachTag relates a post and a tag. Attaching twice is a no-op that
	// keeps the original position.
	AttachTag(ctx context.Context, postID, tagID uuid.UUID, at time.Time) error
	DetachTag(ctx context.Context, postID, tagID uuid.UUID) error
	// ListPostTags returns the tags of a post in attach order.
	ListPostTags(ctx context.Context, postID uuid.UUID) ([]Tag, error)
}
