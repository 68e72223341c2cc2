package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists posts and their event logs.
type Repository interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	// RecordEvent appends ev and increments the matching counter of its
	// post as one atomic step. When window is positive and the same address
	// already has an event of that kind for the post newer than
	// ev.OccurredAt-window, nothing is written and counted is false.
	RecordEvent(ctx context.Context, ev *Event, window time.Duration) (counted bool, err error)
	CountEvents(ctx context.Context, postID uuid.UUID, kind Kind) (int64, error)
	// TopPosts orders posts by the counter of kind, descending, then by
	// CreatedAt newest first.
	TopPosts(ctx context.Context, kind Kind, limit int) ([]*Post, error)
}
