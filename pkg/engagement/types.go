package engagement

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two engagement event streams.
type Kind string

const (
	KindHit  Kind = "hit"
	KindLike Kind = "like"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindHit || k == KindLike
}

// Post carries the denormalized counters of a blog post.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	HitCount  int64     `json:"hit_count"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Count returns the counter for kind.
func (p *Post) Count(kind Kind) int64 {
	if kind == KindLike {
		return p.LikeCount
	}
	return p.HitCount
}

// Event is one append-only row of a post's hit or like log.
type Event struct {
	ID         uuid.UUID `json:"id"`
	PostID     uuid.UUID `json:"post_id"`
	Kind       Kind      `json:"kind"`
	Address    string    `json:"address"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	// MaxAddressLength fits a textual IPv6 address.
	MaxAddressLength = 45
	// MaxTitleLength is the longest accepted post title.
	MaxTitleLength = 256
	// RecentWindow is how long a post counts as recent.
	RecentWindow = 24 * time.Hour
	// DefaultTopPostsLimit applies when TopPosts gets a non-positive limit.
	DefaultTopPostsLimit = 10
)

// IsRecentPost reports whether post was created less than 24 hours before
// now. A post without a creation time is never recent.
func IsRecentPost(post *Post, now time.Time) bool {
	if post == nil || post.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(post.CreatedAt) < RecentWindow
}
