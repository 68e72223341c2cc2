package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/engagement"
)

// Repository implements engagement.Repository using in-memory storage.
// One mutex guards posts and logs, so append and increment are atomic.
type Repository struct {
	mu     sync.RWMutex
	posts  map[uuid.UUID]*engagement.Post
	events map[uuid.UUID][]engagement.Event
}

var _ engagement.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		posts:  make(map[uuid.UUID]*engagement.Post),
		events: make(map[uuid.UUID][]engagement.Event),
	}
}

func (r *Repository) CreatePost(ctx context.Context, post *engagement.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[post.ID]; exists {
		return fmt.Errorf("post %s: %w", post.ID, corerr.ErrConflict)
	}
	postCopy := *post
	r.posts[post.ID] = &postCopy
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*engagement.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[id]
	if !exists {
		return nil, fmt.Errorf("post %s: %w", id, corerr.ErrNotFound)
	}
	postCopy := *post
	return &postCopy, nil
}

func (r *Repository) RecordEvent(ctx context.Context, ev *engagement.Event, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, exists := r.posts[ev.PostID]
	if !exists {
		return false, fmt.Errorf("post %s: %w", ev.PostID, corerr.ErrNotFound)
	}

	if window > 0 {
		since := ev.OccurredAt.Add(-window)
		for _, prev := range r.events[ev.PostID] {
			if prev.Kind == ev.Kind && prev.Address == ev.Address && prev.OccurredAt.After(since) {
				return false, nil
			}
		}
	}

	r.events[ev.PostID] = append(r.events[ev.PostID], *ev)
	switch ev.Kind {
	case engagement.KindHit:
		post.HitCount++
	case engagement.KindLike:
		post.LikeCount++
	}
	return true, nil
}

func (r *Repository) CountEvents(ctx context.Context, postID uuid.UUID, kind engagement.Kind) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.posts[postID]; !exists {
		return 0, fmt.Errorf("post %s: %w", postID, corerr.ErrNotFound)
	}
	var n int64
	for _, ev := range r.events[postID] {
		if ev.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (r *Repository) TopPosts(ctx context.Context, kind engagement.Kind, limit int) ([]*engagement.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]*engagement.Post, 0, len(r.posts))
	for _, p := range r.posts {
		postCopy := *p
		posts = append(posts, &postCopy)
	}
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.Count(kind) != b.Count(kind) {
			return a.Count(kind) > b.Count(kind)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	return posts, nil
}
