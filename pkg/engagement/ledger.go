// Package engagement keeps the hit and like counters of blog posts together
// with the per-address event logs they are derived from.
//
// Counting an event appends a log row and increments the post's counter in
// one step, so under the default policy a counter always equals the number
// of rows in its log. An optional per-kind dedup window suppresses repeat
// events from the same address; suppressed events are neither logged nor
// counted.
package engagement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-blog/pkg/corerr"
)

// Ledger records engagement events against posts.
type Ledger struct {
	repo       Repository
	hitWindow  time.Duration
	likeWindow time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHitDedupWindow ignores repeat hits from one address within d. Zero
// counts every hit.
func WithHitDedupWindow(d time.Duration) Option {
	return func(l *Ledger) {
		l.hitWindow = d
	}
}

// WithLikeDedupWindow ignores repeat likes from one address within d.
func WithLikeDedupWindow(d time.Duration) Option {
	return func(l *Ledger) {
		l.likeWindow = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock sets the time source used when callers pass a zero time.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger over repo.
func New(repo Repository, opts ...Option) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	l := &Ledger{
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.hitWindow < 0 || l.likeWindow < 0 {
		return nil, fmt.Errorf("dedup windows must not be negative")
	}
	return l, nil
}

// CreatePost registers a post with zero counters. A zero createdAt means now.
func (l *Ledger) CreatePost(ctx context.Context, title string, createdAt time.Time) (*Post, error) {
	post := &Post{ID: uuid.New(), Title: title, CreatedAt: createdAt}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, &PostError{PostID: post.ID, Op: "create", Err: corerr.Invalid(fmt.Sprintf("title exceeds %d characters", MaxTitleLength))}
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = l.now()
	}
	post.CreatedAt = post.CreatedAt.UTC().Truncate(time.Microsecond)

	if err := l.repo.CreatePost(ctx, post); err != nil {
		return nil, &PostError{PostID: post.ID, Op: "create", Err: err}
	}
	return post, nil
}

func (l *Ledger) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	post, err := l.repo.GetPost(ctx, id)
	if err != nil {
		return nil, &PostError{PostID: id, Op: "get", Err: err}
	}
	return post, nil
}

// RecordHit logs a hit from address at now and bumps HitCount. It returns
// false only when the hit was suppressed by the dedup window.
func (l *Ledger) RecordHit(ctx context.Context, postID uuid.UUID, address string, now time.Time) (bool, error) {
	return l.record(ctx, KindHit, l.hitWindow, postID, address, now)
}

// RecordLike logs a like from address at now and bumps LikeCount.
func (l *Ledger) RecordLike(ctx context.Context, postID uuid.UUID, address string, now time.Time) (bool, error) {
	return l.record(ctx, KindLike, l.likeWindow, postID, address, now)
}

func (l *Ledger) record(ctx context.Context, kind Kind, window time.Duration, postID uuid.UUID, address string, now time.Time) (bool, error) {
	op := "record_" + string(kind)
	if err := validateAddress(address); err != nil {
		return false, &PostError{PostID: postID, Op: op, Err: err}
	}
	if now.IsZero() {
		now = l.now()
	}

	ev := &Event{
		ID:         uuid.New(),
		PostID:     postID,
		Kind:       kind,
		Address:    address,
		OccurredAt: now.UTC().Truncate(time.Microsecond),
	}
	counted, err := l.repo.RecordEvent(ctx, ev, window)
	if err != nil {
		return false, &PostError{PostID: postID, Op: op, Err: err}
	}
	if !counted {
		l.logger.DebugContext(ctx, "duplicate event suppressed", "post_id", postID, "kind", kind, "address", address)
	}
	return counted, nil
}

func (l *Ledger) HitCount(ctx context.Context, postID uuid.UUID) (int64, error) {
	post, err := l.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	return post.HitCount, nil
}

func (l *Ledger) LikeCount(ctx context.Context, postID uuid.UUID) (int64, error) {
	post, err := l.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	return post.LikeCount, nil
}

// EventCount returns the number of logged events of kind for the post.
// Under the default policy it equals the matching counter.
func (l *Ledger) EventCount(ctx context.Context, postID uuid.UUID, kind Kind) (int64, error) {
	if !kind.Valid() {
		return 0, &PostError{PostID: postID, Op: "event_count", Err: corerr.Invalid(fmt.Sprintf("unknown kind %q", kind))}
	}
	n, err := l.repo.CountEvents(ctx, postID, kind)
	if err != nil {
		return 0, &PostError{PostID: postID, Op: "event_count", Err: err}
	}
	return n, nil
}

// TopPosts returns up to limit posts with the highest counter of kind,
// newest first among equals.
func (l *Ledger) TopPosts(ctx context.Context, kind Kind, limit int) ([]*Post, error) {
	if !kind.Valid() {
		return nil, corerr.Invalid(fmt.Sprintf("unknown kind %q", kind))
	}
	if limit <= 0 {
		limit = DefaultTopPostsLimit
	}
	posts, err := l.repo.TopPosts(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("top posts by %s: %w", kind, err)
	}
	return posts, nil
}

// IsRecentPost reports whether post is less than 24 hours old at now.
func (l *Ledger) IsRecentPost(post *Post, now time.Time) bool {
	return IsRecentPost(post, now)
}

func validateAddress(address string) error {
	switch {
	case strings.TrimSpace(address) == "":
		return corerr.Invalid("address is empty")
	case len(address) > MaxAddressLength:
		return corerr.Invalid(fmt.Sprintf("address exceeds %d characters", MaxAddressLength))
	}
	return nil
}
