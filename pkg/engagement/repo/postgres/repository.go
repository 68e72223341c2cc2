package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-blog/internal/pgutil"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/engagement"
)

// kindTables maps each event kind to its log table and counter column.
var kindTables = map[engagement.Kind]struct{ table, counter string }{
	engagement.KindHit:  {table: "post_hit_address", counter: "hit_count"},
	engagement.KindLike: {table: "post_like_address", counter: "like_count"},
}

// Repository implements engagement.Repository using PostgreSQL
type Repository struct {
	db pgutil.DBTX
}

var _ engagement.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db pgutil.DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) CreatePost(ctx context.Context, post *engagement.Post) error {
	query := `
		INSERT INTO post (id, title, hit_count, like_count, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, post.ID, post.Title, post.HitCount, post.LikeCount, post.CreatedAt)
	if err != nil {
		return pgutil.Classify("create post", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*engagement.Post, error) {
	query := `SELECT id, title, hit_count, like_count, created_at FROM post WHERE id = $1`

	post, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, pgutil.Classify("get post", err)
	}
	return post, nil
}

// RecordEvent runs the dedup check, the counter update and the log insert
// in one transaction. With a dedup window, concurrent events for the same
// (post, kind, address) are serialised by a transaction-scoped advisory lock.
func (r *Repository) RecordEvent(ctx context.Context, ev *engagement.Event, window time.Duration) (bool, error) {
	tbl, ok := kindTables[ev.Kind]
	if !ok {
		return false, corerr.Invalid(fmt.Sprintf("unknown kind %q", ev.Kind))
	}

	counted := false
	err := pgutil.InTx(ctx, r.db, "record "+string(ev.Kind), func(tx pgx.Tx) error {
		if window > 0 {
			lockKey := ev.PostID.String() + "/" + string(ev.Kind) + "/" + ev.Address
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
				return err
			}
			var seen bool
			query := `SELECT EXISTS (SELECT 1 FROM ` + tbl.table + ` WHERE post_id = $1 AND address = $2 AND occurred_at > $3)`
			if err := tx.QueryRow(ctx, query, ev.PostID, ev.Address, ev.OccurredAt.Add(-window)).Scan(&seen); err != nil {
				return err
			}
			if seen {
				return nil
			}
		}

		var n int64
		update := `UPDATE post SET ` + tbl.counter + ` = ` + tbl.counter + ` + 1 WHERE id = $1 RETURNING ` + tbl.counter
		if err := tx.QueryRow(ctx, update, ev.PostID).Scan(&n); err != nil {
			return err
		}

		insert := `INSERT INTO ` + tbl.table + ` (id, post_id, address, occurred_at) VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(ctx, insert, ev.ID, ev.PostID, ev.Address, ev.OccurredAt); err != nil {
			return err
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}

func (r *Repository) CountEvents(ctx context.Context, postID uuid.UUID, kind engagement.Kind) (int64, error) {
	tbl, ok := kindTables[kind]
	if !ok {
		return 0, corerr.Invalid(fmt.Sprintf("unknown kind %q", kind))
	}

	// The post lookup distinguishes "no events" from "no post".
	query := `
		SELECT (SELECT count(*) FROM ` + tbl.table + ` e WHERE e.post_id = p.id)
		FROM post p WHERE p.id = $1`

	var n int64
	if err := r.db.QueryRow(ctx, query, postID).Scan(&n); err != nil {
		return 0, pgutil.Classify("count events", err)
	}
	return n, nil
}

func (r *Repository) TopPosts(ctx context.Context, kind engagement.Kind, limit int) ([]*engagement.Post, error) {
	tbl, ok := kindTables[kind]
	if !ok {
		return nil, corerr.Invalid(fmt.Sprintf("unknown kind %q", kind))
	}

	query := `
		SELECT id, title, hit_count, like_count, created_at FROM post
		ORDER BY ` + tbl.counter + ` DESC, created_at DESC, id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, pgutil.Classify("top posts", err)
	}
	defer rows.Close()

	var posts []*engagement.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, pgutil.Classify("top posts", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, pgutil.Classify("top posts", err)
	}
	return posts, nil
}

func scanPost(row pgx.Row) (*engagement.Post, error) {
	var post engagement.Post
	if err := row.Scan(&post.ID, &post.Title, &post.HitCount, &post.LikeCount, &post.CreatedAt); err != nil {
		return nil, err
	}
	post.CreatedAt = post.CreatedAt.UTC()
	return &post, nil
}
