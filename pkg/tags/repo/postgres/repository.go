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
	"github.com/tendant/simple-blog/pkg/tags"
)

// Repository implements tags.Repository using PostgreSQL. Translations and
// post relations are removed with their tag by ON DELETE CASCADE.
type Repository struct {
	db pgutil.DBTX
}

var _ tags.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db pgutil.DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) CreateTag(ctx context.Context, tag *tags.Tag) error {
	_, err := r.db.Exec(ctx, `INSERT INTO tag (id, identifier) VALUES ($1, $2)`, tag.ID, tag.Identifier)
	if err != nil {
		return pgutil.Classify("create tag", err)
	}
	return nil
}

func (r *Repository) GetTag(ctx context.Context, id uuid.UUID) (*tags.Tag, error) {
	var tag tags.Tag
	err := r.db.QueryRow(ctx, `SELECT id, identifier FROM tag WHERE id = $1`, id).Scan(&tag.ID, &tag.Identifier)
	if err != nil {
		return nil, pgutil.Classify("get tag", err)
	}
	return &tag, nil
}

func (r *Repository) GetTagByIdentifier(ctx context.Context, identifier string) (*tags.Tag, error) {
	var tag tags.Tag
	err := r.db.QueryRow(ctx, `SELECT id, identifier FROM tag WHERE identifier = $1`, identifier).Scan(&tag.ID, &tag.Identifier)
	if err != nil {
		return nil, pgutil.Classify("get tag", err)
	}
	return &tag, nil
}

func (r *Repository) DeleteTag(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM tag WHERE id = $1`, id)
	if err != nil {
		return pgutil.Classify("delete tag", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delete tag %s: %w", id, corerr.ErrNotFound)
	}
	return nil
}

func (r *Repository) UpsertTranslation(ctx context.Context, tr tags.Translation) error {
	query := `
		INSERT INTO tag_translation (tag_id, language, name) VALUES ($1, $2, $3)
		ON CONFLICT (tag_id, language) DO UPDATE SET name = EXCLUDED.name`

	if _, err := r.db.Exec(ctx, query, tr.TagID, tr.Language, tr.Name); err != nil {
		return pgutil.Classify("upsert translation", err)
	}
	return nil
}

func (r *Repository) GetTranslation(ctx context.Context, tagID uuid.UUID, language string) (*tags.Translation, error) {
	tr := tags.Translation{TagID: tagID, Language: language}
	err := r.db.QueryRow(ctx,
		`SELECT name FROM tag_translation WHERE tag_id = $1 AND language = $2`,
		tagID, language).Scan(&tr.Name)
	if err != nil {
		return nil, pgutil.Classify("get translation", err)
	}
	return &tr, nil
}

func (r *Repository) ListTranslations(ctx context.Context, tagID uuid.UUID) ([]tags.Translation, error) {
	if _, err := r.GetTag(ctx, tagID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT tag_id, language, name FROM tag_translation WHERE tag_id = $1 ORDER BY language`, tagID)
	if err != nil {
		return nil, pgutil.Classify("list translations", err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tags.Translation])
	if err != nil {
		return nil, pgutil.Classify("list translations", err)
	}
	return result, nil
}

func (r *Repository) AttachTag(ctx context.Context, postID, tagID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO post_tag (post_id, tag_id, attached_at) VALUES ($1, $2, $3)
		ON CONFLICT (post_id, tag_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, postID, tagID, at); err != nil {
		return pgutil.Classify("attach tag", err)
	}
	return nil
}

func (r *Repository) DetachTag(ctx context.Context, postID, tagID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM post_tag WHERE post_id = $1 AND tag_id = $2`, postID, tagID); err != nil {
		return pgutil.Classify("detach tag", err)
	}
	return nil
}

func (r *Repository) ListPostTags(ctx context.Context, postID uuid.UUID) ([]tags.Tag, error) {
	query := `
		SELECT t.id, t.identifier FROM post_tag pt
		JOIN tag t ON t.id = pt.tag_id
		WHERE pt.post_id = $1
		ORDER BY pt.seq`

	rows, err := r.db.Query(ctx, query, postID)
	if err != nil {
		return nil, pgutil.Classify("list post tags", err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tags.Tag])
	if err != nil {
		return nil, pgutil.Classify("list post tags", err)
	}
	return result, nil
}
