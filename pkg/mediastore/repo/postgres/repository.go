package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-blog/internal/pgutil"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/mediastore"
)

const objectColumns = `name, blob_ref, content_type, uploader, safety_checked, size_bytes, created_at, modified_at`

// Repository implements mediastore.Repository using PostgreSQL
type Repository struct {
	db pgutil.DBTX
}

var _ mediastore.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db pgutil.DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) CreateObject(ctx context.Context, obj *mediastore.Object) error {
	query := `
		INSERT INTO media_object (` + objectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		obj.Name, obj.BlobRef, obj.ContentType, obj.Uploader,
		obj.SafetyChecked, obj.SizeBytes, obj.CreatedAt, obj.ModifiedAt)
	if err != nil {
		return pgutil.Classify("create object", err)
	}
	return nil
}

func (r *Repository) GetObject(ctx context.Context, name string) (*mediastore.Object, error) {
	query := `SELECT ` + objectColumns + ` FROM media_object WHERE name = $1`

	obj, err := scanObject(r.db.QueryRow(ctx, query, name))
	if err != nil {
		return nil, pgutil.Classify("get object", err)
	}
	return obj, nil
}

func (r *Repository) SwapBlob(ctx context.Context, u mediastore.BlobUpdate) (*mediastore.Object, error) {
	query := `
		UPDATE media_object SET
			blob_ref = $3, content_type = $4, size_bytes = $5, modified_at = $6
		WHERE name = $1 AND blob_ref = $2
		RETURNING ` + objectColumns

	obj, err := scanObject(r.db.QueryRow(ctx, query,
		u.Name, u.OldRef, u.NewRef, u.ContentType, u.SizeBytes, u.ModifiedAt))
	if err == nil {
		return obj, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, pgutil.Classify("swap blob", err)
	}

	// Nothing matched: either the record is gone or another revision won.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM media_object WHERE name = $1)`, u.Name).Scan(&exists); err != nil {
		return nil, pgutil.Classify("swap blob", err)
	}
	if !exists {
		return nil, fmt.Errorf("swap blob %q: %w", u.Name, corerr.ErrNotFound)
	}
	return nil, fmt.Errorf("swap blob %q: %w", u.Name, mediastore.ErrRefChanged)
}

func (r *Repository) SetSafetyChecked(ctx context.Context, name string, checked bool, modifiedAt time.Time) (*mediastore.Object, error) {
	query := `
		UPDATE media_object SET safety_checked = $2, modified_at = $3
		WHERE name = $1
		RETURNING ` + objectColumns

	obj, err := scanObject(r.db.QueryRow(ctx, query, name, checked, modifiedAt))
	if err != nil {
		return nil, pgutil.Classify("set safety checked", err)
	}
	return obj, nil
}

func (r *Repository) DeleteObject(ctx context.Context, name string) (*mediastore.Object, error) {
	query := `DELETE FROM media_object WHERE name = $1 RETURNING ` + objectColumns

	obj, err := scanObject(r.db.QueryRow(ctx, query, name))
	if err != nil {
		return nil, pgutil.Classify("delete object", err)
	}
	return obj, nil
}

func (r *Repository) ListObjects(ctx context.Context, req mediastore.ListObjectsRequest) ([]*mediastore.Object, error) {
	var (
		where []string
		args  []interface{}
	)
	if req.Uploader != "" {
		args = append(args, req.Uploader)
		where = append(where, fmt.Sprintf("uploader = $%d", len(args)))
	}
	if req.SafetyChecked != nil {
		args = append(args, *req.SafetyChecked)
		where = append(where, fmt.Sprintf("safety_checked = $%d", len(args)))
	}
	if req.After != nil {
		args = append(args, req.After.CreatedAt, req.After.Name)
		where = append(where, fmt.Sprintf("(created_at, name) > ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + objectColumns + ` FROM media_object`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, name"
	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, pgutil.Classify("list objects", err)
	}
	defer rows.Close()

	var objects []*mediastore.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, pgutil.Classify("list objects", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, pgutil.Classify("list objects", err)
	}
	return objects, nil
}

func scanObject(row pgx.Row) (*mediastore.Object, error) {
	var obj mediastore.Object
	err := row.Scan(
		&obj.Name, &obj.BlobRef, &obj.ContentType, &obj.Uploader,
		&obj.SafetyChecked, &obj.SizeBytes, &obj.CreatedAt, &obj.ModifiedAt)
	if err != nil {
		return nil, err
	}
	obj.CreatedAt = obj.CreatedAt.UTC()
	obj.ModifiedAt = obj.ModifiedAt.UTC()
	return &obj, nil
}
