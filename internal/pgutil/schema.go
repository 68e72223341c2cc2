package pgutil

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schema lists the DDL statements for every table the core owns, in
// dependency order. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS media_object (
		name           VARCHAR(200) PRIMARY KEY,
		blob_ref       VARCHAR(1024) NOT NULL,
		content_type   VARCHAR(200) NOT NULL,
		uploader       VARCHAR(200) NOT NULL,
		safety_checked BOOLEAN NOT NULL DEFAULT FALSE,
		size_bytes     BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		modified_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS media_object_created_idx ON media_object (created_at, name)`,
	`CREATE INDEX IF NOT EXISTS media_object_unchecked_idx ON media_object (created_at) WHERE NOT safety_checked`,

	`CREATE TABLE IF NOT EXISTS post (
		id         UUID PRIMARY KEY,
		title      VARCHAR(256) NOT NULL DEFAULT '',
		hit_count  BIGINT NOT NULL DEFAULT 0 CHECK (hit_count >= 0),
		like_count BIGINT NOT NULL DEFAULT 0 CHECK (like_count >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS post_hit_address (
		id          UUID PRIMARY KEY,
		post_id     UUID NOT NULL REFERENCES post(id) ON DELETE CASCADE,
		address     VARCHAR(45) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS post_hit_address_lookup_idx ON post_hit_address (post_id, address, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS post_like_address (
		id          UUID PRIMARY KEY,
		post_id     UUID NOT NULL REFERENCES post(id) ON DELETE CASCADE,
		address     VARCHAR(45) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS post_like_address_lookup_idx ON post_like_address (post_id, address, occurred_at)`,

	`CREATE TABLE IF NOT EXISTS tag (
		id         UUID PRIMARY KEY,
		identifier VARCHAR(20) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS tag_translation (
		tag_id   UUID NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
		language VARCHAR(8) NOT NULL,
		name     VARCHAR(20) NOT NULL,
		PRIMARY KEY (tag_id, language)
	)`,
	`CREATE TABLE IF NOT EXISTS post_tag (
		post_id     UUID NOT NULL REFERENCES post(id) ON DELETE CASCADE,
		tag_id      UUID NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
		seq         BIGSERIAL NOT NULL,
		attached_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (post_id, tag_id)
	)`,
}

// Tables lists the tables created by Migrate, children first, so callers
// can truncate them in a safe order.
var Tables = []string{
	"post_tag", "tag_translation", "tag",
	"post_hit_address", "post_like_address", "post",
	"media_object",
}

// Migrate creates the schema (when non-empty) and all tables inside it, in
// a single transaction.
func Migrate(ctx context.Context, db DBTX, schemaName string) error {
	return InTx(ctx, db, "migrate", func(tx pgx.Tx) error {
		if schemaName != "" {
			ident := pgx.Identifier{schemaName}.Sanitize()
			if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+ident); err != nil {
				return fmt.Errorf("set search_path: %w", err)
			}
		}
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
