package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/internal/pgutil/pgtest"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/tags"
	"github.com/tendant/simple-blog/pkg/tags/repo/postgres"
)

const testSchema = "tags_test"

func createPost(t *testing.T, db *pgtest.TestDB, title string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO post (id, title, created_at) VALUES ($1, $2, $3)`, id, title, time.Now().UTC())
	require.NoError(t, err)
	return id
}

func TestPostgresCatalog(t *testing.T) {
	pgtest.RunTest(t, testSchema, func(t *testing.T, db *pgtest.TestDB) {
		ctx := context.Background()
		catalog, err := tags.New(postgres.NewWithPool(db.Pool))
		require.NoError(t, err)

		golang, err := catalog.CreateTag(ctx, "golang")
		require.NoError(t, err)

		t.Run("Conflict", func(t *testing.T) {
			_, err := catalog.CreateTag(ctx, "golang")
			assert.ErrorIs(t, err, corerr.ErrConflict)
		})

		t.Run("Resolve", func(t *testing.T) {
			require.NoError(t, catalog.SetTranslation(ctx, golang.ID, "fr", "Go (fr)"))
			require.NoError(t, catalog.SetTranslation(ctx, golang.ID, "fr", "Le Go"))
			require.NoError(t, catalog.SetTranslation(ctx, golang.ID, "en-us", "Go Language"))

			assert.Equal(t, "Le Go", catalog.Resolve(ctx, *golang, "fr"))
			assert.Equal(t, "Go Language", catalog.Resolve(ctx, *golang, "en-US"))
			assert.Equal(t, "golang", catalog.Resolve(ctx, *golang, "de"))

			trs, err := catalog.Translations(ctx, golang.ID)
			require.NoError(t, err)
			require.Len(t, trs, 2)
			assert.Equal(t, tags.Translation{TagID: golang.ID, Language: "en-US", Name: "Go Language"}, trs[0])

			err = catalog.SetTranslation(ctx, uuid.New(), "fr", "x")
			assert.ErrorIs(t, err, corerr.ErrNotFound)
		})

		t.Run("PostTags", func(t *testing.T) {
			post := createPost(t, db, "tagged")
			web, err := catalog.CreateTag(ctx, "web")
			require.NoError(t, err)
			db1, err := catalog.CreateTag(ctx, "databases")
			require.NoError(t, err)

			require.NoError(t, catalog.AttachTag(ctx, post, web.ID))
			require.NoError(t, catalog.AttachTag(ctx, post, golang.ID))
			require.NoError(t, catalog.AttachTag(ctx, post, db1.ID))
			require.NoError(t, catalog.AttachTag(ctx, post, web.ID))

			csv, err := catalog.TagsAsCSV(ctx, post)
			require.NoError(t, err)
			assert.Equal(t, "web,golang,databases", csv)

			require.NoError(t, catalog.DetachTag(ctx, post, golang.ID))
			require.NoError(t, catalog.DeleteTag(ctx, db1.ID))
			assert.ErrorIs(t, catalog.DeleteTag(ctx, db1.ID), corerr.ErrNotFound)

			csv, err = catalog.TagsAsCSV(ctx, post)
			require.NoError(t, err)
			assert.Equal(t, "web", csv)

			err = catalog.AttachTag(ctx, uuid.New(), web.ID)
			assert.ErrorIs(t, err, corerr.ErrNotFound)
		})
	})
}
