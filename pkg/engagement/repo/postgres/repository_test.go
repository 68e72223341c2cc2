package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-blog/internal/pgutil/pgtest"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/engagement"
	"github.com/tendant/simple-blog/pkg/engagement/repo/postgres"
)

const testSchema = "engagement_test"

func TestPostgresLedger(t *testing.T) {
	pgtest.RunTest(t, testSchema, func(t *testing.T, db *pgtest.TestDB) {
		ctx := context.Background()
		ledger, err := engagement.New(postgres.NewWithPool(db.Pool))
		require.NoError(t, err)
		base := time.Now().UTC().Truncate(time.Microsecond)

		post, err := ledger.CreatePost(ctx, "first post", base)
		require.NoError(t, err)

		t.Run("GetPost", func(t *testing.T) {
			got, err := ledger.GetPost(ctx, post.ID)
			require.NoError(t, err)
			assert.Equal(t, post, got)

			_, err = ledger.GetPost(ctx, uuid.New())
			assert.ErrorIs(t, err, corerr.ErrNotFound)
		})

		t.Run("ConcurrentHits", func(t *testing.T) {
			const n = 100
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(16)
			for i := 0; i < n; i++ {
				g.Go(func() error {
					_, err := ledger.RecordHit(gctx, post.ID, fmt.Sprintf("10.0.0.%d", i), time.Now())
					return err
				})
			}
			require.NoError(t, g.Wait())

			hits, err := ledger.HitCount(ctx, post.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(n), hits)

			events, err := ledger.EventCount(ctx, post.ID, engagement.KindHit)
			require.NoError(t, err)
			assert.Equal(t, int64(n), events)
		})

		t.Run("UnknownPost", func(t *testing.T) {
			_, err := ledger.RecordLike(ctx, uuid.New(), "10.0.0.1", time.Now())
			assert.ErrorIs(t, err, corerr.ErrNotFound)

			_, err = ledger.EventCount(ctx, uuid.New(), engagement.KindLike)
			assert.ErrorIs(t, err, corerr.ErrNotFound)
		})

		t.Run("ConcurrentDedup", func(t *testing.T) {
			dedup, err := engagement.New(postgres.NewWithPool(db.Pool), engagement.WithLikeDedupWindow(time.Hour))
			require.NoError(t, err)

			now := time.Now()
			var g errgroup.Group
			for i := 0; i < 10; i++ {
				g.Go(func() error {
					_, err := dedup.RecordLike(ctx, post.ID, "192.0.2.1", now)
					return err
				})
			}
			require.NoError(t, g.Wait())

			likes, err := dedup.LikeCount(ctx, post.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), likes)
		})

		t.Run("TopPosts", func(t *testing.T) {
			quiet, err := ledger.CreatePost(ctx, "quiet", base.Add(time.Hour))
			require.NoError(t, err)

			top, err := ledger.TopPosts(ctx, engagement.KindHit, 5)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, post.ID, top[0].ID)
			assert.Equal(t, quiet.ID, top[1].ID)
		})
	})
}
