package tags_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/tags"
	"github.com/tendant/simple-blog/pkg/tags/repo/memory"
)

// countingRepo counts translation reads and can be made to fail them.
type countingRepo struct {
	*memory.Repository
	reads atomic.Int64
	fail  atomic.Bool
}

func (r *countingRepo) GetTranslation(ctx context.Context, tagID uuid.UUID, lang string) (*tags.Translation, error) {
	r.reads.Add(1)
	if r.fail.Load() {
		return nil, corerr.Unavailable(errors.New("connection refused"))
	}
	return r.Repository.GetTranslation(ctx, tagID, lang)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCatalog(t *testing.T, opts ...tags.Option) (*tags.Catalog, *countingRepo) {
	t.Helper()
	repo := &countingRepo{Repository: memory.New()}
	opts = append([]tags.Option{tags.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	c, err := tags.New(repo, opts...)
	require.NoError(t, err)
	return c, repo
}

func TestNew(t *testing.T) {
	_, err := tags.New(nil)
	assert.Error(t, err)

	_, err = tags.New(memory.New(), tags.WithCache(-1, time.Minute))
	assert.Error(t, err)

	c, err := tags.New(memory.New(), tags.WithCache(0, 0))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestCreateTag(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	tag, err := c.CreateTag(ctx, "go-1.24_rc~2")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tag.ID)

	got, err := c.GetTag(ctx, "go-1.24_rc~2")
	require.NoError(t, err)
	assert.Equal(t, tag, got)

	_, err = c.CreateTag(ctx, "go-1.24_rc~2")
	assert.ErrorIs(t, err, corerr.ErrConflict)

	_, err = c.GetTag(ctx, "missing")
	assert.ErrorIs(t, err, corerr.ErrNotFound)

	var tagErr *tags.TagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, "get", tagErr.Op)
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "golang", true},
		{"all symbols", "a.b_c~d-e", true},
		{"max length", strings.Repeat("x", 20), true},
		{"empty", "", false},
		{"too long", strings.Repeat("x", 21), false},
		{"space", "go lang", false},
		{"slash", "go/lang", false},
		{"non ascii", "café", false},
		{"comma", "a,b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tags.ValidateIdentifier(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, corerr.ErrInvalidInput)
			}
		})
	}
}

func TestCanonicalLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
		valid bool
	}{
		{"en", "en", true},
		{"en-us", "en-US", true},
		{"EN-GB", "en-GB", true},
		{"zh-Hant", "zh-Hant", true},
		{"", "", false},
		{"not a language", "", false},
		{"en-US-x-private", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := tags.CanonicalLanguage(tt.input)
			if !tt.valid {
				assert.ErrorIs(t, err, corerr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetTranslation_Validation(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)

	tests := []struct {
		name string
		lang string
		text string
	}{
		{"blank name", "fr", "   "},
		{"empty name", "fr", ""},
		{"long name", "fr", strings.Repeat("é", 21)},
		{"bad language", "??", "Go"},
		{"long language", "abcdefghij", "Go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SetTranslation(ctx, tag.ID, tt.lang, tt.text)
			assert.ErrorIs(t, err, corerr.ErrInvalidInput)
		})
	}

	// Twenty multi-byte characters are accepted.
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", strings.Repeat("é", 20)))

	err = c.SetTranslation(ctx, uuid.New(), "fr", "Go")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
}

func TestResolve(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)

	require.NoError(t, c.SetTranslation(ctx, tag.ID, "en-us", "Go Language"))
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", "Le Go"))

	tests := []struct {
		lang string
		want string
	}{
		{"fr", "Le Go"},
		{"en-US", "Go Language"},
		{"en-us", "Go Language"},
		{"en", "golang"},
		{"de", "golang"},
		{"not a language", "golang"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Resolve(ctx, *tag, tt.lang))
		})
	}

	res, err := c.Lookup(ctx, *tag, "de")
	require.NoError(t, err)
	assert.False(t, res.Found)

	_, err = c.Lookup(ctx, *tag, "not a language")
	assert.ErrorIs(t, err, corerr.ErrInvalidInput)

	trs, err := c.Translations(ctx, tag.ID)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "en-US", trs[0].Language)
}

func TestResolve_RepositoryFailure(t *testing.T) {
	var logs bytes.Buffer
	repo := &countingRepo{Repository: memory.New()}
	c, err := tags.New(repo, tags.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	ctx := context.Background()

	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", "Le Go"))

	repo.fail.Store(true)
	assert.Equal(t, "golang", c.Resolve(ctx, *tag, "fr"))
	assert.Contains(t, logs.String(), "tag translation lookup failed")

	_, err = c.Lookup(ctx, *tag, "fr")
	assert.True(t, corerr.IsRetryable(err))

	// Failures are not cached.
	repo.fail.Store(false)
	assert.Equal(t, "Le Go", c.Resolve(ctx, *tag, "fr"))
}

func TestResolve_Cache(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, repo := newCatalog(t, tags.WithClock(clk.Now), tags.WithCache(16, time.Minute))
	ctx := context.Background()

	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", "Le Go"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, "Le Go", c.Resolve(ctx, *tag, "fr"))
	}
	assert.Equal(t, int64(1), repo.reads.Load())

	// Misses are cached too.
	for i := 0; i < 3; i++ {
		assert.Equal(t, "golang", c.Resolve(ctx, *tag, "de"))
	}
	assert.Equal(t, int64(2), repo.reads.Load())

	// A write invalidates the entry.
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "de", "Go auf Deutsch"))
	assert.Equal(t, "Go auf Deutsch", c.Resolve(ctx, *tag, "de"))
	assert.Equal(t, int64(3), repo.reads.Load())

	// Entries expire.
	clk.Advance(2 * time.Minute)
	assert.Equal(t, "Le Go", c.Resolve(ctx, *tag, "fr"))
	assert.Equal(t, int64(4), repo.reads.Load())

	// Deleting the tag drops its entries.
	require.NoError(t, c.DeleteTag(ctx, tag.ID))
	assert.Equal(t, "golang", c.Resolve(ctx, *tag, "fr"))
	assert.Equal(t, int64(5), repo.reads.Load())
}

func TestResolve_NoCache(t *testing.T) {
	c, repo := newCatalog(t, tags.WithCache(0, 0))
	ctx := context.Background()

	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", "Le Go"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, "Le Go", c.Resolve(ctx, *tag, "fr"))
	}
	assert.Equal(t, int64(3), repo.reads.Load())
}

func TestResolve_ConcurrentWithWrites(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	tag, err := c.CreateTag(ctx, "golang")
	require.NoError(t, err)
	require.NoError(t, c.SetTranslation(ctx, tag.ID, "fr", "v0"))

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			c.Resolve(ctx, *tag, "fr")
			return nil
		})
	}
	g.Go(func() error {
		return c.SetTranslation(ctx, tag.ID, "fr", "v1")
	})
	require.NoError(t, g.Wait())

	// Once the write has returned no reader may observe the old name.
	assert.Equal(t, "v1", c.Resolve(ctx, *tag, "fr"))
}

func TestPostTags(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	post := uuid.New()

	var created []*tags.Tag
	for _, ident := range []string{"web", "go", "databases"} {
		tag, err := c.CreateTag(ctx, ident)
		require.NoError(t, err)
		require.NoError(t, c.AttachTag(ctx, post, tag.ID))
		created = append(created, tag)
	}
	require.NoError(t, c.AttachTag(ctx, post, created[0].ID))

	csv, err := c.TagsAsCSV(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, "web,go,databases", csv)

	require.NoError(t, c.DetachTag(ctx, post, created[1].ID))
	csv, err = c.TagsAsCSV(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, "web,databases", csv)

	require.NoError(t, c.DeleteTag(ctx, created[2].ID))
	got, err := c.Tags(ctx, post)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].Identifier)

	csv, err = c.TagsAsCSV(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "", csv)

	err = c.AttachTag(ctx, post, uuid.New())
	assert.ErrorIs(t, err, corerr.ErrNotFound)
}
