package mediastore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/logging"
	"github.com/tendant/simple-blog/pkg/mediastore"
	memoryrepo "github.com/tendant/simple-blog/pkg/mediastore/repo/memory"
	"github.com/tendant/simple-blog/pkg/mediastore/sniff"
	memorystorage "github.com/tendant/simple-blog/pkg/mediastore/storage/memory"
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}, bytes.Repeat([]byte{0}, 64)...)

type fixture struct {
	svc   mediastore.Service
	repo  *memoryrepo.Repository
	blobs *memorystorage.Backend
	sink  *recordingSink
}

func newFixture(t *testing.T, opts ...mediastore.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memoryrepo.New(),
		blobs: memorystorage.New(),
		sink:  &recordingSink{},
	}
	base := []mediastore.Option{
		mediastore.WithRepository(f.repo),
		mediastore.WithBlobStore(f.blobs),
		mediastore.WithEventSink(f.sink),
		mediastore.WithLogger(logging.Discard()),
	}
	svc, err := mediastore.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (s *recordingSink) record(kind string, obj *mediastore.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, kind+":"+obj.Name)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) ObjectCreated(_ context.Context, obj *mediastore.Object) error {
	return s.record("created", obj)
}

func (s *recordingSink) ObjectUpdated(_ context.Context, obj *mediastore.Object) error {
	return s.record("updated", obj)
}

func (s *recordingSink) ObjectDeleted(_ context.Context, obj *mediastore.Object) error {
	return s.record("deleted", obj)
}

func TestNew(t *testing.T) {
	_, err := mediastore.New(mediastore.WithBlobStore(memorystorage.New()))
	assert.EqualError(t, err, "repository is required")

	_, err = mediastore.New(mediastore.WithRepository(memoryrepo.New()))
	assert.EqualError(t, err, "blob store is required")

	_, err = mediastore.New(
		mediastore.WithRepository(memoryrepo.New()),
		mediastore.WithBlobStore(memorystorage.New()),
		mediastore.WithMaxObjectSize(-1),
	)
	assert.Error(t, err)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, mediastore.WithClock(func() time.Time { return created }))

	obj, err := f.svc.Create(ctx, "diagram.png", pngBytes, "alice")
	require.NoError(t, err)

	assert.Equal(t, "diagram.png", obj.Name)
	assert.Equal(t, sniff.Detect(pngBytes[:min(len(pngBytes), 1024)]), obj.ContentType)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, "alice", obj.Uploader)
	assert.False(t, obj.SafetyChecked)
	assert.Equal(t, int64(len(pngBytes)), obj.SizeBytes)
	assert.Equal(t, created, obj.CreatedAt)
	assert.Equal(t, created, obj.ModifiedAt)

	got, err := f.svc.Get(ctx, "diagram.png")
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	stored, err := f.blobs.Read(ctx, got.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
	assert.Equal(t, []string{"created:diagram.png"}, f.sink.events)
}

func TestCreateSniffsOnlyPrefix(t *testing.T) {
	f := newFixture(t)
	data := append(bytes.Repeat([]byte("x"), 2048), pngBytes...)

	obj, err := f.svc.Create(context.Background(), "notes.txt", data, "alice")
	require.NoError(t, err)
	assert.Equal(t, sniff.Detect(data[:1024]), obj.ContentType)
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Create(ctx, "a.png", pngBytes, "alice")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "a.png", []byte("other"), "bob")
	assert.ErrorIs(t, err, corerr.ErrConflict)
	var objErr *mediastore.ObjectError
	require.ErrorAs(t, err, &objErr)
	assert.Equal(t, "create", objErr.Op)

	// The original record and its bytes are untouched.
	assert.Len(t, f.blobs.Keys(""), 1)
	got, err := f.svc.Get(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Uploader)
}

func TestCreateInvalidInput(t *testing.T) {
	f := newFixture(t, mediastore.WithMaxObjectSize(16))

	tests := []struct {
		name     string
		object   string
		data     []byte
		uploader string
	}{
		{name: "empty data", object: "a", data: nil, uploader: "alice"},
		{name: "oversized", object: "a", data: bytes.Repeat([]byte("x"), 17), uploader: "alice"},
		{name: "empty name", object: "", data: []byte("x"), uploader: "alice"},
		{name: "long name", object: strings.Repeat("n", 201), data: []byte("x"), uploader: "alice"},
		{name: "leading slash", object: "/etc/passwd", data: []byte("x"), uploader: "alice"},
		{name: "dot dot", object: "a/../b", data: []byte("x"), uploader: "alice"},
		{name: "nul", object: "a\x00b", data: []byte("x"), uploader: "alice"},
		{name: "empty uploader", object: "a", data: []byte("x"), uploader: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.object, tt.data, tt.uploader)
			assert.ErrorIs(t, err, corerr.ErrInvalidInput)
			assert.False(t, corerr.IsRetryable(err))
		})
	}
	assert.Empty(t, f.blobs.Keys(""))
}

func TestCreateNameLimitCountsCharacters(t *testing.T) {
	f := newFixture(t)
	name := strings.Repeat("é", mediastore.MaxNameLength)
	_, err := f.svc.Create(context.Background(), name, []byte("x"), "alice")
	assert.NoError(t, err)
}

// failingRepo rejects every insert after the blob was written.
type failingRepo struct {
	*memoryrepo.Repository
	err error
}

func (r *failingRepo) CreateObject(ctx context.Context, obj *mediastore.Object) error {
	return r.err
}

func TestCreateRollsBackBlobOnInsertFailure(t *testing.T) {
	blobs := memorystorage.New()
	insertErr := corerr.Unavailable(errors.New("connection reset"))
	svc, err := mediastore.New(
		mediastore.WithRepository(&failingRepo{Repository: memoryrepo.New(), err: insertErr}),
		mediastore.WithBlobStore(blobs),
		mediastore.WithLogger(logging.Discard()),
	)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "a.png", pngBytes, "alice")
	assert.ErrorIs(t, err, corerr.ErrStorageUnavailable)
	assert.True(t, corerr.IsRetryable(err))
	assert.Empty(t, blobs.Keys(""))
}

func TestConcurrentCreateSameName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var (
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := f.svc.Create(ctx, "race.png", pngBytes, "alice")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, corerr.ErrConflict):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)

	obj, err := f.svc.Get(ctx, "race.png")
	require.NoError(t, err)
	assert.Equal(t, []string{obj.BlobRef}, f.blobs.Keys(""))
}

func TestUpdateContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	orig, err := f.svc.Create(ctx, "diagram.png", pngBytes, "alice")
	require.NoError(t, err)

	text := []byte("now it is just some plain text\n")
	updated, err := f.svc.UpdateContent(ctx, "diagram.png", text)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(updated.ContentType, "text/"), updated.ContentType)
	assert.NotEqual(t, orig.BlobRef, updated.BlobRef)
	assert.Equal(t, int64(len(text)), updated.SizeBytes)
	assert.Equal(t, orig.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "alice", updated.Uploader)

	// The previous revision is gone; only the new blob remains.
	assert.Equal(t, []string{updated.BlobRef}, f.blobs.Keys(""))

	stored, err := f.blobs.Read(ctx, updated.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, text, stored)
	assert.Equal(t, []string{"created:diagram.png", "updated:diagram.png"}, f.sink.events)
}

func TestUpdateContentErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.UpdateContent(ctx, "missing", []byte("x"))
	assert.ErrorIs(t, err, corerr.ErrNotFound)
	assert.Empty(t, f.blobs.Keys(""))

	_, err = f.svc.Create(ctx, "a", []byte("x"), "alice")
	require.NoError(t, err)
	_, err = f.svc.UpdateContent(ctx, "a", nil)
	assert.ErrorIs(t, err, corerr.ErrInvalidInput)
}

func TestConcurrentUpdatesKeepOneBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, "a.txt", []byte("v0"), "alice")
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := f.svc.UpdateContent(ctx, "a.txt", []byte("next revision"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	obj, err := f.svc.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{obj.BlobRef}, f.blobs.Keys(""))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, "a.png", pngBytes, "alice")
	require.NoError(t, err)

	rc, obj, err := f.svc.Open(ctx, "a.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", obj.ContentType)

	_, _, err = f.svc.Open(ctx, "missing")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, "a.png", pngBytes, "alice")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "a.png"))

	_, err = f.svc.Get(ctx, "a.png")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
	assert.Empty(t, f.blobs.Keys(""))

	// Deleting again is a no-op.
	assert.NoError(t, f.svc.Delete(ctx, "a.png"))
	assert.Equal(t, []string{"created:a.png", "deleted:a.png"}, f.sink.events)
}

func TestDeleteWithMissingBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	obj, err := f.svc.Create(ctx, "a.png", pngBytes, "alice")
	require.NoError(t, err)

	require.NoError(t, f.blobs.Delete(ctx, obj.BlobRef))
	require.NoError(t, f.svc.Delete(ctx, "a.png"))

	_, err = f.svc.Get(ctx, "a.png")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
}

// brokenDeletes fails every blob delete.
type brokenDeletes struct {
	*memorystorage.Backend
}

func (b *brokenDeletes) Delete(ctx context.Context, key string) error {
	return &mediastore.StorageError{Key: key, Op: "delete", Err: corerr.Unavailable(errors.New("disk offline"))}
}

func TestDeleteSuppressesBlobFailure(t *testing.T) {
	ctx := context.Background()
	blobs := &brokenDeletes{Backend: memorystorage.New()}
	var logBuf bytes.Buffer
	svc, err := mediastore.New(
		mediastore.WithRepository(memoryrepo.New()),
		mediastore.WithBlobStore(blobs),
		mediastore.WithLogger(logging.New("info", "json", &logBuf)),
	)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "a.png", pngBytes, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "a.png"))
	_, err = svc.Get(ctx, "a.png")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
	assert.Contains(t, logBuf.String(), "failed to delete blob")
}

func TestEventSinkFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.sink.fail = true

	_, err := f.svc.Create(context.Background(), "a.png", pngBytes, "alice")
	assert.NoError(t, err)
}

func TestSetSafetyCheckedAndList(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, mediastore.WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.svc.Create(ctx, name, []byte(name), "alice")
		require.NoError(t, err)
	}

	obj, err := f.svc.SetSafetyChecked(ctx, "b", true)
	require.NoError(t, err)
	assert.True(t, obj.SafetyChecked)
	assert.True(t, obj.ModifiedAt.After(obj.CreatedAt))

	unchecked := false
	objs, err := f.svc.List(ctx, mediastore.ListObjectsRequest{SafetyChecked: &unchecked})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].Name)
	assert.Equal(t, "c", objs[1].Name)

	_, err = f.svc.SetSafetyChecked(ctx, "missing", true)
	assert.ErrorIs(t, err, corerr.ErrNotFound)

	_, err = f.svc.List(ctx, mediastore.ListObjectsRequest{Limit: -1})
	assert.ErrorIs(t, err, corerr.ErrInvalidInput)
}

func TestScenarioDiagramLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	obj, err := f.svc.Create(ctx, "diagram.png", pngBytes, "alice")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)

	obj, err = f.svc.UpdateContent(ctx, "diagram.png", []byte("a caption, not a picture"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.ContentType, "text/"))

	require.NoError(t, f.svc.Delete(ctx, "diagram.png"))
	_, err = f.svc.Get(ctx, "diagram.png")
	assert.ErrorIs(t, err, corerr.ErrNotFound)
	assert.Empty(t, f.blobs.Keys(""))
}
