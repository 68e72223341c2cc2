package memory_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/pkg/corerr"
	memorystorage "github.com/tendant/simple-blog/pkg/mediastore/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	key := "objects/ab/cdef_diagram.png"
	data := []byte("Hello, World! This is test data.")

	t.Run("Write", func(t *testing.T) {
		require.NoError(t, backend.Write(ctx, key, data))
	})

	t.Run("Read returns a copy", func(t *testing.T) {
		got, err := backend.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		got[0] = 'X'
		again, err := backend.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})

	t.Run("Open", func(t *testing.T) {
		rc, err := backend.Open(ctx, key)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Keys", func(t *testing.T) {
		assert.Equal(t, []string{key}, backend.Keys("objects/"))
		assert.Empty(t, backend.Keys("media/"))
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, key))
		require.NoError(t, backend.Delete(ctx, key))

		_, err := backend.Read(ctx, key)
		assert.ErrorIs(t, err, corerr.ErrNotFound)
	})
}

func TestMemoryBackendCancelledContext(t *testing.T) {
	backend := memorystorage.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.Write(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, corerr.ErrStorageUnavailable)
	assert.True(t, corerr.IsRetryable(err))
}
