package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/mediastore"
)

const (
	tempDirName      = ".tmp"
	compressedSuffix = ".zst"
	maxKeyLength     = 1024
)

// Backend is a filesystem implementation of the mediastore.BlobStore interface.
// Blobs are written to a temp file and renamed into place, so a key either
// holds the complete bytes or does not exist.
type Backend struct {
	baseDir  string
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

var _ mediastore.BlobStore = (*Backend)(nil)

// Config options for the filesystem backend
type Config struct {
	BaseDir  string // Base directory for storing files
	Compress bool   // Store new blobs zstd-compressed
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, tempDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	// Both are safe for concurrent EncodeAll/DecodeAll use.
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Backend{
		baseDir:  baseDir,
		compress: config.Compress,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// Write stores data under key via temp file and rename.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	path, err := b.pathFor(ctx, "write", key)
	if err != nil {
		return err
	}
	payload := data
	if b.compress {
		payload = b.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
		path += compressedSuffix
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(filepath.Join(b.baseDir, tempDirName), "blob-*")
	if err != nil {
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to write file: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to sync file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to close file: %w", err)}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &mediastore.StorageError{Key: key, Op: "write", Err: fmt.Errorf("failed to move file into place: %w", err)}
	}
	return nil
}

// Read returns the bytes stored under key.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	rc, err := b.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: err}
	}
	return data, nil
}

// Open returns a reader over the bytes stored under key. Blobs written
// with compression enabled are decompressed transparently, whatever the
// current setting.
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := b.pathFor(ctx, "read", key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: fmt.Errorf("failed to open file: %w", err)}
	}

	compressed, err := os.ReadFile(path + compressedSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: corerr.ErrNotFound}
	}
	if err != nil {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: fmt.Errorf("failed to open file: %w", err)}
	}
	data, err := b.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, &mediastore.StorageError{Key: key, Op: "read", Err: fmt.Errorf("decompress: %w", err)}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key and any directories left empty. Deleting an absent
// key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	path, err := b.pathFor(ctx, "delete", key)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + compressedSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &mediastore.StorageError{Key: key, Op: "delete", Err: fmt.Errorf("failed to delete file: %w", err)}
		}
	}
	b.cleanupEmptyDirectories(filepath.Dir(path))
	return nil
}

// Close releases the zstd encoder and decoder.
func (b *Backend) Close() error {
	b.decoder.Close()
	return b.encoder.Close()
}

func (b *Backend) pathFor(ctx context.Context, op, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &mediastore.StorageError{Key: key, Op: op, Err: corerr.Unavailable(err)}
	}
	if err := validateKey(key); err != nil {
		return "", &mediastore.StorageError{Key: key, Op: op, Err: err}
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(key)), nil
}

func validateKey(key string) error {
	switch {
	case key == "":
		return corerr.Invalid("empty key")
	case len(key) > maxKeyLength:
		return corerr.Invalid("key too long")
	case strings.ContainsRune(key, 0):
		return corerr.Invalid("null bytes not allowed")
	case strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") || filepath.IsAbs(key):
		return corerr.Invalid("key cannot start or end with slash")
	case strings.Contains(key, "//") || strings.Contains(key, "\\"):
		return corerr.Invalid("malformed key path")
	case strings.HasSuffix(key, compressedSuffix):
		return corerr.Invalid("reserved key suffix")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." || seg == tempDirName {
			return corerr.Invalid("path traversal not allowed")
		}
	}
	return nil
}

// cleanupEmptyDirectories removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	for dir != b.baseDir && strings.HasPrefix(dir, b.baseDir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
