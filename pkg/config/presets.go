package config

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-blog/pkg/logging"
)

// NewDevelopment builds a core for local development: in-memory database,
// filesystem blobs under dataDir and debug console logging.
//
// Example:
//
//	core, err := config.NewDevelopment(ctx, "./dev-data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
func NewDevelopment(ctx context.Context, dataDir string, opts ...Option) (*Core, error) {
	if dataDir == "" {
		dataDir = "./dev-data"
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	base := []Option{
		WithDatabase("memory"),
		WithFilesystemStorage(abs, false),
		WithLogging("debug", "text", nil),
	}
	cfg, err := Load(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return cfg.Build(ctx)
}

// NewProduction builds a core from the environment and refuses in-memory
// database or storage.
func NewProduction(ctx context.Context, opts ...Option) (*Core, error) {
	cfg, err := Load(append([]Option{WithEnv()}, opts...)...)
	if err != nil {
		return nil, err
	}
	if kind, _ := databaseKind(cfg.DatabaseURL); kind == "memory" {
		return nil, fmt.Errorf("production preset requires a postgres DATABASE_URL")
	}
	if target, _ := parseStorageURL(cfg.StorageURL); target.Kind == "memory" {
		return nil, fmt.Errorf("production preset requires persistent storage (file:// or s3://)")
	}
	return cfg.Build(ctx)
}

// NewTesting builds an isolated in-memory core for tests. It is closed
// automatically when the test completes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    core := config.NewTesting(t)
//	    // Use core in test...
//	}
func NewTesting(t testing.TB, opts ...Option) *Core {
	t.Helper()
	base := []Option{
		WithDatabase("memory"),
		WithStorage("memory://"),
		WithEventLogging(false),
		WithLogger(logging.Discard()),
	}
	cfg, err := Load(append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to load test configuration: %v", err)
	}
	core, err := cfg.Build(context.Background())
	if err != nil {
		t.Fatalf("failed to build test core: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return core
}
