// Package pgtest provides a Postgres fixture for repository tests. Tests are
// skipped unless TEST_DATABASE_URL points at a reachable database.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/internal/pgutil"
)

// TestDB represents a test database connection bound to one schema. Each
// test package uses its own schema so packages can run in parallel.
type TestDB struct {
	Pool   *pgxpool.Pool
	Schema string
}

// NewTestDB connects to TEST_DATABASE_URL with search_path set to schema.
func NewTestDB(t *testing.T, schema string) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database test")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err, "Failed to parse TEST_DATABASE_URL")
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")

	return &TestDB{Pool: pool, Schema: schema}
}

// Setup creates the schema and all tables.
func (db *TestDB) Setup(t *testing.T) {
	t.Helper()
	require.NoError(t, pgutil.Migrate(context.Background(), db.Pool, db.Schema))
}

// Cleanup removes all rows from every table.
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(),
		fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(pgutil.Tables, ", ")))
	require.NoError(t, err, "Failed to truncate tables")
}

// Close closes the pool.
func (db *TestDB) Close() {
	db.Pool.Close()
}

// RunTest runs testFunc against a freshly truncated schema.
func RunTest(t *testing.T, schema string, testFunc func(t *testing.T, db *TestDB)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := NewTestDB(t, schema)
	defer db.Close()

	db.Setup(t)
	db.Cleanup(t)

	testFunc(t, db)
}
