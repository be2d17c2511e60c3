package sqlengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	tmpDir := t.TempDir()
	e, err := Open(filepath.Join(tmpDir, "turf-test.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func TestOpenCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "turf.db")
	e, err := Open(dbPath, Options{})
	require.NoError(t, err)
	defer e.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestWriteThenReadVisible(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)

	_, err := e.ExecContext(ctx, `CREATE TABLE kv (key TEXT PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	wtx, err := e.BeginImmediate(ctx)
	require.NoError(t, err)
	_, err = wtx.ExecContext(ctx, `INSERT INTO kv (key, val) VALUES (?, ?)`, "a", "1")
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	rtx, err := e.BeginDeferred(ctx)
	require.NoError(t, err)
	defer rtx.Rollback()

	var val string
	require.NoError(t, rtx.QueryRowContext(ctx, `SELECT val FROM kv WHERE key = ?`, "a").Scan(&val))
	require.Equal(t, "1", val)
}

func TestRollbackDiscardsWrite(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)

	_, err := e.ExecContext(ctx, `CREATE TABLE kv (key TEXT PRIMARY KEY, val TEXT)`)
	require.NoError(t, err)

	wtx, err := e.BeginImmediate(ctx)
	require.NoError(t, err)
	_, err = wtx.ExecContext(ctx, `INSERT INTO kv (key, val) VALUES (?, ?)`, "a", "1")
	require.NoError(t, err)
	require.NoError(t, wtx.Rollback())

	var count int
	require.NoError(t, e.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count))
	require.Equal(t, 0, count)
}
