// Package sqlengine is the thin typed wrapper over the embedded
// relational engine. It owns the single dedicated write connection, the
// read connection pool, connection-level pragmas and the prepared
// statement cache. Nothing above this package ever issues raw SQL
// directly against database/sql.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

const (
	defaultBusyTimeout     = 5 * time.Second
	connectionSetupTimeout = 5 * time.Second
	stmtCacheTTL           = 10 * time.Minute
	defaultMaxReadConns    = 8
)

var driverInit sync.Once

// registerPragmaHook installs a process-wide connection hook that applies
// WAL mode, foreign keys and busy_timeout to every new physical sqlite
// connection, mirroring internal/database/db.go's registerConnectionHook.
func registerPragmaHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA foreign_keys = ON",
				fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout/time.Millisecond)),
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(ctx, p, nil); err != nil {
					return fmt.Errorf("apply connection pragma %q: %w", p, err)
				}
			}
			return nil
		})
	})
}

// Engine is the SQL access layer for one database file: a dedicated write
// connection serializing all ReadWriteTransactions (invariant #1) plus a
// pooled set of reader connections that proceed concurrently in WAL mode.
type Engine struct {
	path string

	writeDB    *sql.DB
	readDB     *sql.DB
	writeStmts *ttlcache.Cache[string, *sql.Stmt]
	readStmts  *ttlcache.Cache[string, *sql.Stmt]

	log zerolog.Logger
}

// Options configures Engine.Open.
type Options struct {
	// MaxReadConns bounds the reader connection pool. Zero uses a default.
	MaxReadConns int
	Logger       *zerolog.Logger
}

// Open opens (creating if absent) the sqlite file at path and returns an
// Engine ready to serve transactions.
func Open(path string, opts Options) (*Engine, error) {
	registerPragmaHook()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("turf: create database directory %s: %w", dir, err)
		}
	}

	writeDB, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("turf: open write connection: %w", err)
	}
	// Invariant #1: exactly one ReadWriteTransaction executes at a time.
	// A single physical connection enforces that at the driver level.
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	readDB, err := sql.Open("sqlite", path)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("turf: open read connection pool: %w", err)
	}
	maxRead := opts.MaxReadConns
	if maxRead <= 0 {
		maxRead = defaultMaxReadConns
	}
	readDB.SetMaxOpenConns(maxRead)
	readDB.SetConnMaxLifetime(0)

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := writeDB.PingContext(ctx); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("turf: ping write connection: %w", err)
	}

	dealloc := func(_ string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
		if s != nil {
			_ = s.Close()
		}
	}

	e := &Engine{
		path:       path,
		writeDB:    writeDB,
		readDB:     readDB,
		writeStmts: ttlcache.New(ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(stmtCacheTTL).SetDeallocationFunc(dealloc)),
		readStmts:  ttlcache.New(ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(stmtCacheTTL).SetDeallocationFunc(dealloc)),
		log:        logger,
	}

	e.log.Debug().Str("path", path).Msg("turf: sql engine opened")
	return e, nil
}

// Close releases both connection pools and the statement caches.
func (e *Engine) Close() error {
	e.writeStmts.Close()
	e.readStmts.Close()

	var firstErr error
	if err := e.writeDB.Close(); err != nil {
		firstErr = err
	}
	if err := e.readDB.Close(); firstErr == nil && err != nil {
		firstErr = err
	}
	return firstErr
}

// ExecContext runs a one-shot statement against the write connection
// outside of any application-managed transaction.
func (e *Engine) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.writeDB.ExecContext(ctx, query, args...)
}

// QueryContext runs a one-shot read query against the pooled read connections.
func (e *Engine) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return e.readDB.QueryContext(ctx, query, args...)
}

func (e *Engine) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return e.readDB.QueryRowContext(ctx, query, args...)
}

// BeginImmediate starts a write transaction on the dedicated write
// connection. The DSN's _txlock=immediate makes BEGIN acquire the
// reserved lock up front, rather than lazily at the first write
// statement.
func (e *Engine) BeginImmediate(ctx context.Context) (*Tx, error) {
	sqlTx, err := e.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("turf: begin immediate: %w", err)
	}
	return &Tx{tx: sqlTx, stmts: e.writeStmts, prepare: e.writeDB.PrepareContext}, nil
}

// BeginDeferred starts a read-only transaction against the reader pool.
// Multiple deferred transactions run concurrently across connections
// while at most one BeginImmediate transaction is live.
func (e *Engine) BeginDeferred(ctx context.Context) (*Tx, error) {
	sqlTx, err := e.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("turf: begin deferred: %w", err)
	}
	return &Tx{tx: sqlTx, stmts: e.readStmts, prepare: e.readDB.PrepareContext, readOnly: true}, nil
}

// Path returns the file path this engine was opened against.
func (e *Engine) Path() string { return e.path }
