package sqlengine

import (
	"context"
	"database/sql"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// Querier is the surface schema and maintenance code runs against. Both
// a bare Engine (outside any transaction) and an open Tx (inside one)
// implement it, so callers that must run inside the live write
// transaction just take a Querier instead of an Engine.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx wraps sql.Tx, binding it to a shared prepared-statement cache the
// way internal/database/db.go's Tx type does, so repeated queries inside
// one transaction (and across transactions on the same connection role)
// skip re-planning in SQLite.
type Tx struct {
	tx       *sql.Tx
	stmts    *ttlcache.Cache[string, *sql.Stmt]
	prepare  func(ctx context.Context, query string) (*sql.Stmt, error)
	readOnly bool
}

func (t *Tx) ReadOnly() bool { return t.readOnly }

func (t *Tx) getStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, ok := t.stmts.Get(query); ok && s != nil {
		return s, nil
	}
	s, err := t.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	t.stmts.Set(query, s, ttlcache.DefaultTTL)
	return s, nil
}

// ExecContext executes a write statement within the transaction, reusing
// a cached prepared statement bound to this transaction's connection.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := t.getStmt(ctx, query)
	if err != nil {
		return t.tx.ExecContext(ctx, query, args...)
	}
	txStmt := t.tx.StmtContext(ctx, stmt)
	defer txStmt.Close()
	return txStmt.ExecContext(ctx, args...)
}

// QueryContext executes a read query within the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := t.getStmt(ctx, query)
	if err != nil {
		return t.tx.QueryContext(ctx, query, args...)
	}
	txStmt := t.tx.StmtContext(ctx, stmt)
	rows, err := txStmt.QueryContext(ctx, args...)
	if err != nil {
		txStmt.Close()
		return nil, err
	}
	// the *sql.Rows owns txStmt's lifetime until Close; database/sql
	// keeps the underlying driver stmt alive for the rows, closing the
	// wrapper here once rows are done is unsafe, so we leak the cheap
	// wrapper and rely on the transaction's own Commit/Rollback to
	// reclaim the connection.
	return rows, nil
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := t.getStmt(ctx, query)
	if err != nil {
		return t.tx.QueryRowContext(ctx, query, args...)
	}
	txStmt := t.tx.StmtContext(ctx, stmt)
	return txStmt.QueryRowContext(ctx, args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
