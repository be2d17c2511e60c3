package turf

import (
	"context"
	"time"

	"github.com/turf-db/turf/internal/sqlengine"
)

// ReadTransaction is a read-only snapshot opened by ReadOnly. It rolls
// back unconditionally once its body returns, so reads never commit
// side effects.
type ReadTransaction struct {
	ctx      context.Context
	tx       *sqlengine.Tx
	conn     *Connection
	disposed bool
}

func (t *ReadTransaction) checkDisposed() error {
	if t.disposed {
		return ErrDisposed
	}
	return nil
}

// ReadWriteTransaction is the single in-flight write transaction a
// Connection may hold. It accumulates a change set as collection views
// mutate rows, frozen and published on commit.
type ReadWriteTransaction struct {
	ReadTransaction
	builder *changeSetBuilder
}

// ReadOnly opens a deferred read transaction on conn, runs body, and
// rolls back unconditionally regardless of body's outcome.
func ReadOnly[T any](ctx context.Context, conn *Connection, body func(tx *ReadTransaction) (T, error)) (T, error) {
	var zero T
	conn.drainMailbox()

	sqlTx, err := conn.db.engine.BeginDeferred(ctx)
	if err != nil {
		return zero, newStorageError(StorageIO, "beginDeferred", err)
	}

	tx := &ReadTransaction{ctx: ctx, tx: sqlTx, conn: conn}
	result, bodyErr := body(tx)
	tx.disposed = true
	_ = sqlTx.Rollback()
	return result, bodyErr
}

// ReadWrite acquires the database's global writer lock, opens an
// immediate write transaction, and runs body against it. On success it
// commits, publishes the frozen change set, and updates cache
// coherency for every other open connection; on error it rolls back and
// publishes nothing.
func ReadWrite[T any](ctx context.Context, conn *Connection, body func(tx *ReadWriteTransaction) (T, error)) (T, error) {
	var zero T
	conn.drainMailbox()

	waitStart := time.Now()
	conn.db.writerMu.Lock()
	defer conn.db.writerMu.Unlock()
	conn.db.metrics.WriterLockWait.Observe(time.Since(waitStart).Seconds())

	commitStart := time.Now()
	sqlTx, err := conn.db.engine.BeginImmediate(ctx)
	if err != nil {
		return zero, newStorageError(StorageIO, "beginImmediate", err)
	}

	wtx := &ReadWriteTransaction{
		ReadTransaction: ReadTransaction{ctx: ctx, tx: sqlTx, conn: conn},
		builder:         newChangeSetBuilder(),
	}

	result, bodyErr := body(wtx)
	wtx.disposed = true
	if bodyErr != nil {
		_ = sqlTx.Rollback()
		return zero, bodyErr
	}

	if err := sqlTx.Commit(); err != nil {
		_ = sqlTx.Rollback()
		return zero, newStorageError(StorageIO, "commit", err)
	}
	conn.db.metrics.CommitTotal.Inc()
	conn.db.metrics.CommitDuration.Observe(time.Since(commitStart).Seconds())

	if !wtx.builder.isEmpty() {
		seq := conn.db.nextSequence()
		changeSet := wtx.builder.freeze(seq)
		conn.db.publish(changeSet, conn)
	}

	return result, nil
}
