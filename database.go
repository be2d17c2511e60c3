// Package turf is an embedded, typed, schemaless key/value store layered
// on SQLite: multiple connections with reader/writer discipline, typed
// secondary indexes, and a reactive observation pipeline over committed
// change sets.
package turf

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/turf-db/turf/internal/metrics"
	"github.com/turf-db/turf/internal/sqlengine"
)

// DatabaseOptions configures Open, mirroring the options-struct shape
// internal/database/open.go's OpenOptions uses for its own constructor.
type DatabaseOptions struct {
	Logger          *zerolog.Logger
	MaxReadConns    int
	MetricsRegistry prometheus.Registerer
}

// Database is the top-level handle for one Turf database file: the SQL
// access layer, the registered collection set, the writer lock, and the
// observation hub shared by every observing connection.
type Database struct {
	engine      *sqlengine.Engine
	collections *CollectionsContainer
	log         zerolog.Logger
	metrics     *metrics.Collector

	writerMu      sync.Mutex
	rowVersionSeq atomic.Uint64
	commitSeq     atomic.Uint64

	connMu      sync.Mutex
	connections map[*Connection]struct{}

	observers *observerHub
}

// Open opens (creating if absent) the database file at path, registers
// every collection in collections, and runs their setup, creating
// value tables and backfilling/installing indexes, inside one write
// transaction.
func Open(path string, collections *CollectionsContainer, opts DatabaseOptions) (*Database, error) {
	engine, err := sqlengine.Open(path, sqlengine.Options{MaxReadConns: opts.MaxReadConns, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	db := &Database{
		engine:      engine,
		collections: collections,
		log:         logger,
		metrics:     metrics.New("turf", "database"),
		connections: make(map[*Connection]struct{}),
		observers:   newObserverHub(),
	}
	if opts.MetricsRegistry != nil {
		db.metrics.MustRegister(opts.MetricsRegistry)
	}

	ctx := context.Background()
	tx, err := engine.BeginImmediate(ctx)
	if err != nil {
		engine.Close()
		return nil, newStorageError(StorageIO, "open", err)
	}
	if err := collections.setUpCollections(ctx, tx, db.metrics); err != nil {
		_ = tx.Rollback()
		engine.Close()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		engine.Close()
		return nil, newStorageError(StorageIO, "open", err)
	}

	db.log.Debug().Str("path", path).Int("collections", len(collections.bindings)).Msg("turf: database opened")
	return db, nil
}

// NewConnection opens a plain connection: its own SQL session and its
// own per-collection value caches.
func (db *Database) NewConnection() *Connection {
	conn := newConnection(db, false)
	db.registerConnection(conn)
	return conn
}

// NewObservingConnection opens a connection dedicated to the observation
// pipeline: its snapshot is bumped forward to each commit and is the one
// visible to subscriber callbacks.
func (db *Database) NewObservingConnection() *Connection {
	conn := newConnection(db, true)
	db.registerConnection(conn)
	return conn
}

func (db *Database) registerConnection(c *Connection) {
	db.connMu.Lock()
	defer db.connMu.Unlock()
	db.connections[c] = struct{}{}
}

func (db *Database) unregisterConnection(c *Connection) {
	db.connMu.Lock()
	defer db.connMu.Unlock()
	delete(db.connections, c)
}

// Close releases every open connection's resources and the underlying
// SQL engine.
func (db *Database) Close() error {
	db.connMu.Lock()
	conns := make([]*Connection, 0, len(db.connections))
	for c := range db.connections {
		conns = append(conns, c)
	}
	db.connMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return db.engine.Close()
}

func (db *Database) nextRowVersion() uint64 { return db.rowVersionSeq.Add(1) }
func (db *Database) nextSequence() uint64   { return db.commitSeq.Add(1) }

// publish delivers a just-committed change set to cache coherency and
// the observation pipeline. It runs synchronously while the writer lock
// is still held, guaranteeing invariant #6: observer callbacks complete
// before any subsequent write transaction begins.
func (db *Database) publish(cs *ChangeSet, committer *Connection) {
	db.connMu.Lock()
	siblings := make([]*Connection, 0, len(db.connections))
	for c := range db.connections {
		if c != committer {
			siblings = append(siblings, c)
		}
	}
	db.connMu.Unlock()

	for _, collChanges := range cs.Collections {
		for _, sib := range siblings {
			if collChanges.DeleteAll {
				sib.deliver(collChanges.Collection, "", true)
			}
			for _, ch := range collChanges.Changes {
				sib.deliver(collChanges.Collection, ch.Key, false)
			}
		}
	}

	db.observers.dispatch(db, cs)
}

