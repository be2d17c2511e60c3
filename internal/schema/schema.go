// Package schema creates and migrates Turf's system tables: the
// collection/extension catalog plus per-collection value tables and
// per-index side tables.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/turf-db/turf/internal/sqlengine"
)

const (
	CollectionsTable = "__turf_collections"
	ExtensionsTable  = "__turf_extensions"
)

// Bootstrap creates the two system catalog tables if they do not exist.
// Called once per Engine, before any collection is registered.
func Bootstrap(ctx context.Context, e sqlengine.Querier) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			schemaVersion INTEGER NOT NULL
		)`, CollectionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT NOT NULL,
			collection TEXT NOT NULL,
			version INTEGER NOT NULL,
			PRIMARY KEY (name, collection)
		)`, ExtensionsTable),
	}
	for _, stmt := range stmts {
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("turf: bootstrap system tables: %w", err)
		}
	}
	return nil
}

// ValueTableName returns the per-collection value table name.
func ValueTableName(collection string) string {
	return "collection_" + collection
}

// IndexTableName returns the per-index side table name for a collection.
func IndexTableName(collection string) string {
	return "index_" + collection
}

// CreateValueTable creates the value table for a collection if absent:
// key TEXT PRIMARY KEY NOT NULL, valueData BLOB NOT NULL, rowVersion
// INTEGER NOT NULL.
func CreateValueTable(ctx context.Context, e sqlengine.Querier, collection string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY NOT NULL,
		valueData BLOB NOT NULL,
		rowVersion INTEGER NOT NULL
	)`, ValueTableName(collection))
	if _, err := e.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("turf: create value table for %q: %w", collection, err)
	}
	return nil
}

// IndexColumn describes one side-table column to create for a secondary
// index, type-erased from the generic IndexedProperty.
type IndexColumn struct {
	Name       string
	SQLType    string // INTEGER | REAL | TEXT | BLOB
	Nullable   bool
}

// CreateOrReplaceIndexTable drops (if present) and recreates the side
// table for an index, so a version bump can backfill it from scratch.
func CreateOrReplaceIndexTable(ctx context.Context, e sqlengine.Querier, collection string, columns []IndexColumn) error {
	table := IndexTableName(collection)
	if _, err := e.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("turf: drop index table %q: %w", table, err)
	}

	colDefs := "key TEXT PRIMARY KEY"
	for _, c := range columns {
		def := fmt.Sprintf(", %s %s", c.Name, c.SQLType)
		if !c.Nullable {
			def += " NOT NULL"
		}
		colDefs += def
	}
	stmt := fmt.Sprintf(`CREATE TABLE %s (%s)`, table, colDefs)
	if _, err := e.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("turf: create index table %q: %w", table, err)
	}
	return nil
}

// StoredCollectionVersion returns the schemaVersion recorded for a
// collection, and whether a row exists at all.
func StoredCollectionVersion(ctx context.Context, e sqlengine.Querier, collection string) (uint64, bool, error) {
	var v uint64
	err := e.QueryRowContext(ctx, fmt.Sprintf(`SELECT schemaVersion FROM %s WHERE name = ?`, CollectionsTable), collection).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("turf: read collection schema version for %q: %w", collection, err)
	}
	return v, true, nil
}

// RecordCollectionVersion upserts the declared schemaVersion for a
// collection into the catalog.
func RecordCollectionVersion(ctx context.Context, e sqlengine.Querier, collection string, version uint64) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (name, schemaVersion) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET schemaVersion = excluded.schemaVersion`, CollectionsTable)
	if _, err := e.ExecContext(ctx, stmt, collection, version); err != nil {
		return fmt.Errorf("turf: record collection schema version for %q: %w", collection, err)
	}
	return nil
}

// StoredExtensionVersion returns the recorded version for a
// (name, collection) extension pair, and whether a row exists.
func StoredExtensionVersion(ctx context.Context, e sqlengine.Querier, name, collection string) (uint64, bool, error) {
	var v uint64
	err := e.QueryRowContext(ctx, fmt.Sprintf(`SELECT version FROM %s WHERE name = ? AND collection = ?`, ExtensionsTable), name, collection).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("turf: read extension version for %s/%s: %w", collection, name, err)
	}
	return v, true, nil
}

// RecordExtensionVersion upserts the (name, collection, version) triple.
func RecordExtensionVersion(ctx context.Context, e sqlengine.Querier, name, collection string, version uint64) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (name, collection, version) VALUES (?, ?, ?)
		ON CONFLICT(name, collection) DO UPDATE SET version = excluded.version`, ExtensionsTable)
	if _, err := e.ExecContext(ctx, stmt, name, collection, version); err != nil {
		return fmt.Errorf("turf: record extension version for %s/%s: %w", collection, name, err)
	}
	return nil
}
