package turf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turf-db/turf/internal/metrics"
	"github.com/turf-db/turf/internal/schema"
	"github.com/turf-db/turf/internal/sqlengine"
)

// extensionHooks is the type-erased maintenance interface the
// transaction engine drives per mutated key. Turf's only extension kind
// is the secondary index; an *Index[V] is lifted to this shape at
// registration time so a single Collection can be registered without
// the registry needing to know V.
type extensionHooks struct {
	extName    string
	extVersion uint64

	install     func(ctx context.Context, tx *sqlengine.Tx, m *metrics.Collector) error
	onInsert    func(ctx context.Context, tx *sqlengine.Tx, key string, value any) error
	onUpdate    func(ctx context.Context, tx *sqlengine.Tx, key string, value any) error
	onRemove    func(ctx context.Context, tx *sqlengine.Tx, key string) error
	onRemoveAll func(ctx context.Context, tx *sqlengine.Tx) error
}

// bindExtension erases idx to an extensionHooks scoped to one owning
// collection, capturing idx's generic property projections via closures
// so the transaction engine (which cannot itself name V) can still drive
// maintenance correctly.
func bindExtension[V any](collection string, idx *Index[V], deserialize func([]byte) (V, bool)) *extensionHooks {
	columns := make([]schema.IndexColumn, len(idx.Properties))
	for i, p := range idx.Properties {
		columns[i] = schema.IndexColumn{Name: p.Column, SQLType: p.Kind.sqliteColumnType(), Nullable: p.Nullable}
	}

	upsertSQL, deleteSQL, deleteAllSQL := indexMaintenanceSQL(collection, idx.Properties)

	projectArgs := func(v V, key string) []any {
		args := make([]any, 0, len(idx.Properties)+1)
		args = append(args, key)
		for _, p := range idx.Properties {
			args = append(args, p.Project(v).bindValue())
		}
		return args
	}

	install := func(ctx context.Context, tx *sqlengine.Tx, m *metrics.Collector) error {
		storedVersion, exists, err := schema.StoredExtensionVersion(ctx, tx, idx.Name, collection)
		if err != nil {
			return err
		}
		if exists && storedVersion >= idx.Version {
			return nil
		}

		if err := schema.CreateOrReplaceIndexTable(ctx, tx, collection, columns); err != nil {
			return err
		}

		backfillStart := time.Now()
		if err := backfillIndex(ctx, tx, collection, upsertSQL, deserialize, projectArgs); err != nil {
			return err
		}
		if m != nil {
			m.BackfillDuration.WithLabelValues(idx.Name).Observe(time.Since(backfillStart).Seconds())
		}

		return schema.RecordExtensionVersion(ctx, tx, idx.Name, collection, idx.Version)
	}

	return &extensionHooks{
		extName:    idx.Name,
		extVersion: idx.Version,
		install:    install,
		onInsert: func(ctx context.Context, tx *sqlengine.Tx, key string, value any) error {
			v := value.(V)
			_, err := tx.ExecContext(ctx, upsertSQL, projectArgs(v, key)...)
			return err
		},
		onUpdate: func(ctx context.Context, tx *sqlengine.Tx, key string, value any) error {
			v := value.(V)
			_, err := tx.ExecContext(ctx, upsertSQL, projectArgs(v, key)...)
			return err
		},
		onRemove: func(ctx context.Context, tx *sqlengine.Tx, key string) error {
			_, err := tx.ExecContext(ctx, deleteSQL, key)
			return err
		},
		onRemoveAll: func(ctx context.Context, tx *sqlengine.Tx) error {
			_, err := tx.ExecContext(ctx, deleteAllSQL)
			return err
		},
	}
}

// indexMaintenanceSQL builds the three statements that keep index_{collection}
// in sync with its owning value table: upsert one row, delete one row by
// key, and wipe the table.
func indexMaintenanceSQL[V any](collection string, properties []IndexedPropertyAny[V]) (upsert, del, delAll string) {
	table := schema.IndexTableName(collection)

	cols := make([]string, 0, len(properties)+1)
	cols = append(cols, "key")
	placeholders := make([]string, 0, len(properties)+1)
	placeholders = append(placeholders, "?")
	for _, p := range properties {
		cols = append(cols, p.Column)
		placeholders = append(placeholders, "?")
	}

	upsert = fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	del = fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table)
	delAll = fmt.Sprintf(`DELETE FROM %s`, table)
	return upsert, del, delAll
}

// backfillIndex populates a freshly (re)created index side table from
// every row currently in the collection's value table, within the same
// transaction that created it. A row whose stored bytes no longer
// deserialize is skipped rather than failing the whole backfill: the
// value itself is already treated as absent by every other read path,
// so the index should agree rather than block installation on a
// corrupt or superseded row.
func backfillIndex[V any](ctx context.Context, tx *sqlengine.Tx, collection, upsertSQL string, deserialize func([]byte) (V, bool), projectArgs func(V, string) []any) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT key, valueData FROM %s`, schema.ValueTableName(collection)))
	if err != nil {
		return fmt.Errorf("turf: backfill index scan for %q: %w", collection, err)
	}
	defer rows.Close()

	type row struct {
		key  string
		data []byte
	}
	var buffered []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.data); err != nil {
			return fmt.Errorf("turf: backfill index scan row for %q: %w", collection, err)
		}
		buffered = append(buffered, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("turf: backfill index iterate for %q: %w", collection, err)
	}

	for _, r := range buffered {
		v, ok := deserialize(r.data)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, projectArgs(v, r.key)...); err != nil {
			return fmt.Errorf("turf: backfill index upsert for %q key %q: %w", collection, r.key, err)
		}
	}
	return nil
}
