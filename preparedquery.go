package turf

import (
	"fmt"

	"github.com/turf-db/turf/internal/schema"
)

// PreparedQuery caches a predicate's compiled SQL and bindings against
// one index so repeated executions skip recompiling the predicate tree.
// Bindings are fixed at preparation time; re-binding placeholders is
// unsupported.
type PreparedQuery[V any] struct {
	collection string
	idx        *Index[V]
	sql        string
	bindings   []Scalar
}

// PrepareQuery compiles p against idx once, for reuse across many
// executions without recompiling the predicate tree each time.
func PrepareQuery[V any](collection string, idx *Index[V], p Predicate[V]) *PreparedQuery[V] {
	sqlFrag, bindings := p.SQL()
	return &PreparedQuery[V]{collection: collection, idx: idx, sql: sqlFrag, bindings: bindings}
}

// CountValues executes the prepared count query within tx.
func (q *PreparedQuery[V]) CountValues(tx *ReadTransaction) (uint64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, schema.IndexTableName(q.collection), q.sql)
	var n uint64
	if err := tx.tx.QueryRowContext(tx.ctx, query, bindArgs(q.bindings)...).Scan(&n); err != nil {
		return 0, newStorageError(StorageIO, "preparedQuery.countValues", err)
	}
	return n, nil
}

// FindKeys executes the prepared key query within tx.
func (q *PreparedQuery[V]) FindKeys(tx *ReadTransaction) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s WHERE %s`, schema.IndexTableName(q.collection), q.sql)
	rows, err := tx.tx.QueryContext(tx.ctx, query, bindArgs(q.bindings)...)
	if err != nil {
		return nil, newStorageError(StorageIO, "preparedQuery.findKeys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, newStorageError(StorageIO, "preparedQuery.findKeys", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// FindValues executes the prepared query and deserializes each matching
// value via view, matching ad-hoc findValues(where:) result-for-result.
func (q *PreparedQuery[V]) FindValues(view *ReadCollectionView[V]) ([]V, error) {
	keys, err := q.FindKeys(view.tx)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(keys))
	for _, key := range keys {
		val, ok, err := view.Value(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, val)
		}
	}
	return out, nil
}
