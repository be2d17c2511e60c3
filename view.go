package turf

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/turf-db/turf/internal/schema"
)

// ReadCollectionView is the typed read-only accessor for one collection
// within a ReadTransaction.
type ReadCollectionView[V any] struct {
	tx *ReadTransaction
	bc *boundCollection[V]
}

// WriteCollectionView adds mutation methods on top of ReadCollectionView
// within a ReadWriteTransaction.
type WriteCollectionView[V any] struct {
	ReadCollectionView[V]
	wtx *ReadWriteTransaction
}

// In returns the read-only view of this collection for tx.
func (h *CollectionHandle[V]) In(tx *ReadTransaction) (*ReadCollectionView[V], error) {
	if err := tx.checkDisposed(); err != nil {
		return nil, err
	}
	bc, err := bindingFor(tx.conn.db.collections, h)
	if err != nil {
		return nil, err
	}
	return &ReadCollectionView[V]{tx: tx, bc: bc}, nil
}

// InWrite returns the read-write view of this collection for wtx.
func (h *CollectionHandle[V]) InWrite(wtx *ReadWriteTransaction) (*WriteCollectionView[V], error) {
	if err := wtx.checkDisposed(); err != nil {
		return nil, err
	}
	bc, err := bindingFor(wtx.conn.db.collections, h)
	if err != nil {
		return nil, err
	}
	return &WriteCollectionView[V]{
		ReadCollectionView: ReadCollectionView[V]{tx: &wtx.ReadTransaction, bc: bc},
		wtx:                wtx,
	}, nil
}

func bindingFor[V any](c *CollectionsContainer, h *CollectionHandle[V]) (*boundCollection[V], error) {
	b, err := c.lookup(h.name)
	if err != nil {
		return nil, err
	}
	bc, ok := b.(*boundCollection[V])
	if !ok {
		return nil, &RegistrationError{Kind: UnknownCollection, Name: h.name}
	}
	return bc, nil
}

// Value looks up key: it always SELECTs the row's valueData and
// rowVersion at the current snapshot, returns the cached value when its
// rowVersion matches, and otherwise deserializes and caches the row.
func (v *ReadCollectionView[V]) Value(key string) (V, bool, error) {
	var zero V
	var data []byte
	var rowVersion uint64

	row := v.tx.tx.QueryRowContext(v.tx.ctx,
		fmt.Sprintf(`SELECT valueData, rowVersion FROM %s WHERE key = ?`, schema.ValueTableName(v.bc.name())), key)
	if err := row.Scan(&data, &rowVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, newStorageError(StorageIO, "value", err)
	}

	cache := v.tx.conn.cacheFor(v.bc.name())
	if cached, ok := cache.get(key, rowVersion); ok {
		v.tx.conn.db.metrics.CacheHits.WithLabelValues(v.bc.name()).Inc()
		return cached.(V), true, nil
	}
	v.tx.conn.db.metrics.CacheMisses.WithLabelValues(v.bc.name()).Inc()

	val, ok := v.bc.collection.Deserialize(data)
	if !ok {
		return zero, false, nil
	}
	cache.put(key, rowVersion, val)
	return val, true, nil
}

// AllKeys returns every key currently stored in this collection.
func (v *ReadCollectionView[V]) AllKeys() ([]string, error) {
	rows, err := v.tx.tx.QueryContext(v.tx.ctx, fmt.Sprintf(`SELECT key FROM %s`, schema.ValueTableName(v.bc.name())))
	if err != nil {
		return nil, newStorageError(StorageIO, "allKeys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, newStorageError(StorageIO, "allKeys", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AllValues returns every value currently stored in this collection,
// deserializing and caching each as it is read.
func (v *ReadCollectionView[V]) AllValues() ([]V, error) {
	rows, err := v.tx.tx.QueryContext(v.tx.ctx,
		fmt.Sprintf(`SELECT key, valueData, rowVersion FROM %s`, schema.ValueTableName(v.bc.name())))
	if err != nil {
		return nil, newStorageError(StorageIO, "allValues", err)
	}
	defer rows.Close()

	cache := v.tx.conn.cacheFor(v.bc.name())
	var out []V
	for rows.Next() {
		var key string
		var data []byte
		var rowVersion uint64
		if err := rows.Scan(&key, &data, &rowVersion); err != nil {
			return nil, newStorageError(StorageIO, "allValues", err)
		}
		if cached, ok := cache.get(key, rowVersion); ok {
			v.tx.conn.db.metrics.CacheHits.WithLabelValues(v.bc.name()).Inc()
			out = append(out, cached.(V))
			continue
		}
		v.tx.conn.db.metrics.CacheMisses.WithLabelValues(v.bc.name()).Inc()
		val, ok := v.bc.collection.Deserialize(data)
		if !ok {
			continue
		}
		cache.put(key, rowVersion, val)
		out = append(out, val)
	}
	return out, rows.Err()
}

// Count returns the number of rows currently stored in this collection.
func (v *ReadCollectionView[V]) Count() (int64, error) {
	var n int64
	err := v.tx.tx.QueryRowContext(v.tx.ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, schema.ValueTableName(v.bc.name()))).Scan(&n)
	if err != nil {
		return 0, newStorageError(StorageIO, "count", err)
	}
	return n, nil
}

// CountValues evaluates p against idx's side table and returns the
// matching row count.
func (v *ReadCollectionView[V]) CountValues(idx *Index[V], p Predicate[V]) (uint64, error) {
	sqlFrag, bindings := p.SQL()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, schema.IndexTableName(v.bc.name()), sqlFrag)
	var n uint64
	if err := v.tx.tx.QueryRowContext(v.tx.ctx, query, bindArgs(bindings)...).Scan(&n); err != nil {
		return 0, newStorageError(StorageIO, "countValues", err)
	}
	return n, nil
}

// FindKeys evaluates p against idx's side table and returns the
// matching keys.
func (v *ReadCollectionView[V]) FindKeys(idx *Index[V], p Predicate[V]) ([]string, error) {
	sqlFrag, bindings := p.SQL()
	query := fmt.Sprintf(`SELECT key FROM %s WHERE %s`, schema.IndexTableName(v.bc.name()), sqlFrag)
	rows, err := v.tx.tx.QueryContext(v.tx.ctx, query, bindArgs(bindings)...)
	if err != nil {
		return nil, newStorageError(StorageIO, "findKeys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, newStorageError(StorageIO, "findKeys", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// FindValues evaluates p against idx's side table and returns the
// matching values, deserialized (and cached) via Value.
func (v *ReadCollectionView[V]) FindValues(idx *Index[V], p Predicate[V]) ([]V, error) {
	keys, err := v.FindKeys(idx, p)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(keys))
	for _, key := range keys {
		val, ok, err := v.Value(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, val)
		}
	}
	return out, nil
}

func bindArgs(bindings []Scalar) []any {
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = b.bindValue()
	}
	return args
}

// Set serializes value, UPSERTs the row, assigns a new rowVersion,
// notifies every associated extension, records the change and
// populates the transaction's own cache.
func (v *WriteCollectionView[V]) Set(key string, value V) error {
	tx := v.wtx

	data, err := v.bc.collection.Serialize(value)
	if err != nil {
		return &SerializationError{Collection: v.bc.name(), Key: key, Err: err}
	}

	var existed bool
	if err := tx.tx.QueryRowContext(tx.ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE key = ?`, schema.ValueTableName(v.bc.name())), key).Scan(new(int)); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return newStorageError(StorageIO, "set", err)
		}
	} else {
		existed = true
	}

	rowVersion := tx.conn.db.nextRowVersion()
	upsertSQL := fmt.Sprintf(`INSERT INTO %s (key, valueData, rowVersion) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET valueData = excluded.valueData, rowVersion = excluded.rowVersion`,
		schema.ValueTableName(v.bc.name()))
	if _, err := tx.tx.ExecContext(tx.ctx, upsertSQL, key, data, rowVersion); err != nil {
		return newStorageError(StorageConstraint, "set", err)
	}

	for _, h := range v.bc.hooks {
		var hookErr error
		if existed {
			hookErr = h.onUpdate(tx.ctx, tx.tx, key, value)
		} else {
			hookErr = h.onInsert(tx.ctx, tx.tx, key, value)
		}
		if hookErr != nil {
			return newStorageError(StorageConstraint, "index maintenance", hookErr)
		}
	}

	kind := ChangeInserted
	if existed {
		kind = ChangeUpdated
	}
	tx.builder.recordSet(v.bc.name(), key, kind, rowVersion)

	v.tx.conn.cacheFor(v.bc.name()).put(key, rowVersion, value)
	return nil
}

// Remove deletes key from this collection, notifying extensions and
// recording the change. Removing an absent key is a no-op.
func (v *WriteCollectionView[V]) Remove(key string) error {
	tx := v.wtx

	res, err := tx.tx.ExecContext(tx.ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, schema.ValueTableName(v.bc.name())), key)
	if err != nil {
		return newStorageError(StorageIO, "remove", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for _, h := range v.bc.hooks {
		if err := h.onRemove(tx.ctx, tx.tx, key); err != nil {
			return newStorageError(StorageConstraint, "index maintenance", err)
		}
	}

	tx.builder.recordRemove(v.bc.name(), key)
	v.tx.conn.cacheFor(v.bc.name()).invalidate(key)
	return nil
}

// RemoveAll deletes every row in this collection.
func (v *WriteCollectionView[V]) RemoveAll() error {
	tx := v.wtx

	if _, err := tx.tx.ExecContext(tx.ctx, fmt.Sprintf(`DELETE FROM %s`, schema.ValueTableName(v.bc.name()))); err != nil {
		return newStorageError(StorageIO, "removeAll", err)
	}

	for _, h := range v.bc.hooks {
		if err := h.onRemoveAll(tx.ctx, tx.tx); err != nil {
			return newStorageError(StorageConstraint, "index maintenance", err)
		}
	}

	tx.builder.recordRemoveAll(v.bc.name())
	v.tx.conn.cacheFor(v.bc.name()).invalidateAll()
	return nil
}

// RemoveValues deletes every value matching p against idx's side table.
func (v *WriteCollectionView[V]) RemoveValues(idx *Index[V], p Predicate[V]) error {
	keys, err := v.FindKeys(idx, p)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := v.Remove(key); err != nil {
			return err
		}
	}
	return nil
}
