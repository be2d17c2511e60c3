package turf

import (
	"context"
	"errors"

	"github.com/turf-db/turf/internal/metrics"
	"github.com/turf-db/turf/internal/registry"
	"github.com/turf-db/turf/internal/schema"
	"github.com/turf-db/turf/internal/sqlengine"
	"github.com/turf-db/turf/internal/valuecache"
)

// anyValueCache is the type-erased surface connection.go drives a
// per-connection, per-collection value cache through, so the connection
// does not need a type parameter per registered collection.
type anyValueCache interface {
	get(key string, rowVersion uint64) (any, bool)
	put(key string, rowVersion uint64, value any)
	invalidate(key string)
	invalidateAll()
}

type typedValueCache[V any] struct {
	c *valuecache.Cache[V]
}

func (t *typedValueCache[V]) get(key string, rowVersion uint64) (any, bool) {
	v, ok := t.c.Get(key, rowVersion)
	if !ok {
		return nil, false
	}
	return v, true
}

func (t *typedValueCache[V]) put(key string, rowVersion uint64, value any) {
	t.c.Put(key, rowVersion, value.(V))
}

func (t *typedValueCache[V]) invalidate(key string) { t.c.Invalidate(key) }
func (t *typedValueCache[V]) invalidateAll()         { t.c.InvalidateAll() }

// collectionBinding is the type-erased surface a registered Collection[V]
// exposes to Database/Connection/Transaction code, mirroring the role
// extensionHooks plays for a single index but for the owning collection
// itself.
type collectionBinding interface {
	name() string
	schemaVersion() uint64
	setUp(ctx context.Context, tx *sqlengine.Tx, m *metrics.Collector) error
	newCache(capacity int) anyValueCache
	serializeAny(v any) ([]byte, error)
	deserializeAny(data []byte) (any, bool)
	extensions() []*extensionHooks
	cacheCapacity() int
}

type boundCollection[V any] struct {
	collection *Collection[V]
	hooks      []*extensionHooks
}

func (b *boundCollection[V]) name() string          { return b.collection.Name }
func (b *boundCollection[V]) schemaVersion() uint64 { return b.collection.SchemaVersion }
func (b *boundCollection[V]) cacheCapacity() int    { return b.collection.cacheCapacity() }
func (b *boundCollection[V]) extensions() []*extensionHooks { return b.hooks }

func (b *boundCollection[V]) newCache(capacity int) anyValueCache {
	return &typedValueCache[V]{c: valuecache.New[V](capacity)}
}

func (b *boundCollection[V]) serializeAny(v any) ([]byte, error) {
	return b.collection.Serialize(v.(V))
}

func (b *boundCollection[V]) deserializeAny(data []byte) (any, bool) {
	v, ok := b.collection.Deserialize(data)
	if !ok {
		return nil, false
	}
	return v, true
}

// setUp creates (or validates) this collection's value table and
// installs each of its associated extensions, all inside the write
// transaction the database was opened with.
func (b *boundCollection[V]) setUp(ctx context.Context, tx *sqlengine.Tx, m *metrics.Collector) error {
	storedVersion, exists, err := schema.StoredCollectionVersion(ctx, tx, b.collection.Name)
	if err != nil {
		return err
	}
	if exists && storedVersion != b.collection.SchemaVersion {
		return &MigrationRequiredError{Name: b.collection.Name, From: storedVersion, To: b.collection.SchemaVersion}
	}

	if err := schema.CreateValueTable(ctx, tx, b.collection.Name); err != nil {
		return err
	}
	if err := schema.RecordCollectionVersion(ctx, tx, b.collection.Name, b.collection.SchemaVersion); err != nil {
		return err
	}
	for _, h := range b.hooks {
		if err := h.install(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

// CollectionsContainer holds every collection a Database will register
// at open time. Build one with NewCollectionsContainer, register each
// Collection with RegisterCollection, and pass it to Open.
type CollectionsContainer struct {
	reg      *registry.Registry
	bindings []collectionBinding
	byName   map[string]collectionBinding
}

func NewCollectionsContainer() *CollectionsContainer {
	return &CollectionsContainer{reg: registry.New(), byName: make(map[string]collectionBinding)}
}

// CollectionHandle is the typed accessor returned by RegisterCollection,
// used to name this collection in transaction-scoped read/write views.
type CollectionHandle[V any] struct {
	name string
}

// Name returns the collection name this handle refers to.
func (h *CollectionHandle[V]) Name() string { return h.name }

// RegisterCollection registers coll with container, installing its
// table and any associated indexes the next time the container's
// database opens or reopens. It is a free function, not a method,
// because Go forbids additional type parameters on methods.
func RegisterCollection[V any](c *CollectionsContainer, coll *Collection[V]) (*CollectionHandle[V], error) {
	if _, err := c.reg.RegisterCollection(coll.Name, coll.SchemaVersion); err != nil {
		return nil, registrationErrorFrom(err)
	}

	b := &boundCollection[V]{collection: coll}
	for _, idx := range coll.Indexes {
		if err := c.reg.RegisterExtension(coll.Name, idx.Name, idx.Version); err != nil {
			return nil, registrationErrorFrom(err)
		}
		b.hooks = append(b.hooks, bindExtension(coll.Name, idx, coll.Deserialize))
	}

	c.bindings = append(c.bindings, b)
	c.byName[coll.Name] = b
	return &CollectionHandle[V]{name: coll.Name}, nil
}

// setUpCollections bootstraps the system catalog then every registered
// collection's table and extensions, all inside tx.
func (c *CollectionsContainer) setUpCollections(ctx context.Context, tx *sqlengine.Tx, m *metrics.Collector) error {
	if err := schema.Bootstrap(ctx, tx); err != nil {
		return err
	}
	for _, b := range c.bindings {
		if err := b.setUp(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

func (c *CollectionsContainer) lookup(name string) (collectionBinding, error) {
	b, ok := c.byName[name]
	if !ok {
		return nil, &RegistrationError{Kind: UnknownCollection, Name: name}
	}
	return b, nil
}

func registrationErrorFrom(err error) error {
	var dup *registry.DuplicateCollectionError
	if errors.As(err, &dup) {
		return &RegistrationError{Kind: DuplicateCollection, Name: dup.Name}
	}
	var dupExt *registry.DuplicateExtensionError
	if errors.As(err, &dupExt) {
		return &RegistrationError{Kind: DuplicateExtension, Name: dupExt.Extension}
	}
	var unknown *registry.UnknownCollectionError
	if errors.As(err, &unknown) {
		return &RegistrationError{Kind: UnknownCollection, Name: unknown.Collection}
	}
	return err
}
