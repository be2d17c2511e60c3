package turf

import (
	"sync"

	"github.com/turf-db/turf/internal/sqlengine"
)

// Connection is one logical session against a Database: its own SQL
// session and its own per-collection value caches.
type Connection struct {
	db     *Database
	caches map[string]anyValueCache

	observing bool

	mu         sync.Mutex
	mailbox    map[string]map[string]struct{}
	mailboxAll map[string]bool
	obsTx      *sqlengine.Tx
}

func newConnection(db *Database, observing bool) *Connection {
	c := &Connection{
		db:         db,
		caches:     make(map[string]anyValueCache),
		observing:  observing,
		mailbox:    make(map[string]map[string]struct{}),
		mailboxAll: make(map[string]bool),
	}
	for _, b := range db.collections.bindings {
		c.caches[b.name()] = b.newCache(b.cacheCapacity())
	}
	return c
}

func (c *Connection) cacheFor(name string) anyValueCache { return c.caches[name] }

// drainMailbox applies every pending cross-connection invalidation
// before a new transaction begins on this connection.
func (c *Connection) drainMailbox() {
	c.mu.Lock()
	all := c.mailboxAll
	pending := c.mailbox
	c.mailboxAll = make(map[string]bool)
	c.mailbox = make(map[string]map[string]struct{})
	c.mu.Unlock()

	for name, isAll := range all {
		if !isAll {
			continue
		}
		if cache := c.caches[name]; cache != nil {
			cache.invalidateAll()
		}
	}
	for name, keys := range pending {
		cache := c.caches[name]
		if cache == nil {
			continue
		}
		for key := range keys {
			cache.invalidate(key)
		}
	}
}

// deliver queues an invalidation for this connection's mailbox. Called
// by the committing connection, once per sibling, for every changed key
// (or once with deleteAll for a removeAllValues).
func (c *Connection) deliver(collection, key string, deleteAll bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deleteAll {
		c.mailboxAll[collection] = true
		return
	}
	keys := c.mailbox[collection]
	if keys == nil {
		keys = make(map[string]struct{})
		c.mailbox[collection] = keys
	}
	keys[key] = struct{}{}
}

// Close detaches this connection from its Database, removes every
// observable on it from change-set dispatch (their subscribers stay
// registered but receive no further values), and rolls back its
// observing snapshot transaction if one is open.
func (c *Connection) Close() error {
	c.db.unregisterConnection(c)
	if c.observing {
		if n := c.db.observers.detachConnection(c); n > 0 {
			c.db.metrics.ActiveObservers.Sub(float64(n))
		}
	}

	c.mu.Lock()
	tx := c.obsTx
	c.obsTx = nil
	c.mu.Unlock()
	if tx != nil {
		return tx.Rollback()
	}
	return nil
}
