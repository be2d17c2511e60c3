package turf

import (
	"context"
	"sync"
	"time"
)

// Disposable detaches a subscriber registered via SubscribeNext. Dispose
// is idempotent: calling it more than once has no additional effect.
type Disposable struct {
	once    sync.Once
	dispose func()
}

// Dispose detaches the associated subscriber. Calling it more than once,
// or on a nil Disposable, is a no-op.
func (d *Disposable) Dispose() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		if d.dispose != nil {
			d.dispose()
		}
	})
}

// subscriberList is the reference-counted subscriber bookkeeping every
// observable node in this file is built from: a mutex-protected map of
// callbacks plus first-subscriber/last-unsubscriber hooks, the same
// shape an SSE stream manager uses to multiplex one upstream feed to
// many downstream listeners with refcounted teardown.
type subscriberList[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]func(T)
	nextID  uint64
	onFirst func()
	onEmpty func()
}

func newSubscriberList[T any](onFirst, onEmpty func()) *subscriberList[T] {
	return &subscriberList[T]{subs: make(map[uint64]func(T)), onFirst: onFirst, onEmpty: onEmpty}
}

func (s *subscriberList[T]) subscribe(f func(T)) *Disposable {
	s.mu.Lock()
	first := len(s.subs) == 0
	id := s.nextID
	s.nextID++
	s.subs[id] = f
	s.mu.Unlock()

	if first && s.onFirst != nil {
		s.onFirst()
	}

	return &Disposable{dispose: func() {
		s.mu.Lock()
		delete(s.subs, id)
		empty := len(s.subs) == 0
		s.mu.Unlock()
		if empty && s.onEmpty != nil {
			s.onEmpty()
		}
	}}
}

func (s *subscriberList[T]) emit(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.subs))
	for _, f := range s.subs {
		fns = append(fns, f)
	}
	s.mu.Unlock()
	for _, f := range fns {
		f(v)
	}
}

// CollectionSnapshot is the value a CollectionObservable emits: the
// collection view at the observing connection's freshly bumped snapshot,
// paired with exactly what changed in this commit.
type CollectionSnapshot[V any] struct {
	View    *ReadCollectionView[V]
	Changes *CollectionChangeSet
}

// collectionNotifier is the type-erased interface the observer hub
// drives per changed collection, mirroring extensionHooks' role for
// secondary indexes.
type collectionNotifier interface {
	notify(tx *ReadTransaction, cs *ChangeSet)
}

// CollectionObservable is the root observable node: one per (connection,
// collection) pair, advancing with every commit that touches that
// collection.
type CollectionObservable[V any] struct {
	conn   *Connection
	handle *CollectionHandle[V]
	subs   *subscriberList[CollectionSnapshot[V]]
}

// Observe builds the root observable for handle against conn, which
// must have been created with Database.NewObservingConnection.
func Observe[V any](conn *Connection, handle *CollectionHandle[V]) *CollectionObservable[V] {
	o := &CollectionObservable[V]{conn: conn, handle: handle}
	o.subs = newSubscriberList[CollectionSnapshot[V]](
		func() {
			conn.db.observers.attach(conn, handle.name, o)
			conn.db.metrics.ActiveObservers.Inc()
		},
		func() {
			conn.db.observers.detach(conn, handle.name, o)
			conn.db.metrics.ActiveObservers.Dec()
		},
	)
	return o
}

// SubscribeNext registers f; see Disposable for teardown semantics.
func (o *CollectionObservable[V]) SubscribeNext(f func(CollectionSnapshot[V])) *Disposable {
	return o.subs.subscribe(f)
}

func (o *CollectionObservable[V]) notify(tx *ReadTransaction, cs *ChangeSet) {
	ccs, ok := cs.Collections[o.handle.name]
	if !ok {
		return
	}
	view, err := o.handle.In(tx)
	if err != nil {
		o.conn.db.log.Warn().Err(err).Str("collection", o.handle.name).Msg("turf: observer view construction failed")
		return
	}
	o.subs.emit(CollectionSnapshot[V]{View: view, Changes: ccs})
}

// Stream is the generic derived-observable node every operator below
// (Map, ValuesWhere, First) produces: lazily subscribes to its upstream
// on the first downstream subscriber, and disposes that upstream
// subscription once the last downstream subscriber detaches.
type Stream[T any] struct {
	subs     *subscriberList[T]
	mu       sync.Mutex
	upstream *Disposable
	connect  func() *Disposable
}

func newStream[T any](connect func() *Disposable) *Stream[T] {
	s := &Stream[T]{connect: connect}
	s.subs = newSubscriberList[T](
		func() {
			s.mu.Lock()
			s.upstream = s.connect()
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			if s.upstream != nil {
				s.upstream.Dispose()
				s.upstream = nil
			}
			s.mu.Unlock()
		},
	)
	return s
}

// SubscribeNext registers f on this stream.
func (s *Stream[T]) SubscribeNext(f func(T)) *Disposable {
	return s.subs.subscribe(f)
}

func (s *Stream[T]) emit(v T) { s.subs.emit(v) }

// Map produces a Stream whose emitted value is f applied to the root
// collection observable's latest snapshot.
func Map[V any, T any](upstream *CollectionObservable[V], f func(CollectionSnapshot[V]) T) *Stream[T] {
	var out *Stream[T]
	out = newStream[T](func() *Disposable {
		return upstream.SubscribeNext(func(snap CollectionSnapshot[V]) {
			out.emit(f(snap))
		})
	})
	return out
}

// MapStream chains a second map stage onto an existing Stream, so
// observable pipelines can fan a value through more than one projection
// without re-touching the root collection observable.
func MapStream[A any, T any](upstream *Stream[A], f func(A) T) *Stream[T] {
	var out *Stream[T]
	out = newStream[T](func() *Disposable {
		return upstream.SubscribeNext(func(v A) {
			out.emit(f(v))
		})
	})
	return out
}

// ValuesWhereOptions configures the values(where:) operator's
// prefilter. A nil Prefilter always re-runs the query.
type ValuesWhereOptions[V any] struct {
	Prefilter func(changes *CollectionChangeSet, previous []V) bool
}

// ValuesWhere re-runs idx/p against the snapshot of each upstream commit
// touching the collection, unless Prefilter says the previous result set
// is still valid, in which case it re-emits that result unchanged.
func ValuesWhere[V any](upstream *CollectionObservable[V], idx *Index[V], p Predicate[V], opts *ValuesWhereOptions[V]) *Stream[[]V] {
	prefilter := func(*CollectionChangeSet, []V) bool { return true }
	if opts != nil && opts.Prefilter != nil {
		prefilter = opts.Prefilter
	}

	var out *Stream[[]V]
	var mu sync.Mutex
	var previous []V

	out = newStream[[]V](func() *Disposable {
		return upstream.SubscribeNext(func(snap CollectionSnapshot[V]) {
			mu.Lock()
			prev := previous
			mu.Unlock()

			if !prefilter(snap.Changes, prev) {
				out.emit(prev)
				return
			}

			vals, err := snap.View.FindValues(idx, p)
			if err != nil {
				upstream.conn.db.log.Warn().Err(err).Msg("turf: values(where:) re-run failed, emitting last good value")
				out.emit(prev)
				return
			}

			mu.Lock()
			previous = vals
			mu.Unlock()
			out.emit(vals)
		})
	})
	return out
}

// ValuesWherePrepared is ValuesWhere's prepared-query counterpart.
func ValuesWherePrepared[V any](upstream *CollectionObservable[V], pq *PreparedQuery[V], opts *ValuesWhereOptions[V]) *Stream[[]V] {
	prefilter := func(*CollectionChangeSet, []V) bool { return true }
	if opts != nil && opts.Prefilter != nil {
		prefilter = opts.Prefilter
	}

	var out *Stream[[]V]
	var mu sync.Mutex
	var previous []V

	out = newStream[[]V](func() *Disposable {
		return upstream.SubscribeNext(func(snap CollectionSnapshot[V]) {
			mu.Lock()
			prev := previous
			mu.Unlock()

			if !prefilter(snap.Changes, prev) {
				out.emit(prev)
				return
			}

			vals, err := pq.FindValues(snap.View)
			if err != nil {
				upstream.conn.db.log.Warn().Err(err).Msg("turf: values(where:) re-run failed, emitting last good value")
				out.emit(prev)
				return
			}

			mu.Lock()
			previous = vals
			mu.Unlock()
			out.emit(vals)
		})
	})
	return out
}

// First emits the first element of each slice the upstream stream
// emits, or nil when the slice is empty.
func First[V any](upstream *Stream[[]V]) *Stream[*V] {
	var out *Stream[*V]
	out = newStream[*V](func() *Disposable {
		return upstream.SubscribeNext(func(vals []V) {
			if len(vals) == 0 {
				out.emit(nil)
				return
			}
			v := vals[0]
			out.emit(&v)
		})
	})
	return out
}

// ReplayStream is the result of ShareReplay: new subscribers immediately
// receive the last buffered values before any future emission.
type ReplayStream[T any] struct {
	inner *Stream[T]
	mu    sync.Mutex
	buf   []T
	cap   int
}

// Share returns s unchanged: every Stream already multicasts one lazily
// connected upstream subscription to all of its downstream subscribers,
// so a bare share() adds nothing beyond what Map/ValuesWhere already do
// (see DESIGN.md for why this differs from a naive per-subscriber
// upstream fan-out).
func Share[T any](s *Stream[T]) *Stream[T] { return s }

// ShareReplay multicasts upstream the same way Share does, additionally
// replaying the last bufferSize values to each new subscriber.
func ShareReplay[T any](upstream *Stream[T], bufferSize int) *ReplayStream[T] {
	rs := &ReplayStream[T]{cap: bufferSize}
	rs.inner = newStream[T](func() *Disposable {
		return upstream.SubscribeNext(func(v T) {
			rs.mu.Lock()
			rs.buf = append(rs.buf, v)
			if len(rs.buf) > rs.cap {
				rs.buf = rs.buf[len(rs.buf)-rs.cap:]
			}
			rs.mu.Unlock()
			rs.inner.emit(v)
		})
	})
	return rs
}

// SubscribeNext registers f, immediately replaying any buffered values
// to it before any future emission is delivered.
func (rs *ReplayStream[T]) SubscribeNext(f func(T)) *Disposable {
	d := rs.inner.SubscribeNext(f)
	rs.mu.Lock()
	buffered := append([]T(nil), rs.buf...)
	rs.mu.Unlock()
	for _, v := range buffered {
		f(v)
	}
	return d
}

// observerHub tracks, per observing connection, which collectionNotifier
// nodes are subscribed to which collection name, and bumps each
// connection's snapshot forward exactly once per dispatch regardless of
// how many observables on it are interested.
type observerHub struct {
	mu     sync.Mutex
	byConn map[*Connection]map[string][]collectionNotifier
}

func newObserverHub() *observerHub {
	return &observerHub{byConn: make(map[*Connection]map[string][]collectionNotifier)}
}

func (h *observerHub) attach(conn *Connection, collection string, n collectionNotifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.byConn[conn]
	if m == nil {
		m = make(map[string][]collectionNotifier)
		h.byConn[conn] = m
	}
	m[collection] = append(m[collection], n)
}

func (h *observerHub) detach(conn *Connection, collection string, n collectionNotifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.byConn[conn]
	if m == nil {
		return
	}
	list := m[collection]
	for i, x := range list {
		if x == n {
			m[collection] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// detachConnection removes every notifier registered for conn and
// returns how many were removed, so the caller can keep the active
// observer gauge in sync.
func (h *observerHub) detachConnection(conn *Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, notifiers := range h.byConn[conn] {
		count += len(notifiers)
	}
	delete(h.byConn, conn)
	return count
}

// dispatch delivers cs to every observing connection with at least one
// notifier subscribed to a collection cs touched, bumping each such
// connection's snapshot forward exactly once. It runs synchronously
// from publish, while the writer lock is still held, so every observer
// callback completes before the next write transaction can begin.
func (h *observerHub) dispatch(db *Database, cs *ChangeSet) {
	dispatchStart := time.Now()
	defer func() { db.metrics.ObserverDispatch.Observe(time.Since(dispatchStart).Seconds()) }()

	h.mu.Lock()
	type job struct {
		conn    *Connection
		targets []collectionNotifier
	}
	var jobs []job
	for conn, byColl := range h.byConn {
		var targets []collectionNotifier
		for name := range cs.Collections {
			targets = append(targets, byColl[name]...)
		}
		if len(targets) > 0 {
			jobs = append(jobs, job{conn: conn, targets: targets})
		}
	}
	h.mu.Unlock()

	for _, j := range jobs {
		tx, err := j.conn.bumpObservingSnapshot(context.Background())
		if err != nil {
			db.log.Warn().Err(err).Msg("turf: observing connection snapshot bump failed")
			continue
		}
		for _, n := range j.targets {
			n.notify(tx, cs)
		}
	}
}

// bumpObservingSnapshot ends this connection's current long-lived read
// transaction (if any) and opens a fresh deferred one, so the next
// notify call sees the state immediately after the triggering commit.
func (c *Connection) bumpObservingSnapshot(ctx context.Context) (*ReadTransaction, error) {
	c.drainMailbox()

	c.mu.Lock()
	prev := c.obsTx
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Rollback()
	}

	tx, err := c.db.engine.BeginDeferred(ctx)
	if err != nil {
		return nil, newStorageError(StorageIO, "bumpObservingSnapshot", err)
	}

	c.mu.Lock()
	c.obsTx = tx
	c.mu.Unlock()

	return &ReadTransaction{ctx: ctx, tx: tx, conn: c}, nil
}
