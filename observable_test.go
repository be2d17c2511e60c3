package turf_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	turf "github.com/turf-db/turf"
)

// an observer fires exactly once per commit that touches its
// collection.
func TestObserverFiresOncePerCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	obsConn := f.db.NewObservingConnection()
	defer obsConn.Close()

	var fires atomic.Int64
	var lastNames []string
	var mu sync.Mutex

	obs := turf.Observe(obsConn, f.people)
	sub := obs.SubscribeNext(func(snap turf.CollectionSnapshot[person]) {
		fires.Add(1)
		vals, err := snap.View.AllValues()
		require.NoError(t, err)
		mu.Lock()
		lastNames = lastNames[:0]
		for _, v := range vals {
			lastNames = append(lastNames, v.Name)
		}
		mu.Unlock()
	})
	defer sub.Dispose()

	writer := f.db.NewConnection()
	defer writer.Close()

	_, err := turf.ReadWrite(ctx, writer, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		return struct{}{}, view.Set("alice", person{Name: "Alice", Age: 30})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fires.Load() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"Alice"}, lastNames)
	mu.Unlock()
}

// Property: disposing a subscription more than once is a no-op.
func TestDisposableIdempotent(t *testing.T) {
	f := newFixture(t)
	obsConn := f.db.NewObservingConnection()
	defer obsConn.Close()

	obs := turf.Observe(obsConn, f.people)
	sub := obs.SubscribeNext(func(turf.CollectionSnapshot[person]) {})

	assert.NotPanics(t, func() {
		sub.Dispose()
		sub.Dispose()
		sub.Dispose()
	})
}

// A nil *Disposable is also safe to dispose.
func TestNilDisposableIsSafe(t *testing.T) {
	var d *turf.Disposable
	assert.NotPanics(t, func() { d.Dispose() })
}

// ValuesWhere re-runs the index query on each commit touching the
// collection and emits the refreshed result set.
func TestValuesWhereEmitsUpdatedResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	obsConn := f.db.NewObservingConnection()
	defer obsConn.Close()

	obs := turf.Observe(obsConn, f.people)
	idx := f.peopleIndex()
	stream := turf.ValuesWhere(obs, idx, turf.GreaterThan[person](f.age, int64(0)), nil)

	var mu sync.Mutex
	var seen [][]string
	sub := stream.SubscribeNext(func(vals []person) {
		names := make([]string, 0, len(vals))
		for _, v := range vals {
			names = append(names, v.Name)
		}
		mu.Lock()
		seen = append(seen, names)
		mu.Unlock()
	})
	defer sub.Dispose()

	writer := f.db.NewConnection()
	defer writer.Close()
	_, err := turf.ReadWrite(ctx, writer, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		return struct{}{}, view.Set("alice", person{Name: "Alice", Age: 10})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)
}
