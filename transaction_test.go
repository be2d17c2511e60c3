package turf_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	turf "github.com/turf-db/turf"
)

func TestReadWriteRollsBackOnBodyError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	boom := errors.New("boom")
	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, verr := f.people.InWrite(tx)
		require.NoError(t, verr)
		if serr := view.Set("alice", person{Name: "Alice"}); serr != nil {
			return struct{}{}, serr
		}
		return struct{}{}, boom
	})
	require.ErrorIs(t, err, boom)

	count, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (int64, error) {
		view, verr := f.people.In(tx)
		require.NoError(t, verr)
		return view.Count()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestReadOnlyNeverCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)

	count, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (int64, error) {
		view, verr := f.people.In(tx)
		require.NoError(t, verr)
		return view.Count()
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// Writer serialization: two concurrent ReadWrite calls against different
// connections of the same database never interleave their critical
// sections, so a counter incremented non-atomically inside the body
// still ends up correct.
func TestWriterSerializesConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	var unsafeCounter int64
	var successes atomic.Int64

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := f.db.NewConnection()
			defer conn.Close()

			_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
				current := unsafeCounter
				unsafeCounter = current + 1
				return struct{}{}, nil
			})
			if err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(writers), successes.Load())
	assert.Equal(t, int64(writers), unsafeCounter)
}
