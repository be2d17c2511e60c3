package turf_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	turf "github.com/turf-db/turf"
)

type person struct {
	Name  string
	Age   int64
	Email string
}

type fixture struct {
	db     *turf.Database
	people *turf.CollectionHandle[person]
	age    *turf.TypedProperty[person, int64]
	email  *turf.NullableProperty[person, string]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	age := turf.Int64Property[person]("age", func(p person) int64 { return p.Age })
	email := turf.NullableTextProperty[person]("email", func(p person) (string, bool) {
		if p.Email == "" {
			return "", false
		}
		return p.Email, true
	})

	byAge := &turf.Index[person]{
		Name:    "by_age",
		Version: 1,
		Properties: []turf.IndexedPropertyAny[person]{
			age.Any(),
			email.Any(),
		},
	}

	coll := &turf.Collection[person]{
		Name:          "people",
		SchemaVersion: 1,
		Serialize:     func(p person) ([]byte, error) { return json.Marshal(p) },
		Deserialize: func(data []byte) (person, bool) {
			var p person
			if err := json.Unmarshal(data, &p); err != nil {
				return person{}, false
			}
			return p, true
		},
		Indexes: []*turf.Index[person]{byAge},
	}

	container := turf.NewCollectionsContainer()
	handle, err := turf.RegisterCollection(container, coll)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "turf-test.db")
	db, err := turf.Open(dbPath, container, turf.DatabaseOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	return &fixture{db: db, people: handle, age: age, email: email}
}

// round trip through Set/Value.
func TestSetThenValueRoundTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		return struct{}{}, view.Set("alice", person{Name: "Alice", Age: 30, Email: "alice@example.com"})
	})
	require.NoError(t, err)

	got, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (person, error) {
		view, err := f.people.In(tx)
		require.NoError(t, err)
		p, ok, err := view.Value("alice")
		require.NoError(t, err)
		require.True(t, ok)
		return p, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, int64(30), got.Age)
}

func TestValueMissingKeyReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (struct{}, error) {
		view, err := f.people.In(tx)
		require.NoError(t, err)
		_, ok, err := view.Value("ghost")
		require.NoError(t, err)
		assert.False(t, ok)
		return struct{}{}, nil
	})
	require.NoError(t, err)
}

// index query matches expected rows.
func TestFindValuesByIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		for _, p := range []person{
			{Name: "Alice", Age: 30, Email: "alice@example.com"},
			{Name: "Bob", Age: 25},
			{Name: "Carl", Age: 40},
		} {
			if err := view.Set(p.Name, p); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)

	byAgeIdx := f.peopleIndex()
	names, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) ([]string, error) {
		view, err := f.people.In(tx)
		require.NoError(t, err)
		vals, err := view.FindValues(byAgeIdx, turf.GreaterThan[person](f.age, int64(26)))
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			out = append(out, v.Name)
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alice", "Carl"}, names)
}

// RemoveValues deletes only the rows matching the predicate.
func TestRemoveValuesByIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		for _, p := range []person{
			{Name: "Alice", Age: 30},
			{Name: "Bob", Age: 25},
		} {
			if err := view.Set(p.Name, p); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)

	byAgeIdx := f.peopleIndex()
	_, err = turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		return struct{}{}, view.RemoveValues(byAgeIdx, turf.GreaterOrEqual[person](f.age, int64(30)))
	})
	require.NoError(t, err)

	keys, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) ([]string, error) {
		view, err := f.people.In(tx)
		require.NoError(t, err)
		return view.AllKeys()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, keys)
}

// IsNil matches rows whose nullable property was never set.
func TestNullableIndexProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		if err := view.Set("alice", person{Name: "Alice", Email: "alice@example.com"}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, view.Set("bob", person{Name: "Bob"})
	})
	require.NoError(t, err)

	byAgeIdx := f.peopleIndex()
	names, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) ([]string, error) {
		view, err := f.people.In(tx)
		require.NoError(t, err)
		vals, err := view.FindValues(byAgeIdx, f.email.IsNil())
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			out = append(out, v.Name)
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names)
}

// Property: prepared-query equivalence with ad-hoc findValues.
func TestPreparedQueryMatchesAdHoc(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.db.NewConnection()
	defer conn.Close()

	_, err := turf.ReadWrite(ctx, conn, func(tx *turf.ReadWriteTransaction) (struct{}, error) {
		view, err := f.people.InWrite(tx)
		require.NoError(t, err)
		for _, p := range []person{{Name: "Alice", Age: 30}, {Name: "Bob", Age: 20}} {
			if err := view.Set(p.Name, p); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)

	byAgeIdx := f.peopleIndex()
	pred := turf.GreaterThan[person](f.age, int64(25))
	pq := turf.PrepareQuery("people", byAgeIdx, pred)

	type result struct{ adhoc, prepared []person }
	res, err := turf.ReadOnly(ctx, conn, func(tx *turf.ReadTransaction) (result, error) {
		view, err := f.people.In(tx)
		if err != nil {
			return result{}, err
		}
		a, err := view.FindValues(byAgeIdx, pred)
		if err != nil {
			return result{}, err
		}
		p, err := pq.FindValues(view)
		if err != nil {
			return result{}, err
		}
		return result{adhoc: a, prepared: p}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, res.adhoc, res.prepared)
}

// peopleIndex rebuilds the *Index[person] handle used by the view's
// query surface; tests keep their own reference since Collection's
// Indexes slice isn't re-exposed after registration.
func (f *fixture) peopleIndex() *turf.Index[person] {
	return &turf.Index[person]{
		Name:    "by_age",
		Version: 1,
		Properties: []turf.IndexedPropertyAny[person]{
			f.age.Any(),
			f.email.Any(),
		},
	}
}
