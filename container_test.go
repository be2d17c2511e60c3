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

func plainCollection(name string, version uint64) *turf.Collection[string] {
	return &turf.Collection[string]{
		Name:          name,
		SchemaVersion: version,
		Serialize:     func(s string) ([]byte, error) { return json.Marshal(s) },
		Deserialize: func(data []byte) (string, bool) {
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return "", false
			}
			return s, true
		},
	}
}

func TestRegisterCollectionDuplicateName(t *testing.T) {
	container := turf.NewCollectionsContainer()
	_, err := turf.RegisterCollection(container, plainCollection("notes", 1))
	require.NoError(t, err)

	_, err = turf.RegisterCollection(container, plainCollection("notes", 1))
	require.Error(t, err)
	var regErr *turf.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, turf.DuplicateCollection, regErr.Kind)
}

func TestValueForMissingKeyInTransaction(t *testing.T) {
	container := turf.NewCollectionsContainer()
	handle, err := turf.RegisterCollection(container, plainCollection("notes", 1))
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "turf.db")
	db, err := turf.Open(dbPath, container, turf.DatabaseOptions{})
	require.NoError(t, err)
	defer db.Close()

	conn := db.NewConnection()
	defer conn.Close()

	_, err = turf.ReadOnly(context.Background(), conn, func(tx *turf.ReadTransaction) (struct{}, error) {
		view, verr := handle.In(tx)
		require.NoError(t, verr)
		_, _, verr = view.Value("x")
		return struct{}{}, verr
	})
	require.NoError(t, err)
}

func TestOpenSurfacesMigrationRequiredOnSchemaVersionMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "turf.db")

	container1 := turf.NewCollectionsContainer()
	_, err := turf.RegisterCollection(container1, plainCollection("notes", 1))
	require.NoError(t, err)
	db1, err := turf.Open(dbPath, container1, turf.DatabaseOptions{})
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	container2 := turf.NewCollectionsContainer()
	_, err = turf.RegisterCollection(container2, plainCollection("notes", 2))
	require.NoError(t, err)
	_, err = turf.Open(dbPath, container2, turf.DatabaseOptions{})
	require.Error(t, err)

	var migErr *turf.MigrationRequiredError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, uint64(1), migErr.From)
	assert.Equal(t, uint64(2), migErr.To)
}
