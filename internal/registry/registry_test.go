package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollection(t *testing.T) {
	r := New()
	_, err := r.RegisterCollection("users", 1)
	require.NoError(t, err)

	e, ok := r.Lookup("users")
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.SchemaVersion)
}

func TestRegisterCollectionDuplicate(t *testing.T) {
	r := New()
	_, err := r.RegisterCollection("users", 1)
	require.NoError(t, err)

	_, err = r.RegisterCollection("users", 2)
	require.Error(t, err)
	var dup *DuplicateCollectionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "users", dup.Name)
}

func TestRegisterExtensionUnknownCollection(t *testing.T) {
	r := New()
	err := r.RegisterExtension("users", "by_email", 1)
	require.Error(t, err)
	var unknown *UnknownCollectionError
	require.ErrorAs(t, err, &unknown)
}

func TestRegisterExtensionDuplicate(t *testing.T) {
	r := New()
	_, err := r.RegisterCollection("users", 1)
	require.NoError(t, err)

	require.NoError(t, r.RegisterExtension("users", "by_email", 1))

	err = r.RegisterExtension("users", "by_email", 2)
	require.Error(t, err)
	var dup *DuplicateExtensionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "by_email", dup.Extension)
}

func TestNamesPreservesRegistrationOrder(t *testing.T) {
	r := New()
	_, err := r.RegisterCollection("b", 1)
	require.NoError(t, err)
	_, err = r.RegisterCollection("a", 1)
	require.NoError(t, err)
	_, err = r.RegisterCollection("c", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, r.Names())
}
