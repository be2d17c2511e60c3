package turf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeSetBuilderRecordsInsertThenUpdate(t *testing.T) {
	b := newChangeSetBuilder()
	b.recordSet("users", "alice", ChangeInserted, 1)
	b.recordSet("users", "alice", ChangeUpdated, 2)

	require.False(t, b.isEmpty())
	cs := b.freeze(1)

	ucs, ok := cs.Collections["users"]
	require.True(t, ok)
	require.Len(t, ucs.Changes, 2)
	assert.Equal(t, ChangeInserted, ucs.Changes[0].Kind)
	assert.Equal(t, ChangeUpdated, ucs.Changes[1].Kind)
	assert.True(t, ucs.HasChange("alice"))
	assert.False(t, ucs.HasChange("bob"))
}

func TestChangeSetBuilderDeleteAllKeepsSubsequentChangesOrdered(t *testing.T) {
	b := newChangeSetBuilder()
	b.recordSet("users", "alice", ChangeInserted, 1)
	b.recordRemoveAll("users")
	b.recordSet("users", "bob", ChangeInserted, 2)

	cs := b.freeze(1)
	ucs := cs.Collections["users"]
	assert.True(t, ucs.DeleteAll)
	require.Len(t, ucs.Changes, 2)
	assert.Equal(t, "alice", ucs.Changes[0].Key)
	assert.Equal(t, "bob", ucs.Changes[1].Key)
}

func TestChangeSetBuilderEmpty(t *testing.T) {
	b := newChangeSetBuilder()
	assert.True(t, b.isEmpty())
}

func TestChangeSetCollectionNames(t *testing.T) {
	b := newChangeSetBuilder()
	b.recordSet("users", "alice", ChangeInserted, 1)
	b.recordSet("sessions", "s1", ChangeInserted, 1)

	cs := b.freeze(1)
	names := cs.collectionNames()
	assert.ElementsMatch(t, []string{"users", "sessions"}, names)
}

func TestChangeKindString(t *testing.T) {
	assert.Equal(t, "inserted", ChangeInserted.String())
	assert.Equal(t, "updated", ChangeUpdated.String())
	assert.Equal(t, "removed", ChangeRemoved.String())
	assert.Equal(t, "unknown", ChangeKind(99).String())
}
