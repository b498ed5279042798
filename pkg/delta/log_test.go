package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theus-run/theus/pkg/types"
)

func TestBuildPendingReplaysSetsByTopLevelKey(t *testing.T) {
	entries := []Entry{
		{Path: "domain.user.balance", Op: SET, New: 10},
		{Path: "domain.user.name", Op: SET, New: "ada"},
		{Path: "other.count", Op: SET, New: 1},
	}
	pending, err := BuildPending(entries)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"domain": map[string]any{"user": map[string]any{"balance": 10, "name": "ada"}},
		"other":  map[string]any{"count": 1},
	}, pending)
}

func TestBuildPendingDeleteWritesTombstone(t *testing.T) {
	entries := []Entry{
		{Path: "domain.user.balance", Op: SET, New: 10},
		{Path: "domain.user.balance", Op: DEL},
	}
	pending, err := BuildPending(entries)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"domain": map[string]any{"user": map[string]any{"balance": types.Tombstone}},
	}, pending, "a deleted path must carry a tombstone the store's merge can act on, not just vanish from the patch")
}

func TestOpDestructive(t *testing.T) {
	assert.False(t, APPEND.Destructive())
	assert.True(t, POP.Destructive())
	assert.True(t, CLEAR.Destructive())
	assert.True(t, SET.Destructive())
}

func TestLogRecordsInOrder(t *testing.T) {
	var l Log
	l.Record(Entry{Path: "a", Op: SET, New: 1})
	l.Record(Entry{Path: "b", Op: SET, New: 2})
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "a", l.Entries()[0].Path)
	assert.Equal(t, "b", l.Entries()[1].Path)
}
