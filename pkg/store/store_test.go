package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/types"
)

func TestCompareAndSwapAppliesAtExpectedVersion(t *testing.T) {
	s := New()
	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	snap := s.Current()
	val, ok := snap.Get("data", "domain")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"balance": 10}, val)
}

func TestSmartCASAppliesDisjointKeysAgainstNewerBase(t *testing.T) {
	s := New(WithMode(SmartCAS))

	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)

	// A second writer opened at version 0 but only touches "other", which
	// never changed: should still succeed even though version moved on.
	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"other": map[string]any{"count": 1}}})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	snap := s.Current()
	domain, _ := snap.Get("data", "domain")
	assert.Equal(t, map[string]any{"balance": 10}, domain)
	other, _ := snap.Get("data", "other")
	assert.Equal(t, map[string]any{"count": 1}, other)
}

func TestSmartCASRejectsOverlappingKeys(t *testing.T) {
	s := New(WithMode(SmartCAS))

	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)

	_, err = s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 20}}})
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Keys, "domain")
	assert.True(t, errors.Is(err, theuserr.ErrCASMismatch))
}

func TestStrictCASRejectsAnyMismatch(t *testing.T) {
	s := New(WithMode(StrictCAS))

	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)

	_, err = s.CompareAndSwap(0, Patch{Data: map[string]any{"other": map[string]any{"count": 1}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, theuserr.ErrStrictCASMismatch))
}

func TestEmptySubmapIsNotAConflictOrAWrite(t *testing.T) {
	s := New(WithMode(SmartCAS))

	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)

	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{}}})
	require.NoError(t, err)
	assert.Equal(t, 2, v, "empty submap still mints a version but touches nothing")

	snap := s.Current()
	domain, _ := snap.Get("data", "domain")
	assert.Equal(t, map[string]any{"balance": 10}, domain)
}

func TestTombstoneRemovesTopLevelKey(t *testing.T) {
	s := New()
	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"balance": 10}}})
	require.NoError(t, err)

	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": types.Tombstone}})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	snap := s.Current()
	_, ok := snap.Get("data", "domain")
	assert.False(t, ok, "tombstoned top-level key must be gone, not merged as an empty value")
}

func TestTombstoneRemovesNestedKey(t *testing.T) {
	s := New()
	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{
		"domain": map[string]any{"balance": 10, "name": "acct"},
	}})
	require.NoError(t, err)

	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{
		"domain": map[string]any{"balance": types.Tombstone},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	snap := s.Current()
	domain, ok := snap.Get("data", "domain")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "acct"}, domain, "deleted nested key must be removed, sibling keys must survive")
}

func TestTicketDeniesNonHolder(t *testing.T) {
	s := New()
	s.HoldTicket("worker-a")

	_, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"x": 1}}, Requester: "worker-b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, theuserr.ErrSystemBusy))

	v, err := s.CompareAndSwap(0, Patch{Data: map[string]any{"domain": map[string]any{"x": 1}}, Requester: "worker-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
