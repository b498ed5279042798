package store

import (
	"fmt"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/types"
)

// Mode selects the compare-and-swap discipline a Store enforces.
type Mode int

const (
	// SmartCAS (the default) permits a patch to apply against a newer base
	// version as long as the patch's top-level keys are disjoint from
	// everything that changed since expected_version.
	SmartCAS Mode = iota
	// StrictCAS requires expected_version == current version, full stop.
	StrictCAS
)

// Snapshot is an immutable view of the committed trees at a given version.
// Safe to share across goroutines; Get never mutates the underlying tree.
type Snapshot struct {
	Version int
	data    *iradix.Tree
	heavy   *iradix.Tree
	signal  *iradix.Tree
}

// Get returns the top-level value for key in the named tree ("data", "heavy"
// or "signal"), and whether it was present.
func (s *Snapshot) Get(tree, key string) (any, bool) {
	t := s.treeFor(tree)
	if t == nil {
		return nil, false
	}
	v, ok := t.Get([]byte(key))
	return v, ok
}

// Keys returns every top-level key currently present in the named tree.
func (s *Snapshot) Keys(tree string) []string {
	t := s.treeFor(tree)
	if t == nil {
		return nil
	}
	var keys []string
	t.Root().Walk(func(k []byte, _ any) bool {
		keys = append(keys, string(k))
		return false
	})
	return keys
}

// GetPath navigates a dotted/bracketed path within the named tree's
// top-level entries, returning (nil, false) if any segment along the way is
// absent. Used to fetch the "current" value when a guard touches a subtree
// for the first time in a transaction.
func (s *Snapshot) GetPath(tree, path string) (any, bool) {
	segs, err := types.ParsePath(path)
	if err != nil || len(segs) == 0 {
		return nil, false
	}
	cur, ok := s.Get(tree, segs[0].Key)
	if !ok {
		return nil, false
	}
	if segs[0].HasIndex {
		cur, ok = indexInto(cur, segs[0].Index)
		if !ok {
			return nil, false
		}
	}
	for _, seg := range segs[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
		if seg.HasIndex {
			cur, ok = indexInto(cur, seg.Index)
			if !ok {
				return nil, false
			}
		}
	}
	return cur, true
}

func indexInto(v any, idx int) (any, bool) {
	slice, ok := v.([]any)
	if !ok || idx < 0 || idx >= len(slice) {
		return nil, false
	}
	return slice[idx], true
}

func (s *Snapshot) treeFor(tree string) *iradix.Tree {
	switch tree {
	case "data":
		return s.data
	case "heavy":
		return s.heavy
	case "signal":
		return s.signal
	default:
		return nil
	}
}

// commitRecord is the (version, keys-touched) tuple the recent-commits cache
// holds for Smart CAS conflict detection (spec.md §4.1).
type commitRecord struct {
	keys map[string]struct{}
}

// Store holds the canonical data/heavy/signal trees and a monotonic version
// counter. CAS is serialized by a short exclusive lock; Current takes the
// same lock only long enough to copy the version and tree roots, and reads
// through the returned Snapshot take no lock.
type Store struct {
	mode Mode

	mu      sync.Mutex
	version int
	data    *iradix.Tree
	heavy   *iradix.Tree
	signal  *iradix.Tree

	recent       *lru.Cache[int, commitRecord]
	lastCommitAt time.Time

	ticketMu sync.Mutex
	ticket   string // current priority-ticket holder, "" if unheld
}

// Option configures a new Store.
type Option func(*Store)

// WithMode selects strict or smart CAS. Smart is the default.
func WithMode(m Mode) Option {
	return func(s *Store) { s.mode = m }
}

// WithHistoryDepth bounds how many past (version, keys-touched) tuples the
// Smart CAS conflict check retains. Defaults to 256.
func WithHistoryDepth(n int) Option {
	return func(s *Store) {
		c, err := lru.New[int, commitRecord](n)
		if err == nil {
			s.recent = c
		}
	}
}

// New returns an empty Store at version 0.
func New(opts ...Option) *Store {
	s := &Store{
		mode:   SmartCAS,
		data:   iradix.New(),
		heavy:  iradix.New(),
		signal: iradix.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recent == nil {
		c, _ := lru.New[int, commitRecord](256)
		s.recent = c
	}
	return s
}

// Current returns an immutable snapshot of the committed trees.
func (s *Store) Current() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{Version: s.version, data: s.data, heavy: s.heavy, signal: s.signal}
}

// HoldTicket grants exclusive CAS access to requester, or clears the ticket
// if requester is "". Granting is the Controller's job (C8); the Store only
// enforces whatever is currently held.
func (s *Store) HoldTicket(requester string) {
	s.ticketMu.Lock()
	defer s.ticketMu.Unlock()
	s.ticket = requester
}

// Ticket reports the current priority-ticket holder, if any.
func (s *Store) Ticket() string {
	s.ticketMu.Lock()
	defer s.ticketMu.Unlock()
	return s.ticket
}

// Patch is a per-tree top-level-key -> value map submitted to CompareAndSwap.
// A nil or empty Patch leaves that tree untouched. A sub-value of a patch's
// entry that is itself an empty map means "no change in this subtree" per
// the deep-merge optimization in spec.md §4.1 and is never treated as a
// write by the conflict check.
type Patch struct {
	Data      map[string]any
	Heavy     map[string]any
	Signal    map[string]any
	Requester string
}

// ConflictError names the top-level keys that blocked a Smart CAS commit.
type ConflictError struct {
	Keys []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("CAS conflict on keys %v", e.Keys)
}

func (e *ConflictError) Unwrap() error { return theuserr.ErrCASMismatch }

// CompareAndSwap applies patch if expectedVersion is acceptable under the
// Store's mode, returning the new version. See spec.md §4.1 for the Smart
// CAS disjoint-key rule.
func (s *Store) CompareAndSwap(expectedVersion int, patch Patch) (int, error) {
	s.ticketMu.Lock()
	holder := s.ticket
	s.ticketMu.Unlock()
	if holder != "" && patch.Requester != holder {
		return 0, fmt.Errorf("held by %q: %w", holder, theuserr.ErrSystemBusy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedVersion != s.version {
		if s.mode == StrictCAS {
			return 0, fmt.Errorf("expected %d, current %d: %w", expectedVersion, s.version, theuserr.ErrStrictCASMismatch)
		}
		if conflict := s.conflictingKeys(expectedVersion, patch); len(conflict) > 0 {
			return 0, &ConflictError{Keys: conflict}
		}
	}

	touched := make(map[string]struct{})
	var err error
	s.data, err = applyPatch(s.data, patch.Data, touched)
	if err != nil {
		return 0, err
	}
	s.heavy, err = applyPatch(s.heavy, patch.Heavy, nil)
	if err != nil {
		return 0, err
	}
	s.signal, err = applyPatch(s.signal, patch.Signal, nil)
	if err != nil {
		return 0, err
	}

	s.version++
	s.recent.Add(s.version, commitRecord{keys: touched})
	s.lastCommitAt = time.Now()
	return s.version, nil
}

// LastCommitAt reports when the most recent CompareAndSwap succeeded, or the
// zero Time if the store has never committed.
func (s *Store) LastCommitAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommitAt
}

// conflictingKeys returns the top-level keys of patch.Data that were also
// touched by any commit in (expectedVersion, current version].
func (s *Store) conflictingKeys(expectedVersion int, patch Patch) []string {
	changed := make(map[string]struct{})
	for v := expectedVersion + 1; v <= s.version; v++ {
		rec, ok := s.recent.Get(v)
		if !ok {
			// History doesn't reach back this far: conservatively treat
			// every patch key as a possible conflict.
			return topLevelKeys(patch.Data)
		}
		for k := range rec.keys {
			changed[k] = struct{}{}
		}
	}
	var overlap []string
	for k, v := range patch.Data {
		if isEmptyMap(v) {
			continue
		}
		if _, ok := changed[k]; ok {
			overlap = append(overlap, k)
		}
	}
	return overlap
}

func topLevelKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
