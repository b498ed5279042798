package types

import "sync/atomic"

// Cloner lets a value opt out of the default reflection-based deep clone
// (pkg/delta uses this for HeavyHandle: a "clone" of a heavy asset is a
// refcount bump, never a data copy).
type Cloner interface {
	Clone() (any, error)
}

// Set is an insertion-ordered set of strings — one of the value kinds a
// context tree can hold (spec.md §3: "scalar, ordered sequence, mapping,
// set, opaque large-asset handle").
type Set struct {
	order []string
	index map[string]int
}

// NewSet builds a Set from the given members, preserving first-seen order.
func NewSet(members ...string) *Set {
	s := &Set{index: make(map[string]int, len(members))}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add inserts member if absent; returns true if it was newly added.
func (s *Set) Add(member string) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[member]; ok {
		return false
	}
	s.index[member] = len(s.order)
	s.order = append(s.order, member)
	return true
}

// Remove deletes member if present; returns true if it was removed.
func (s *Set) Remove(member string) bool {
	i, ok := s.index[member]
	if !ok {
		return false
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, member)
	for m, idx := range s.index {
		if idx > i {
			s.index[m] = idx - 1
		}
	}
	return true
}

// Contains reports set membership.
func (s *Set) Contains(member string) bool {
	_, ok := s.index[member]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.order)
}

// Members returns the set's contents in insertion order. The returned slice
// is a copy; mutating it does not affect the set.
func (s *Set) Members() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clone implements types.Cloner: a Set is small and owned per-path, so it
// clones by value rather than being treated as a heavy handle.
func (s *Set) Clone() (any, error) {
	return NewSet(s.Members()...), nil
}

// HeavyHandle is an opaque, refcounted reference to a large or external
// asset (file handle, GPU buffer, shared-memory segment, ...). Shadowing a
// HEAVY-zone value never deep-copies Data; it bumps a shared refcount
// (spec.md §4.2, §5).
type HeavyHandle struct {
	ID   string
	Data any
	refs *int32
}

// NewHeavyHandle wraps data behind a fresh, singly-referenced handle.
func NewHeavyHandle(id string, data any) *HeavyHandle {
	one := int32(1)
	return &HeavyHandle{ID: id, Data: data, refs: &one}
}

// Retain returns a new handle wrapper sharing the same underlying refcount
// and data, bumping the count by one. This is what "clone" means for HEAVY
// values.
func (h *HeavyHandle) Retain() *HeavyHandle {
	atomic.AddInt32(h.refs, 1)
	return &HeavyHandle{ID: h.ID, Data: h.Data, refs: h.refs}
}

// Release drops one reference, returning the count remaining.
func (h *HeavyHandle) Release() int32 {
	return atomic.AddInt32(h.refs, -1)
}

// RefCount reports the current reference count.
func (h *HeavyHandle) RefCount() int32 {
	return atomic.LoadInt32(h.refs)
}

// Clone implements types.Cloner by retaining rather than copying.
func (h *HeavyHandle) Clone() (any, error) {
	return h.Retain(), nil
}

// tombstone marks a path for removal in a patch, rather than for the usual
// deep-merge-on-write (spec.md §4.4 DELETE). A committed patch's deep merge
// never removes keys on its own, so a DELETE has to travel through the patch
// as an explicit value the merge step recognizes and reacts to.
type tombstone struct{}

// Tombstone is the sentinel patch value meaning "remove this path", produced
// by pkg/delta.BuildPending for a DEL entry and consumed by pkg/store's merge.
var Tombstone = tombstone{}

// IsTombstone reports whether v is the delete sentinel.
func IsTombstone(v any) bool {
	_, ok := v.(tombstone)
	return ok
}
