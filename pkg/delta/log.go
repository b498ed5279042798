package delta

import "github.com/theus-run/theus/pkg/types"

// Op tags the mutation a DeltaEntry records, distinguishing e.g. a LOG-zone
// append (allowed) from a LOG-zone pop (denied) at the guard.
type Op uint8

const (
	SET Op = iota
	DEL
	APPEND
	POP
	CLEAR
	REVERSE
	SORT
	POPITEM
)

func (o Op) String() string {
	switch o {
	case SET:
		return "SET"
	case DEL:
		return "DEL"
	case APPEND:
		return "APPEND"
	case POP:
		return "POP"
	case CLEAR:
		return "CLEAR"
	case REVERSE:
		return "REVERSE"
	case SORT:
		return "SORT"
	case POPITEM:
		return "POPITEM"
	default:
		return "UNKNOWN"
	}
}

// Destructive reports whether op removes or reorders elements rather than
// merely appending — the distinction a LOG-zone guard enforces.
func (o Op) Destructive() bool {
	return o != APPEND
}

// Entry is one recorded mutation: the path written, the operation, and the
// value before and after.
type Entry struct {
	Path string
	Op   Op
	Old  any
	New  any
}

// Log is the ordered, append-only record of every write in a transaction.
// Not safe for concurrent use — a transaction belongs to exactly one
// execution by design.
type Log struct {
	entries []Entry
}

// Record appends e to the log.
func (l *Log) Record(e Entry) {
	l.entries = append(l.entries, e)
}

// Entries returns the log in commit order. The slice is owned by the log;
// callers must not mutate it.
func (l *Log) Entries() []Entry {
	return l.entries
}

// Len reports how many entries have been recorded.
func (l *Log) Len() int {
	return len(l.entries)
}

// BuildPending replays the log onto a fresh map keyed by top-level key,
// producing the patch a transaction submits to the store's CompareAndSwap
// (spec.md §4.2). Each entry's New value is written at its path; DEL writes
// types.Tombstone at its path, so the store's deep merge can remove the key
// from committed state instead of leaving it untouched.
func BuildPending(entries []Entry) (map[string]any, error) {
	pending := make(map[string]any)
	for _, e := range entries {
		segs, err := types.ParsePath(e.Path)
		if err != nil {
			return nil, err
		}
		if e.Op == DEL {
			if err := deleteAt(pending, segs); err != nil {
				return nil, err
			}
			continue
		}
		if err := setAt(pending, segs, e.New); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

// setAt writes value at segs' path within root, creating intermediate maps
// as needed. It keys purely on Segment.Key; a bracketed index
// (Segment.HasIndex/Segment.Index) is not applied here; the Guard API this
// feeds is itself key-based (no IndexSet), so a bracket segment mid-path is
// treated as an ordinary map key rather than a list index.
func setAt(root map[string]any, segs []types.Segment, value any) error {
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		if last {
			cur[seg.Key] = value
			return nil
		}
		next, ok := cur[seg.Key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg.Key] = next
		}
		cur = next
	}
	return nil
}

func deleteAt(root map[string]any, segs []types.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	return setAt(root, segs, types.Tombstone)
}
