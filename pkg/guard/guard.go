package guard

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/theus-run/theus/pkg/delta"
	"github.com/theus-run/theus/pkg/log"
	"github.com/theus-run/theus/pkg/metrics"
	"github.com/theus-run/theus/pkg/outbox"
	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/txn"
	"github.com/theus-run/theus/pkg/types"
	"github.com/theus-run/theus/pkg/zones"
)

// Guard is the capability-filtered proxy a running process touches. A root
// Guard is built by the engine over a transaction; nested guards are
// produced by Child and inherit the same contract, registry and
// transaction.
type Guard struct {
	tx          *txn.Transaction
	registry    *zones.Registry
	contract    types.Contract
	pathPrefix  string
	admin       bool
	strict      bool
	processName string
}

// New builds a root guard over tx scoped by contract and registry. strict is
// stored on the guard and passed to children, but no check reads it: zone and
// contract denials are always returned as errors, and a PRIVATE read without
// admin always returns the nil sentinel, whatever strict is. processName tags the
// guard's Log() child logger (original_source/theus/guards.py's
// ContextLoggerAdapter).
func New(tx *txn.Transaction, registry *zones.Registry, contract types.Contract, strict bool, processName string) *Guard {
	return &Guard{tx: tx, registry: registry, contract: contract, strict: strict, processName: processName}
}

// Child returns a nested guard rooted at g's prefix plus key, inheriting the
// same contract, transaction and registry (spec.md §4.4).
func (g *Guard) Child(key string) *Guard {
	prefix := key
	if g.pathPrefix != "" {
		prefix = g.pathPrefix + "." + key
	}
	return &Guard{
		tx:          g.tx,
		registry:    g.registry,
		contract:    g.contract,
		pathPrefix:  prefix,
		admin:       g.tx.Admin(),
		strict:      g.strict,
		processName: g.processName,
	}
}

// Log returns a logger pre-tagged with the executing process's name,
// mirroring original_source/theus/guards.py's ContextLoggerAdapter.
func (g *Guard) Log() zerolog.Logger {
	return log.WithProcess(g.processName)
}

// Path returns the full dotted path this guard is rooted at.
func (g *Guard) Path() string {
	return g.pathPrefix
}

// Enqueue queues msg on the underlying transaction's outbox. Delivered to
// the engine's attached worker only if the transaction goes on to commit
// (spec.md §4.9's outbox-atomicity contract).
func (g *Guard) Enqueue(msg outbox.Message) {
	g.tx.Enqueue(msg)
}

func (g *Guard) fullPath(key string) string {
	if g.pathPrefix == "" {
		return key
	}
	if key == "" {
		return g.pathPrefix
	}
	return g.pathPrefix + "." + key
}

// checkAccess runs access rules 2-4 (spec.md §4.4) against path for the
// capability op wants. bypass reports whether the namespace filter (rule 4)
// exempted this path from the zone and contract checks. hidden reports the
// PRIVATE-read-without-admin sentinel case: no error, but the caller must
// return a nil value.
func (g *Guard) checkAccess(path string, op types.Mask, forWrite bool) (bypass, hidden bool, err error) {
	top := types.TopLevelKey(path)
	if !g.registry.IsNamespace(top) {
		return true, false, nil
	}

	zone, mask := g.registry.Ceiling(path)
	admin := g.tx.Admin() || g.admin

	switch zone {
	case types.CONSTANT:
		if forWrite {
			metrics.GuardDenialsTotal.WithLabelValues(zone.String()).Inc()
			return false, false, fmt.Errorf("write to constant path %q: %w", path, theuserr.ErrZoneDenied)
		}
	case types.PRIVATE:
		if !admin {
			if forWrite {
				metrics.GuardDenialsTotal.WithLabelValues(zone.String()).Inc()
				return false, false, fmt.Errorf("write to private path %q without admin: %w", path, theuserr.ErrZoneDenied)
			}
			return false, true, nil
		}
	case types.LOG:
		if forWrite && op != types.Append {
			metrics.GuardDenialsTotal.WithLabelValues(zone.String()).Inc()
			return false, false, fmt.Errorf("destructive write to log path %q: %w", path, theuserr.ErrZoneDenied)
		}
	case types.META:
		if forWrite {
			metrics.GuardDenialsTotal.WithLabelValues(zone.String()).Inc()
			return false, false, fmt.Errorf("write to meta path %q: %w", path, theuserr.ErrZoneDenied)
		}
	default:
		if admin {
			break
		}
		if !mask.Allows(op) {
			metrics.GuardDenialsTotal.WithLabelValues(zone.String()).Inc()
			return false, false, fmt.Errorf("capability %s denied on %q: %w", op, path, theuserr.ErrZoneDenied)
		}
	}

	if !g.contractAllows(path, forWrite) {
		return false, false, fmt.Errorf("path %q not covered by contract: %w", path, theuserr.ErrContractViolation)
	}
	return false, false, nil
}

func (g *Guard) contractAllows(path string, forWrite bool) bool {
	if forWrite {
		return g.contract.AllowsOutput(path)
	}
	return g.contract.AllowsInput(path)
}

// Get reads key under this guard's path, returning the shadow-isolated value
// (cloned from the transaction's snapshot on the first touch of the path in
// this transaction, then reused). A PRIVATE read
// without admin returns (nil, nil) — the guard's sentinel "hidden" value,
// never an error.
func (g *Guard) Get(key string) (any, error) {
	path := g.fullPath(key)
	_, hidden, err := g.checkAccess(path, types.Read, false)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, nil
	}
	return g.tx.ShadowValue(path, func() (any, error) {
		v, _ := g.tx.Snapshot().GetPath("data", path)
		return v, nil
	})
}

// Set writes value at key, recording a SET DeltaEntry.
func (g *Guard) Set(key string, value any) error {
	path := g.fullPath(key)
	return g.write(path, delta.SET, value)
}

// Delete removes key, recording a DEL DeltaEntry.
func (g *Guard) Delete(key string) error {
	path := g.fullPath(key)
	if _, _, err := g.checkAccess(path, types.Delete, true); err != nil {
		return err
	}
	old, _ := g.Get(key)
	g.tx.RecordWrite(delta.Entry{Path: path, Op: delta.DEL, Old: old})
	return nil
}

// Append appends value to the sequence at key, the one destructive-container
// operation LOG zones permit.
func (g *Guard) Append(key string, value any) error {
	path := g.fullPath(key)
	if _, _, err := g.checkAccess(path, types.Append, true); err != nil {
		return err
	}
	old, err := g.Get(key)
	if err != nil {
		return err
	}
	seq, _ := old.([]any)
	newSeq := append(append([]any{}, seq...), value)
	g.tx.RecordWrite(delta.Entry{Path: path, Op: delta.APPEND, Old: old, New: newSeq})
	return nil
}

// Clear empties the container at key (denied on LOG and META by zone rule).
func (g *Guard) Clear(key string) error {
	return g.destructive(key, delta.CLEAR, nil)
}

// Pop removes and records the last-write value at key.
func (g *Guard) Pop(key string) error {
	return g.destructive(key, delta.POP, nil)
}

// PopItem is the mapping analog of Pop for key-based containers.
func (g *Guard) PopItem(key string) error {
	return g.destructive(key, delta.POPITEM, nil)
}

// Reverse reorders the sequence at key in place.
func (g *Guard) Reverse(key string) error {
	path := g.fullPath(key)
	old, err := g.Get(key)
	if err != nil {
		return err
	}
	seq, _ := old.([]any)
	reversed := make([]any, len(seq))
	for i, v := range seq {
		reversed[len(seq)-1-i] = v
	}
	return g.destructiveWithValue(path, delta.REVERSE, old, reversed)
}

// Sort reorders the sequence at key using less to compare elements.
func (g *Guard) Sort(key string, less func(a, b any) bool) error {
	path := g.fullPath(key)
	old, err := g.Get(key)
	if err != nil {
		return err
	}
	seq, _ := old.([]any)
	sorted := append([]any{}, seq...)
	insertionSort(sorted, less)
	return g.destructiveWithValue(path, delta.SORT, old, sorted)
}

func insertionSort(s []any, less func(a, b any) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (g *Guard) destructive(key string, op delta.Op, newVal any) error {
	path := g.fullPath(key)
	old, err := g.Get(key)
	if err != nil {
		return err
	}
	return g.destructiveWithValue(path, op, old, newVal)
}

func (g *Guard) destructiveWithValue(path string, op delta.Op, old, newVal any) error {
	if _, _, err := g.checkAccess(path, types.Delete, true); err != nil {
		return err
	}
	g.tx.RecordWrite(delta.Entry{Path: path, Op: op, Old: old, New: newVal})
	return nil
}

func (g *Guard) write(path string, op delta.Op, value any) error {
	if _, _, err := g.checkAccess(path, types.Update, true); err != nil {
		return err
	}
	old, _ := g.tx.ShadowValue(path, func() (any, error) {
		v, _ := g.tx.Snapshot().GetPath("data", path)
		return v, nil
	})
	g.tx.RecordWrite(delta.Entry{Path: path, Op: op, Old: old, New: value})
	return nil
}
