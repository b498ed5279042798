package txn

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/theus-run/theus/pkg/delta"
	"github.com/theus-run/theus/pkg/outbox"
	"github.com/theus-run/theus/pkg/store"
	"github.com/theus-run/theus/pkg/theuserr"
)

// Phase is the transaction lifecycle state (spec.md §4.3).
type Phase uint8

const (
	Open Phase = iota
	Active
	Closing
	Committed
	RolledBack
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Transaction is the scoped unit owning a delta log, a pending heavy-asset
// map and an outbox, committing through the store's CompareAndSwap. Not safe
// for concurrent use — a transaction belongs to exactly one execution.
type Transaction struct {
	ID           string
	BaseVersion  int
	phase        Phase
	log          delta.Log
	shadow       *delta.Cache
	pendingHeavy map[string]any
	messages     []outbox.Message
	adminStack   []bool

	store *store.Store
	snap  *store.Snapshot
}

// New opens a transaction against s, capturing the current version as its
// base (spec.md §4.3 phase 1, Open).
func New(s *store.Store) *Transaction {
	snap := s.Current()
	return &Transaction{
		ID:           uuid.NewString(),
		BaseVersion:  snap.Version,
		phase:        Active,
		shadow:       delta.NewCache(),
		pendingHeavy: make(map[string]any),
		store:        s,
		snap:         snap,
	}
}

// Phase reports the transaction's current lifecycle phase.
func (t *Transaction) Phase() Phase { return t.phase }

// Snapshot returns the immutable store view this transaction was opened
// against.
func (t *Transaction) Snapshot() *store.Snapshot { return t.snap }

// PushAdmin enters a nested AdminTransaction scope. Pair with PopAdmin; the
// stack makes elevation LIFO-scoped (spec.md §4.4).
func (t *Transaction) PushAdmin(admin bool) {
	t.adminStack = append(t.adminStack, admin)
}

// PopAdmin leaves the most recently pushed admin scope.
func (t *Transaction) PopAdmin() {
	if len(t.adminStack) > 0 {
		t.adminStack = t.adminStack[:len(t.adminStack)-1]
	}
}

// Admin reports whether the transaction is currently inside an admin-
// elevated scope.
func (t *Transaction) Admin() bool {
	for i := len(t.adminStack) - 1; i >= 0; i-- {
		if t.adminStack[i] {
			return true
		}
	}
	return false
}

// ShadowValue returns the shadow-cached value for path, cloning from load on
// first touch (spec.md §4.2). Returns ErrTransactionIsolation if the value
// refuses to clone.
func (t *Transaction) ShadowValue(path string, load func() (any, error)) (any, error) {
	v, err := t.shadow.Ensure(path, load)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	return v, nil
}

// RecordWrite appends e to the delta log. Must be called before the
// underlying shadow is mutated (spec.md §4.2).
func (t *Transaction) RecordWrite(e delta.Entry) {
	t.log.Record(e)
}

// PendingHeavy replaces the heavy handle recorded for key. Applied atomically
// on commit.
func (t *Transaction) PendingHeavy(key string, handle any) {
	t.pendingHeavy[key] = handle
}

// Enqueue adds msg to the transaction's outbox. Delivered only if Commit
// succeeds.
func (t *Transaction) Enqueue(msg outbox.Message) {
	t.messages = append(t.messages, msg)
}

// Commit replays the delta log into a patch, submits it via CompareAndSwap,
// and on success returns the outbox for draining. On a CAS conflict or
// SystemBusy, the transaction is left exactly as it was (outbox and pending
// heavy handles intact) and the caller decides: Reopen to retry against the
// new base version, or Rollback to give up (spec.md §4.9 step 11 — the
// transaction is hoisted above the whole retry loop so a conflicted attempt
// never loses messages queued by an earlier one). Any other failure (a
// malformed delta log) does roll back immediately.
func (t *Transaction) Commit(requester string) (newVersion int, messages []outbox.Message, err error) {
	t.phase = Closing
	pending, err := delta.BuildPending(t.log.Entries())
	if err != nil {
		t.Rollback()
		return 0, nil, err
	}

	patch := store.Patch{Data: pending, Heavy: t.pendingHeavy, Requester: requester}
	v, err := t.store.CompareAndSwap(t.BaseVersion, patch)
	if err != nil {
		if errors.Is(err, theuserr.ErrCASMismatch) || errors.Is(err, theuserr.ErrSystemBusy) || errors.Is(err, theuserr.ErrStrictCASMismatch) {
			return 0, nil, err
		}
		t.Rollback()
		return 0, nil, err
	}

	t.phase = Committed
	drained := t.messages
	t.messages = nil
	return v, drained, nil
}

// Reopen resets the transaction's base version, delta log and shadow cache
// ahead of a retry attempt, while preserving the outbox and pending heavy
// map accumulated so far. The engine hoists one Transaction above its whole
// retry loop so that outbox messages queued by an earlier, CAS-conflicted
// attempt are not lost (spec.md §4.9): only the read/write state that
// depended on the stale base version is discarded.
func (t *Transaction) Reopen(s *store.Store) {
	t.snap = s.Current()
	t.BaseVersion = t.snap.Version
	t.phase = Active
	t.log = delta.Log{}
	t.shadow = delta.NewCache()
}

// Rollback drops every shadow and outbox message without side effect
// (spec.md §4.3 phase 3, and the cancellation rule in the same section).
func (t *Transaction) Rollback() {
	t.phase = RolledBack
	t.shadow = delta.NewCache()
	t.pendingHeavy = make(map[string]any)
	t.messages = nil
	t.log = delta.Log{}
}

// DeltaLog exposes the recorded entries for the validator (spec.md §4.7).
func (t *Transaction) DeltaLog() []delta.Entry {
	return t.log.Entries()
}
