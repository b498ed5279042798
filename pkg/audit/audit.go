package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theus-run/theus/pkg/metrics"
	"github.com/theus-run/theus/pkg/theuserr"
)

// Level is the severity a key's failures are judged at.
type Level uint8

const (
	// Count takes no action beyond incrementing the counter.
	Count Level = iota
	// Block fails this execution once the counter exceeds the max
	// threshold; engine.Execute does not retry it.
	Block
	// Abort stops the whole pipeline once the counter exceeds the max
	// threshold.
	Abort
	// Stop raises on the very first failure, regardless of threshold.
	Stop
)

// Recipe configures how a key's failures are judged. The zero value is
// Count with no reset on success; LogFail treats a ThresholdMax of 0 as 3.
// DefaultRecipe adds reset-on-success, matching the original AuditRecipe
// defaults.
type Recipe struct {
	Level          Level
	ThresholdMax   int
	ThresholdMin   int
	ResetOnSuccess bool
}

// DefaultRecipe mirrors AuditRecipe()'s defaults.
func DefaultRecipe() Recipe {
	return Recipe{Level: Count, ThresholdMax: 3, ResetOnSuccess: true}
}

// String renders the level for metric labels and log fields.
func (l Level) String() string {
	switch l {
	case Block:
		return "block"
	case Abort:
		return "abort"
	case Stop:
		return "stop"
	default:
		return "count"
	}
}

// Entry is one record in the ring buffer. ID distinguishes two entries
// logged in the same instant when an operator cross-references GetLogs
// output against an external record (e.g. a ticket filed off an
// AuditBlock/Abort error).
type Entry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Key       string
	Message   string
}

// keyState is the per-key counter and recipe override, guarded by its own
// mutex so unrelated keys never contend with each other.
type keyState struct {
	mu     sync.Mutex
	count  int
	recipe Recipe
}

// System is the shared, process-wide Audit System. Safe for concurrent use
// from many executions at once.
type System struct {
	mu    sync.Mutex
	keys  map[string]*keyState
	ring  []Entry
	head  int
	count int
	cap   int

	stopped bool // latched true by the first Stop-level failure

	nowFn func() time.Time
}

// New returns an Audit System with a ring buffer of the given capacity.
func New(ringCapacity int) *System {
	if ringCapacity <= 0 {
		ringCapacity = 256
	}
	return &System{
		keys:  make(map[string]*keyState),
		ring:  make([]Entry, ringCapacity),
		cap:   ringCapacity,
		nowFn: time.Now,
	}
}

func (s *System) stateFor(key string, recipe Recipe) *keyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.keys[key]
	if !ok {
		st = &keyState{recipe: recipe}
		s.keys[key] = st
	}
	return st
}

func (s *System) appendEntry(key, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.head] = Entry{ID: uuid.New(), Timestamp: s.nowFn(), Key: key, Message: message}
	s.head = (s.head + 1) % s.cap
	if s.count < s.cap {
		s.count++
	}
}

// LogSuccess clears key's counter if its recipe has ResetOnSuccess set.
func (s *System) LogSuccess(key string, recipe Recipe) {
	st := s.stateFor(key, recipe)
	st.mu.Lock()
	defer st.mu.Unlock()
	if recipe.ResetOnSuccess {
		st.count = 0
	}
}

// LogFail increments key's counter, appends a ring buffer entry, and
// returns an error if the recipe's level and threshold demand one
// (spec.md §4.6). A nil error means the failure was merely counted.
func (s *System) LogFail(key, message string, recipe Recipe) error {
	st := s.stateFor(key, recipe)
	st.mu.Lock()
	st.count++
	n := st.count
	st.mu.Unlock()

	s.appendEntry(key, message)
	metrics.AuditFailuresTotal.WithLabelValues(key, recipe.Level.String()).Inc()

	threshold := recipe.ThresholdMax
	if threshold <= 0 {
		threshold = 3
	}

	switch recipe.Level {
	case Stop:
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		return fmt.Errorf("%s: %s: %w", key, message, theuserr.ErrAuditStop)
	case Abort:
		if n > threshold {
			return fmt.Errorf("%s: %s: %w", key, message, theuserr.ErrAuditAbort)
		}
		if recipe.ThresholdMin > 0 && n >= recipe.ThresholdMin {
			return fmt.Errorf("%s: %s: %w", key, message, theuserr.ErrAuditWarning)
		}
		return nil
	case Block:
		if n > threshold {
			return fmt.Errorf("%s: %s: %w", key, message, theuserr.ErrAuditBlock)
		}
		if recipe.ThresholdMin > 0 && n >= recipe.ThresholdMin {
			return fmt.Errorf("%s: %s: %w", key, message, theuserr.ErrAuditWarning)
		}
		return nil
	default: // Count
		return nil
	}
}

// GetCount returns the current failure count for key.
func (s *System) GetCount(key string) int {
	s.mu.Lock()
	st, ok := s.keys[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.count
}

// GetLogs returns the ring buffer's contents in chronological order.
func (s *System) GetLogs() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, s.count)
	if s.count < s.cap {
		out = append(out, s.ring[:s.count]...)
		return out
	}
	out = append(out, s.ring[s.head:]...)
	out = append(out, s.ring[:s.head]...)
	return out
}

// RingBufferLen reports how many entries are currently stored.
func (s *System) RingBufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// StopLatched reports whether a Stop-level failure has ever fired. Once
// latched it stays true for the life of the System; there is no unilateral
// reset, matching Stop's "immediate halt" severity (spec.md §4.6).
func (s *System) StopLatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ResetStopLatch clears the Stop latch. Only an operator action (not any
// process execution) should call this.
func (s *System) ResetStopLatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}
