package health

import (
	"context"
	"fmt"
	"time"

	"github.com/theus-run/theus/pkg/store"
)

// CASChecker reports whether the Store's compare-and-swap path is still
// live: a commit has happened within StaleAfter of now (once the store has
// committed at all). A held priority ticket is named in the message but does
// not affect the result, however long it has been held.
type CASChecker struct {
	Store      *store.Store
	StaleAfter time.Duration
}

// NewCASChecker returns a CASChecker with a 60s staleness window.
func NewCASChecker(s *store.Store) *CASChecker {
	return &CASChecker{Store: s, StaleAfter: 60 * time.Second}
}

func (c *CASChecker) Check(ctx context.Context) Result {
	start := time.Now()

	snap := c.Store.Current()
	last := c.Store.LastCommitAt()

	if last.IsZero() {
		return Result{
			Healthy:   true,
			Message:   fmt.Sprintf("version %d, no commits yet", snap.Version),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	age := start.Sub(last)
	if age > c.StaleAfter {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("last commit %s ago exceeds %s", age, c.StaleAfter),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	holder := c.Store.Ticket()
	msg := fmt.Sprintf("version %d, last commit %s ago", snap.Version, age)
	if holder != "" {
		msg = fmt.Sprintf("%s, ticket held by %q", msg, holder)
	}

	return Result{
		Healthy:   true,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (c *CASChecker) Type() CheckType {
	return CheckTypeCAS
}

// WithStaleAfter sets the staleness window.
func (c *CASChecker) WithStaleAfter(d time.Duration) *CASChecker {
	c.StaleAfter = d
	return c
}
