package controller

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ticketThreshold is the consecutive-conflict count (spec.md §4.8) at which
// a requester is granted a priority ticket instead of another backoff wait.
const ticketThreshold = 5

// Decision is the controller's answer to a reported CAS conflict.
type Decision struct {
	ShouldRetry bool
	Wait        time.Duration
	GrantTicket bool
}

// Controller tracks, per requester name, a consecutive-conflict counter and
// backoff state, plus at most one held priority ticket process-wide.
type Controller struct {
	mu sync.Mutex

	conflicts map[string]int
	backoffs  map[string]*backoff.ExponentialBackOff

	cancelAfterN int
	ticketTTL    time.Duration

	ticketHolder   string
	ticketExpires  time.Time
	ticketFailures int
}

// Option configures a new Controller.
type Option func(*Controller)

// WithCancelAfter sets how many failures by the ticket holder revoke a held
// ticket: it is revoked outright on the nth such failure.
func WithCancelAfter(n int) Option {
	return func(c *Controller) { c.cancelAfterN = n }
}

// WithTicketTTL sets the wall-clock duration a ticket is force-released
// after, guarding against a dead ticket holder.
func WithTicketTTL(d time.Duration) Option {
	return func(c *Controller) { c.ticketTTL = d }
}

// New returns a Controller with the given options. Defaults: cancel after 3
// further failures, 30s ticket TTL.
func New(opts ...Option) *Controller {
	c := &Controller{
		conflicts:    make(map[string]int),
		backoffs:     make(map[string]*backoff.ExponentialBackOff),
		cancelAfterN: 3,
		ticketTTL:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Second
	b.RandomizationFactor = 1.0 // full jitter: next wait is uniform in [0, 2x current interval]
	b.MaxElapsedTime = 0        // the engine owns max_retries, not the backoff policy
	b.Reset()
	return b
}

// releaseExpiredTicket force-releases a held ticket past its TTL. Caller
// must hold c.mu.
func (c *Controller) releaseExpiredTicket() {
	if c.ticketHolder != "" && time.Now().After(c.ticketExpires) {
		c.ticketHolder = ""
		c.ticketFailures = 0
	}
}

// ReportConflict records a CAS conflict or SystemBusy for name and decides
// whether the engine should retry, how long to wait, and whether a priority
// ticket was just granted (spec.md §4.8).
func (c *Controller) ReportConflict(name string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseExpiredTicket()

	c.conflicts[name]++
	n := c.conflicts[name]

	if n >= ticketThreshold {
		if c.ticketHolder == "" || c.ticketHolder == name {
			c.ticketHolder = name
			c.ticketExpires = time.Now().Add(c.ticketTTL)
			c.ticketFailures = 0
			return Decision{ShouldRetry: true, GrantTicket: true}
		}
	}

	bo, ok := c.backoffs[name]
	if !ok {
		bo = newBackoff()
		c.backoffs[name] = bo
	}
	return Decision{ShouldRetry: true, Wait: bo.NextBackOff()}
}

// ReportTicketFailure records a further failure by the current ticket
// holder. On the cancel_ticket_after_n-th such failure, the ticket is revoked
// outright (spec.md §4.8).
func (c *Controller) ReportTicketFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticketHolder != name {
		return
	}
	c.ticketFailures++
	if c.ticketFailures >= c.cancelAfterN {
		c.ticketHolder = ""
		c.ticketFailures = 0
	}
}

// ReportSuccess clears name's conflict counter and backoff state, and
// releases the ticket if name held it.
func (c *Controller) ReportSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conflicts, name)
	delete(c.backoffs, name)
	if c.ticketHolder == name {
		c.ticketHolder = ""
		c.ticketFailures = 0
	}
}

// TicketHolder reports the current priority-ticket holder, or "" if none.
func (c *Controller) TicketHolder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseExpiredTicket()
	return c.ticketHolder
}
