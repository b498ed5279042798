// Package outbox relays messages queued by a committed transaction to a
// registered worker function. Messages become visible only after a
// successful commit; a failed or rolled-back transaction's queue is
// discarded by the caller before it ever reaches this package.
package outbox
