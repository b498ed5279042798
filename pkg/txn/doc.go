// Package txn implements the scoped transaction: it opens against a base
// version, accumulates a delta log and shadow cache as guards read and
// write through it, and closes either by committing through the store's
// compare-and-swap or by dropping every shadow and outbox message on
// failure. A transaction is not safe for concurrent use across goroutines —
// it belongs to exactly one execution by design.
package txn
