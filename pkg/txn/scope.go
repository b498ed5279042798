package txn

// Scope is the handle Engine.Transaction hands to a host that wants to drive
// a transaction manually, outside the registered-process retry loop in
// pkg/engine. It carries no behavior of its own beyond Transaction — the
// separate name keeps the manually-driven entry point distinct from the
// Transaction type the engine's own Execute loop retries internally.
type Scope struct {
	*Transaction
}
