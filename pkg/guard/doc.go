// Package guard implements the context guard: the capability-filtered,
// path-tracking proxy a running process actually touches. It mediates every
// read and write against the zone registry and the process's contract
// before forwarding to the transaction, and it never exposes its own
// internals to the functions it wraps — there is no Go analog of reaching
// around a Python proxy's __dict__, but the same rule holds here: a Guard's
// fields are unexported and reachable only through its Get/Set/Append/...
// methods.
package guard
