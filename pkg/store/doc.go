// Package store implements the versioned state store: the canonical data,
// heavy-handle and signal trees plus a monotonic version counter, guarded by
// a short exclusive lock on commit and served to readers as wait-free
// immutable snapshots.
package store
