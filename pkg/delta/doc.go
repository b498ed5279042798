// Package delta implements the per-transaction delta log and shadow cache:
// the ordered record of every write a guard performs, and the copy-on-first-
// write cache that lets in-place mutation happen on a detached clone of
// whatever the store currently holds.
package delta
