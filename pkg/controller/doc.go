// Package controller implements the retry / priority-ticket controller: a
// per-requester backoff policy for CAS conflicts, escalating to a temporary
// exclusive ticket for requesters that keep losing, with a wall-clock
// timeout so a dead ticket holder never wedges everyone else out.
package controller
