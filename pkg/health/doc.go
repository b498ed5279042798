/*
Package health reports whether the engine is fit to keep accepting
executions.

Unlike the teacher's container-probing package (HTTP/TCP/exec checks against
an external process), Theus has no child process to probe: the checkers here
inspect the engine's own internal state — whether the Store's CAS path is
still taking commits and how long it's been since the last one, and whether
the Audit System has latched a Stop-level failure. A CASChecker and an
AuditChecker each implement the shared Checker interface; Handler aggregates
them behind a single JSON endpoint a host mounts alongside pkg/metrics'.
*/
package health
