// Package theuserr defines the error taxonomy exposed at Theus's host
// boundary (spec.md §7): sentinel errors that wrap with fmt.Errorf("%w", ...)
// and are tested with errors.Is/errors.As, the same idiom the teacher uses
// throughout pkg/storage and pkg/manager ("failed to ...: %w").
package theuserr

import "errors"

// Sentinel errors. Wrap these with fmt.Errorf("context: %w", ErrXxx) at the
// point of failure so errors.Is still matches after wrapping.
var (
	// ErrContractViolation: a path was written/read outside the process's
	// declared input/output patterns. Fatal, never retried.
	ErrContractViolation = errors.New("contract violation")

	// ErrCASMismatch: Smart CAS found the patch's top-level keys overlap
	// with what changed since the transaction's base version.
	ErrCASMismatch = errors.New("CAS version mismatch")

	// ErrSystemBusy: a priority ticket is held by another requester.
	ErrSystemBusy = errors.New("system busy")

	// ErrStrictCASMismatch: strict CAS requires exact version equality.
	ErrStrictCASMismatch = errors.New("strict CAS mismatch")

	// ErrSchemaViolation: a rule or schema check on inputs/outputs failed.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrAuditBlock: this execution is blocked; the engine fails it without
	// retrying (fail-fast, see DESIGN.md).
	ErrAuditBlock = errors.New("audit block")

	// ErrAuditAbort: the pipeline-level stop condition was reached.
	ErrAuditAbort = errors.New("audit abort")

	// ErrAuditStop: immediate halt, raised on first failure for Stop-level
	// rules.
	ErrAuditStop = errors.New("audit stop")

	// ErrAuditWarning: a non-fatal audit notice.
	ErrAuditWarning = errors.New("audit warning")

	// ErrTransactionIsolation: a value refused to be cloned into the shadow
	// cache. The transaction fails rather than share the original.
	ErrTransactionIsolation = errors.New("transaction isolation failure")

	// ErrZoneDenied: an operation violated a zone's capability ceiling
	// (e.g. writing CONSTANT, reading PRIVATE without admin).
	ErrZoneDenied = errors.New("zone access denied")

	// ErrGuardReflection: an attempt to reach the guard's internal state
	// directly (the Go analog of exposing __dict__).
	ErrGuardReflection = errors.New("guard internals are not accessible")
)
