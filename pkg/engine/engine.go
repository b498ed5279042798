// Package engine orchestrates registered processes against a single Store:
// opening transactions, building guards, validating inputs and outputs,
// committing through CompareAndSwap, and draining the outbox on success
// (spec.md §4.9). It is the one façade a host imports.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theus-run/theus/pkg/audit"
	"github.com/theus-run/theus/pkg/config"
	"github.com/theus-run/theus/pkg/controller"
	"github.com/theus-run/theus/pkg/delta"
	"github.com/theus-run/theus/pkg/guard"
	"github.com/theus-run/theus/pkg/health"
	"github.com/theus-run/theus/pkg/metrics"
	"github.com/theus-run/theus/pkg/outbox"
	"github.com/theus-run/theus/pkg/store"
	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/txn"
	"github.com/theus-run/theus/pkg/types"
	"github.com/theus-run/theus/pkg/validator"
	"github.com/theus-run/theus/pkg/zones"
)

// ProcessFunc is a registered process body. It receives a capability-scoped
// Guard and its keyword arguments, and returns either a plain result, a
// types.StateUpdate / map[string]any declarative patch, or an error.
type ProcessFunc func(g *guard.Guard, kwargs map[string]any) (any, error)

// Config is the engine's construction-time configuration. It is also what
// config.Load produces, so a loaded recipe file passes straight through.
type Config = config.Config

type process struct {
	fn       ProcessFunc
	contract types.Contract
}

// ExecOption customizes one Execute call.
type ExecOption func(*execOptions)

type execOptions struct {
	maxRetries int
	requester  string
}

// WithMaxRetries bounds how many CAS-conflict retries Execute attempts
// before giving up (spec.md §4.9 step 11). Zero means the engine's
// MaxLoops config value applies.
func WithMaxRetries(n int) ExecOption {
	return func(o *execOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithRequester tags this execution's CompareAndSwap / priority-ticket
// identity (spec.md §4.8). Defaults to the process name.
func WithRequester(name string) ExecOption {
	return func(o *execOptions) { o.requester = name }
}

// Engine is the runtime built from one Config: a Store, its zone registry,
// the shared Audit System and Validator, the Retry/Priority-Ticket
// Controller, and the outbox Relay.
type Engine struct {
	cfg Config

	store      *store.Store
	registry   *zones.Registry
	auditS     *audit.System
	validatorS *validator.Validator
	controller *controller.Controller
	relay      *outbox.Relay

	processes map[string]process
}

// New constructs an Engine from cfg. ctx is accepted for parity with hosts
// that tie initialization to a base context (e.g. a future raft-backed
// pkg/cluster coordinator); the current implementation does not retain it.
func New(ctx any, cfg Config) (*Engine, error) {
	_ = ctx

	mode := store.SmartCAS
	if cfg.StrictCAS {
		mode = store.StrictCAS
	}
	s := store.New(store.WithMode(mode))

	registry := zones.NewRegistry()
	for _, ns := range cfg.Namespaces {
		registry.RegisterNamespace(ns.Name, ns.Policy)
	}

	recipe := cfg.AuditRecipe
	if recipe == (audit.Recipe{}) {
		recipe = audit.DefaultRecipe()
		cfg.AuditRecipe = recipe
	}
	auditS := audit.New(256)

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
		cfg.PoolSize = poolSize
	}

	return &Engine{
		cfg:        cfg,
		store:      s,
		registry:   registry,
		auditS:     auditS,
		validatorS: validator.New(cfg.Processes, auditS, recipe),
		controller: controller.New(),
		relay:      outbox.NewRelay(poolSize * 64),
		processes:  make(map[string]process),
	}, nil
}

// Register adds fn under name with the given contract. A PURE process may
// not declare a signal.* or meta.* input (spec.md §4.9 step 1).
func (e *Engine) Register(name string, fn ProcessFunc, contract types.Contract) error {
	if fn == nil {
		return fmt.Errorf("engine: register %q: nil process func", name)
	}
	if contract.Semantic == types.PURE {
		for _, in := range contract.Inputs {
			top := types.TopLevelKey(in)
			if top == "signal" || top == "meta" {
				return fmt.Errorf("engine: register %q: PURE process cannot declare input %q: %w",
					name, in, theuserr.ErrContractViolation)
			}
		}
	}
	e.processes[name] = process{fn: fn, contract: contract}
	return nil
}

// Execute runs the named process to completion, retrying CAS conflicts and
// SystemBusy per the Retry/Priority-Ticket Controller, and returns its
// result (spec.md §4.9's state machine: Opening → Running → Validating →
// Committing → DrainOutbox → Success, with Rollback/RetryDecision/Failure
// branches).
func (e *Engine) Execute(ctx context.Context, name string, kwargs map[string]any, opts ...ExecOption) (any, error) {
	proc, ok := e.processes[name]
	if !ok {
		return nil, fmt.Errorf("engine: process %q is not registered", name)
	}

	o := execOptions{maxRetries: e.cfg.MaxLoops, requester: name}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	defer func() {
		metrics.ExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	tx := txn.New(e.store)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, err
		}

		if err := e.validatorS.ValidateInputs(name, kwargs); err != nil && !errors.Is(err, theuserr.ErrAuditWarning) {
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, err
		}

		g := guard.New(tx, e.registry, proc.contract, e.cfg.StrictGuards, name)

		result, ferr := proc.fn(g, kwargs)
		if ferr != nil {
			tx.Rollback()
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			if aerr := e.auditS.LogFail(name, ferr.Error(), e.cfg.AuditRecipe); aerr != nil {
				return nil, fmt.Errorf("%w: %w", aerr, ferr)
			}
			return nil, ferr
		}

		if declarative := asDeclarative(result); declarative != nil {
			for path, val := range declarative {
				if err := g.Set(path, val); err != nil {
					tx.Rollback()
					metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
					return nil, err
				}
			}
		}

		pending, err := delta.BuildPending(tx.DeltaLog())
		if err != nil {
			tx.Rollback()
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, err
		}

		if err := e.validatorS.ValidateOutputs(name, pending); err != nil && !errors.Is(err, theuserr.ErrAuditWarning) {
			tx.Rollback()
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, err
		}

		for key := range pending {
			if !proc.contract.AllowsOutput(key) {
				tx.Rollback()
				metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
				return nil, fmt.Errorf("engine: %q: output %q not covered by contract: %w",
					name, key, theuserr.ErrContractViolation)
			}
		}

		commitTimer := metrics.NewTimer()
		_, messages, cerr := tx.Commit(o.requester)
		if cerr == nil {
			commitTimer.ObserveDuration(metrics.CommitDuration)
			metrics.CommitsTotal.Inc()
			metrics.ExecutionsTotal.WithLabelValues(name, "success").Inc()
			e.controller.ReportSuccess(o.requester)
			e.store.HoldTicket(e.controller.TicketHolder())
			e.auditS.LogSuccess(name, e.cfg.AuditRecipe)
			e.relay.Enqueue(messages)
			if result == nil {
				return pending, nil
			}
			return result, nil
		}

		if !errors.Is(cerr, theuserr.ErrCASMismatch) && !errors.Is(cerr, theuserr.ErrSystemBusy) && !errors.Is(cerr, theuserr.ErrStrictCASMismatch) {
			tx.Rollback()
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, cerr
		}

		metrics.CASConflictsTotal.WithLabelValues(o.requester).Inc()
		metrics.RetriesTotal.WithLabelValues(name).Inc()

		if e.controller.TicketHolder() == o.requester {
			e.controller.ReportTicketFailure(o.requester)
		}

		decision := e.controller.ReportConflict(o.requester)
		if decision.GrantTicket {
			metrics.PriorityTicketsGranted.Inc()
		}
		e.store.HoldTicket(e.controller.TicketHolder())
		if !decision.ShouldRetry || (o.maxRetries > 0 && attempt >= o.maxRetries) {
			tx.Rollback()
			metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			return nil, cerr
		}

		if decision.Wait > 0 {
			timer := time.NewTimer(decision.Wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				tx.Rollback()
				metrics.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
				return nil, ctx.Err()
			}
		}

		tx.Reopen(e.store)
	}
}

// asDeclarative extracts the declarative-return map a process handed back,
// or nil if result carries none.
func asDeclarative(result any) map[string]any {
	switch v := result.(type) {
	case types.StateUpdate:
		return map[string]any(v)
	case map[string]any:
		return v
	default:
		return nil
	}
}

// CompareAndSwap exposes the Store's CAS directly, for hosts that want to
// submit a patch without going through a registered process.
func (e *Engine) CompareAndSwap(expected int64, data, heavy, signal map[string]any, requester string) (int64, error) {
	v, err := e.store.CompareAndSwap(int(expected), store.Patch{Data: data, Heavy: heavy, Signal: signal, Requester: requester})
	return int64(v), err
}

// Transaction opens a manually-driven transaction scope against the
// engine's Store, outside the registered-process retry loop.
func (e *Engine) Transaction() *txn.Scope {
	return &txn.Scope{Transaction: txn.New(e.store)}
}

// State returns an immutable snapshot of the engine's current store.
func (e *Engine) State() store.Snapshot {
	return *e.store.Current()
}

// AttachWorker registers the function outbox messages are delivered to.
func (e *Engine) AttachWorker(fn func(outbox.Message)) {
	e.relay.AttachWorker(fn)
}

// ProcessOutbox synchronously drains every queued outbox message to the
// attached worker and returns how many were delivered.
func (e *Engine) ProcessOutbox() int {
	return e.relay.Drain()
}

// HealthCheckers returns the CAS-liveness and audit-Stop-latch checkers for
// this engine's Store and Audit System, ready to pass to health.Handler.
func (e *Engine) HealthCheckers() []health.Checker {
	return []health.Checker{
		health.NewCASChecker(e.store),
		health.NewAuditChecker(e.auditS),
	}
}
