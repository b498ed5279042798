package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theus-run/theus/pkg/config"
	"github.com/theus-run/theus/pkg/delta"
	"github.com/theus-run/theus/pkg/guard"
	"github.com/theus-run/theus/pkg/outbox"
	"github.com/theus-run/theus/pkg/store"
	"github.com/theus-run/theus/pkg/theuserr"
	"github.com/theus-run/theus/pkg/types"
	"github.com/theus-run/theus/pkg/zones"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Namespaces = []config.NamespaceConfig{{Name: "domain", Policy: zones.AllowAll}}
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return e
}

func TestExecuteCommitsGuardWritesAndReturnsResult(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"domain.balance"},
		Outputs:  []string{"domain.balance"},
		Semantic: types.EFFECT,
	}
	require.NoError(t, e.Register("deposit", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		cur, _ := g.Get("domain.balance")
		n, _ := cur.(int)
		return nil, g.Set("domain.balance", n+kwargs["amount"].(int))
	}, contract))

	result, err := e.Execute(context.Background(), "deposit", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"domain": map[string]any{"balance": 10}}, result)

	snap := e.State()
	v, ok := snap.GetPath("data", "domain.balance")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestExecuteDeniesUnregisteredProcess(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestRegisterDeniesPureSignalInput(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"signal.cmd_retry"},
		Semantic: types.PURE,
	}
	err := e.Register("peek", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		return nil, nil
	}, contract)
	require.Error(t, err)
	assert.ErrorIs(t, err, theuserr.ErrContractViolation)
}

func TestExecuteRejectsOutputNotInContract(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"domain.*"},
		Outputs:  []string{"domain.balance"},
		Semantic: types.EFFECT,
	}
	require.NoError(t, e.Register("sneaky", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		return nil, g.Set("domain.other", 1)
	}, contract))

	_, err := e.Execute(context.Background(), "sneaky", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, theuserr.ErrContractViolation)
}

func TestExecuteRetriesCASConflictThenSucceeds(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"domain.counter"},
		Outputs:  []string{"domain.counter"},
		Semantic: types.EFFECT,
	}

	calls := 0
	require.NoError(t, e.Register("bump", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		calls++
		if calls == 1 {
			// Simulate a concurrent writer landing between this attempt's
			// snapshot and its commit.
			_, err := e.store.CompareAndSwap(0, store.Patch{Data: map[string]any{"domain": map[string]any{"counter": 5}}})
			require.NoError(t, err)
		}
		cur, _ := g.Get("domain.counter")
		n, _ := cur.(int)
		return nil, g.Set("domain.counter", n+1)
	}, contract))

	result, err := e.Execute(context.Background(), "bump", nil, WithMaxRetries(5))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, map[string]any{"domain": map[string]any{"counter": 6}}, result)
}

func TestExecuteDrainsOutboxOnlyAfterCommit(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"domain.x"},
		Outputs:  []string{"domain.x"},
		Semantic: types.EFFECT,
	}
	require.NoError(t, e.Register("notify", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		g.Enqueue(outbox.Message{Topic: "balance.changed"})
		return nil, g.Set("domain.x", 1)
	}, contract))

	var delivered []outbox.Message
	e.AttachWorker(func(m outbox.Message) { delivered = append(delivered, m) })

	_, err := e.Execute(context.Background(), "notify", nil)
	require.NoError(t, err)
	assert.Empty(t, delivered, "messages are queued, not yet delivered, until ProcessOutbox runs")

	n := e.ProcessOutbox()
	assert.Equal(t, 1, n)
	require.Len(t, delivered, 1)
	assert.Equal(t, "balance.changed", delivered[0].Topic)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{Semantic: types.EFFECT}
	require.NoError(t, e.Register("noop", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		return nil, nil
	}, contract))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, "noop", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareAndSwapFacadeUsesInt64Boundary(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.CompareAndSwap(0, map[string]any{"domain": map[string]any{"a": 1}}, nil, nil, "caller")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestTransactionScopeCommitsThroughTheSameStore(t *testing.T) {
	e := newTestEngine(t)
	scope := e.Transaction()
	scope.RecordWrite(delta.Entry{Path: "domain.manual", Op: delta.SET, New: 42})

	v, _, err := scope.Commit("ops")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	snap := e.State()
	got, ok := snap.GetPath("data", "domain.manual")
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestExecuteCommitsDeleteAndRemovesKey(t *testing.T) {
	e := newTestEngine(t)
	contract := types.Contract{
		Inputs:   []string{"domain.balance"},
		Outputs:  []string{"domain.balance"},
		Semantic: types.EFFECT,
	}
	require.NoError(t, e.Register("seed", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		return nil, g.Set("domain.balance", 10)
	}, contract))
	require.NoError(t, e.Register("clear", func(g *guard.Guard, kwargs map[string]any) (any, error) {
		return nil, g.Delete("domain.balance")
	}, contract))

	_, err := e.Execute(context.Background(), "seed", nil)
	require.NoError(t, err)
	snap := e.State()
	_, ok := snap.GetPath("data", "domain.balance")
	require.True(t, ok)

	_, err = e.Execute(context.Background(), "clear", nil)
	require.NoError(t, err)

	snap = e.State()
	_, ok = snap.GetPath("data", "domain.balance")
	assert.False(t, ok, "a committed Delete must actually remove the key from the store")
}

func TestHealthCheckersReflectStoreAndAudit(t *testing.T) {
	e := newTestEngine(t)
	checkers := e.HealthCheckers()
	require.Len(t, checkers, 2)
	for _, c := range checkers {
		res := c.Check(context.Background())
		assert.True(t, res.Healthy)
	}
}
