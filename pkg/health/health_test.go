package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theus-run/theus/pkg/audit"
	"github.com/theus-run/theus/pkg/store"
)

func TestCASCheckerHealthyBeforeAnyCommit(t *testing.T) {
	s := store.New()
	c := NewCASChecker(s)

	res := c.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, CheckTypeCAS, c.Type())
}

func TestCASCheckerUnhealthyWhenStale(t *testing.T) {
	s := store.New()
	_, err := s.CompareAndSwap(0, store.Patch{Data: map[string]any{"domain": map[string]any{"x": 1}}})
	require.NoError(t, err)

	c := NewCASChecker(s).WithStaleAfter(-1 * time.Second)
	res := c.Check(context.Background())
	assert.False(t, res.Healthy)
}

func TestAuditCheckerTripsOnStopLatch(t *testing.T) {
	a := audit.New(16)
	c := NewAuditChecker(a)

	res := c.Check(context.Background())
	assert.True(t, res.Healthy)

	err := a.LogFail("domain.balance", "went negative", audit.Recipe{Level: audit.Stop, ThresholdMax: 1})
	require.Error(t, err)

	res = c.Check(context.Background())
	assert.False(t, res.Healthy)

	a.ResetStopLatch()
	res = c.Check(context.Background())
	assert.True(t, res.Healthy)
}

func TestHandlerReturns503WhenAnyCheckerUnhealthy(t *testing.T) {
	a := audit.New(16)
	err := a.LogFail("domain.balance", "boom", audit.Recipe{Level: audit.Stop, ThresholdMax: 1})
	require.Error(t, err)

	h := Handler(NewCASChecker(store.New()), NewAuditChecker(a))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var rep report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.False(t, rep.Healthy)
	assert.False(t, rep.Checks["audit"].Healthy)
	assert.True(t, rep.Checks["cas"].Healthy)
}

func TestCheckAllShortCircuitsOnFirstFailure(t *testing.T) {
	a := audit.New(16)
	err := a.LogFail("domain.balance", "boom", audit.Recipe{Level: audit.Stop, ThresholdMax: 1})
	require.Error(t, err)

	ok := CheckAll(context.Background(), NewAuditChecker(a), NewCASChecker(store.New()))
	assert.False(t, ok)
}
