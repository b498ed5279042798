package health

import (
	"context"
	"fmt"
	"time"

	"github.com/theus-run/theus/pkg/audit"
)

// AuditChecker reports unhealthy once the Audit System has latched a
// Stop-level failure — Stop means "immediate halt" and nothing short of an
// operator calling audit.System.ResetStopLatch should clear it.
type AuditChecker struct {
	Audit *audit.System
}

// NewAuditChecker wraps an Audit System.
func NewAuditChecker(a *audit.System) *AuditChecker {
	return &AuditChecker{Audit: a}
}

func (c *AuditChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if c.Audit.StopLatched() {
		return Result{
			Healthy:   false,
			Message:   "audit system is Stop-latched",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("%d ring buffer entries, no Stop latch", c.Audit.RingBufferLen()),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (c *AuditChecker) Type() CheckType {
	return CheckTypeAudit
}
