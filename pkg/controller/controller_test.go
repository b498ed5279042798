package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBelowThresholdRetriesWithBackoffNoTicket(t *testing.T) {
	c := New()
	for i := 0; i < 4; i++ {
		d := c.ReportConflict("p1")
		assert.True(t, d.ShouldRetry)
		assert.False(t, d.GrantTicket)
		assert.LessOrEqual(t, d.Wait, 1*time.Second)
	}
}

func TestFifthConsecutiveConflictGrantsTicket(t *testing.T) {
	c := New()
	var last Decision
	for i := 0; i < 5; i++ {
		last = c.ReportConflict("p1")
	}
	assert.True(t, last.GrantTicket)
	assert.Equal(t, "p1", c.TicketHolder())
}

func TestOtherRequesterCannotStealHeldTicket(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.ReportConflict("p1")
	}
	require := assert.New(t)
	require.Equal("p1", c.TicketHolder())

	d := c.ReportConflict("p2")
	require.False(d.GrantTicket)
}

func TestReportSuccessClearsCounterAndTicket(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.ReportConflict("p1")
	}
	c.ReportSuccess("p1")
	assert.Equal(t, "", c.TicketHolder())

	d := c.ReportConflict("p1")
	assert.False(t, d.GrantTicket, "counter must have reset on success")
}

func TestTicketForceReleasedAfterTTL(t *testing.T) {
	c := New(WithTicketTTL(1 * time.Millisecond))
	for i := 0; i < 5; i++ {
		c.ReportConflict("p1")
	}
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, "", c.TicketHolder())
}

func TestTicketRevokedAfterCancelAfterNFailures(t *testing.T) {
	c := New(WithCancelAfter(2))
	for i := 0; i < 5; i++ {
		c.ReportConflict("p1")
	}
	c.ReportTicketFailure("p1")
	assert.Equal(t, "p1", c.TicketHolder())
	c.ReportTicketFailure("p1")
	assert.Equal(t, "", c.TicketHolder())
}
