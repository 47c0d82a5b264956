package webhook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sandstone-edu/webhooks/pkg/webhook"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := webhook.NewCircuitBreaker(3, 1, time.Hour)

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	assert.Equal(t, webhook.CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, webhook.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := webhook.NewCircuitBreaker(2, 1, time.Hour)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	// Never hit two consecutive failures, circuit stays closed.
	assert.Equal(t, webhook.CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	cb := webhook.NewCircuitBreaker(1, 2, 30*time.Millisecond)

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, webhook.CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, webhook.CircuitClosed, cb.State())
}

func TestCircuitBreaker_ReopensFromHalfOpen(t *testing.T) {
	t.Parallel()

	cb := webhook.NewCircuitBreaker(1, 1, 30*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(50 * time.Millisecond)
	assert.True(t, cb.Allow())

	// Probe failed, circuit snaps back open immediately.
	cb.RecordFailure()
	assert.False(t, cb.Allow())
	assert.Equal(t, webhook.CircuitOpen, cb.State())
}
