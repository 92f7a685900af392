package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/testutil"
)

func newTestBreaker(t *testing.T) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	}, testutil.TestLogger(t))
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(t)
	assert.Equal(t, "closed", cb.State())

	for i := 0; i < 3; i++ {
		cb.MarkFailed()
	}
	assert.Equal(t, "open", cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(t)

	cb.MarkFailed()
	cb.MarkFailed()
	cb.MarkSuccess()
	cb.MarkFailed()
	cb.MarkFailed()

	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		cb.MarkFailed()
	}
	require.Equal(t, "open", cb.State())

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, cb.Allow())
	assert.Equal(t, "half-open", cb.State())
}

func TestCircuitBreakerClosesAfterProbeSuccesses(t *testing.T) {
	cb := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		cb.MarkFailed()
	}
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.MarkSuccess()
	cb.MarkSuccess()
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	cb := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		cb.MarkFailed()
	}
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, "half-open", cb.State())

	cb.MarkFailed()
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := newTestBreaker(t)

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New(errors.ErrorTypeConnection, "boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return boom })
	}

	err = cb.Execute(func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "open circuit must not execute fn")
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		cb.MarkFailed()
	}
	require.Equal(t, "open", cb.State())

	cb.Reset()
	assert.Equal(t, "closed", cb.State())
	assert.NoError(t, cb.Allow())
}
