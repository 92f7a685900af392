package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicySucceedsEventually(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := rp.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := rp.Execute(context.Background(), func() error {
		attempts++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestRetryPolicyNoRetry(t *testing.T) {
	rp := NoRetryPolicy()

	attempts := 0
	err := rp.Execute(context.Background(), func() error {
		attempts++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := rp.ExecuteWithCondition(context.Background(),
		func() error {
			attempts++
			return errors.New("bad request")
		},
		func(error) bool { return false })

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyRespectsContext(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rp.Execute(ctx, func() error { return errors.New("transient") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestCalculateDelayBackoff(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, rp.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, rp.GetDelay(1))
	assert.Equal(t, 400*time.Millisecond, rp.GetDelay(2))
	// Capped at MaxDelay
	assert.Equal(t, time.Second, rp.GetDelay(5))
}

func TestCalculateDelayJitterStaysInBounds(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}

	for i := 0; i < 100; i++ {
		d := rp.GetDelay(0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
