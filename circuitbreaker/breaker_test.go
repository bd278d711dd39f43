package circuitbreaker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibridge/common/errors"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	breaker := New("github", Config{
		MaxFailures:           3,
		Timeout:               60e9,
		MaxConcurrentRequests: 1,
	}, nil)

	ctx := context.Background()
	transportErr := errors.TransportError("dial failed", nil)

	for i := 0; i < 3; i++ {
		err := breaker.Execute(ctx, func() error { return transportErr })
		require.Error(t, err)
	}

	assert.True(t, breaker.IsOpen(), "breaker should open after 3 consecutive failures")

	// Calls while open are rejected without running the function.
	ran := false
	err := breaker.Execute(ctx, func() error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))
	assert.False(t, ran)
}

func TestBreaker_HTTPStatusErrorsDoNotTrip(t *testing.T) {
	breaker := New("github", HTTPConfig, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = breaker.Execute(ctx, func() error {
			return errors.HTTPStatusError(404, "not found")
		})
	}

	assert.Equal(t, StateClosed, breaker.State(),
		"4xx responses are provider-healthy outcomes and should not open the circuit")
}

func TestBreaker_InvalidConfigFallsBackToDefaults(t *testing.T) {
	breaker := New("github", Config{}, nil)

	err := breaker.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}
