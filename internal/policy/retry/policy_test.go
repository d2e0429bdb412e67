package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyAllowsTwoRetries(t *testing.T) {
	t.Parallel()

	p := Default()
	boom := errors.New("connection reset")
	require.Equal(t, 3, p.MaxAttempts())
	require.True(t, p.ShouldRetry(boom, 1))
	require.True(t, p.ShouldRetry(boom, 2))
	require.False(t, p.ShouldRetry(boom, 3))
	require.False(t, p.ShouldRetry(nil, 1))
}

func TestShouldRetryStopsOnCancellation(t *testing.T) {
	t.Parallel()

	p := Default()
	err := fmt.Errorf("visit: %w", context.Canceled)
	require.False(t, p.ShouldRetry(err, 1))
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()

	p := Default()
	for i := 0; i < 50; i++ {
		d := p.Backoff()
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestNewNormalizesBounds(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: -1, MinBackoff: 50 * time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	require.Equal(t, 1, p.MaxAttempts())
	require.Equal(t, 50*time.Millisecond, p.Backoff())
}
