package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitTurnSpacesSequentialCalls(t *testing.T) {
	t.Parallel()

	l := New(Config{MinInterval: time.Second})
	ctx := context.Background()

	const calls = 3
	start := time.Now()
	for i := 0; i < calls; i++ {
		require.NoError(t, l.AwaitTurn(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), (calls-1)*time.Second)
}

func TestAwaitTurnSerializesConcurrentCallers(t *testing.T) {
	t.Parallel()

	interval := 50 * time.Millisecond
	l := New(Config{MinInterval: interval})

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.AwaitTurn(context.Background()))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, 4)
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	require.GreaterOrEqual(t, last.Sub(first), 3*interval-20*time.Millisecond)
}

func TestAwaitTurnAddsJitter(t *testing.T) {
	t.Parallel()

	l := New(Config{JitterMin: 20 * time.Millisecond, JitterMax: 30 * time.Millisecond})
	start := time.Now()
	require.NoError(t, l.AwaitTurn(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAwaitTurnHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{MinInterval: time.Hour})
	require.NoError(t, l.AwaitTurn(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.AwaitTurn(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, time.Second, cfg.MinInterval)
	require.Equal(t, 800*time.Millisecond, cfg.JitterMin)
	require.Equal(t, 1500*time.Millisecond, cfg.JitterMax)
}
