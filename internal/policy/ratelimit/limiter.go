// Package ratelimit spaces outbound requests so that all callers together
// stay under a fixed request rate.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// MinInterval is the minimum spacing between two outbound requests.
	MinInterval time.Duration
	// JitterMin and JitterMax bound the extra random delay added to every turn.
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultConfig returns 1s spacing plus 0.8-1.5s jitter.
func DefaultConfig() Config {
	return Config{
		MinInterval: time.Second,
		JitterMin:   800 * time.Millisecond,
		JitterMax:   1500 * time.Millisecond,
	}
}

// Limiter serializes the "read last, sleep, update last" sequence. The last
// request timestamp is never exposed.
type Limiter struct {
	mu     sync.Mutex
	last   time.Time
	cfg    Config
	now    func() time.Time
	jitter func() time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	l := &Limiter{cfg: cfg, now: time.Now}
	l.jitter = l.uniformJitter
	return l
}

// AwaitTurn blocks until the caller may issue one outbound request. Callers
// are served one at a time, so the effective rate across goroutines never
// exceeds one request per MinInterval.
func (l *Limiter) AwaitTurn(ctx context.Context) error {
	start := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := l.jitter()
	if !l.last.IsZero() {
		if remaining := l.cfg.MinInterval - l.now().Sub(l.last); remaining > 0 {
			wait += remaining
		}
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	l.last = l.now()
	if elapsed := l.last.Sub(start); elapsed > time.Millisecond {
		metrics.ObserveRateLimitWait(elapsed)
	}
	return nil
}

func (l *Limiter) uniformJitter() time.Duration {
	spread := l.cfg.JitterMax - l.cfg.JitterMin
	if spread <= 0 {
		return l.cfg.JitterMin
	}
	return l.cfg.JitterMin + rand.N(spread+1)
}
