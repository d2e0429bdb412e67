// Package retry decides whether a failed upstream attempt is retried and how
// long to back off before the next one.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// Config tunes the retry policy.
type Config struct {
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Policy implements bounded retries with uniformly jittered backoff.
type Policy struct {
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// New builds a policy; zero values fall back to 2 retries and a 1-2s backoff.
func New(cfg Config) *Policy {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	minBackoff, maxBackoff := cfg.MinBackoff, cfg.MaxBackoff
	if minBackoff <= 0 && maxBackoff <= 0 {
		minBackoff, maxBackoff = time.Second, 2*time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Policy{
		maxAttempts: retries + 1,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Default returns the production policy: 3 attempts, 1-2s backoff.
func Default() *Policy {
	return New(Config{MaxRetries: 2})
}

// MaxAttempts is the total number of attempts, first try included.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Backoff returns a uniformly distributed delay in [min, max].
func (p *Policy) Backoff() time.Duration {
	spread := p.maxBackoff - p.minBackoff
	if spread <= 0 {
		return p.minBackoff
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)+1))
	if err != nil {
		return p.minBackoff + spread/2
	}
	return p.minBackoff + time.Duration(n.Int64())
}
