package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces out requests to the same host
type RateLimiter struct {
	mu           sync.Mutex
	lastRequest  map[string]time.Time
	defaultDelay time.Duration
	log          *logrus.Entry
}

// NewRateLimiter creates a RateLimiter; defaultDelay applies when a caller
// passes a non-positive delay.
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		lastRequest:  make(map[string]time.Time),
		defaultDelay: defaultDelay,
		log:          log,
	}
}

// ApplyDelay waits until at least minDelay (+/-10% jitter) has passed since
// the last recorded request to host. It returns early with ctx.Err() when the
// context is cancelled.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return nil
	}

	rl.mu.Lock()
	last, seen := rl.lastRequest[host]
	rl.mu.Unlock()
	if !seen {
		return nil
	}

	elapsed := time.Since(last)
	if elapsed >= minDelay {
		return nil
	}
	wait := minDelay - elapsed
	if span := int64(wait) / 5; span > 0 {
		wait += time.Duration(rand.Int63n(span)) - wait/10
	}
	if wait <= 0 {
		return nil
	}

	rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait, "required_delay": minDelay}).Debug("Rate limit sleep")
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequestTime records now as the last request time for host.
// Call it after each request attempt.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.mu.Lock()
	rl.lastRequest[host] = time.Now()
	rl.mu.Unlock()
}
