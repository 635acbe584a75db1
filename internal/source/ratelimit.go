package source

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"
)

const (
	// defaultRequestsPerSecond keeps a full docs listing well under the
	// authenticated limit of 5000 requests per hour.
	defaultRequestsPerSecond = 10.0

	// minRemaining is the quota kept in reserve before waiting for reset.
	minRemaining = 50
)

// rateLimiter combines proactive token-bucket throttling with the quota
// GitHub reports in its X-RateLimit-* headers.
type rateLimiter struct {
	bucket *rate.Limiter

	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

func newRateLimiter(rps float64) *rateLimiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(rps), burst),
		remaining: -1,
	}
}

// Wait blocks until a request may be issued or ctx is done.
func (r *rateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining, resetAt := r.remaining, r.resetAt
	r.mu.Unlock()

	if remaining >= 0 && remaining < minRemaining && time.Now().Before(resetAt) {
		timer := time.NewTimer(time.Until(resetAt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Update records the quota reported by a response.
func (r *rateLimiter) Update(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = resp.Rate.Remaining
	r.resetAt = resp.Rate.Reset.Time
}
