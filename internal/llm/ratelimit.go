package llm

import (
	"context"
	"sync"
	"time"
)

// GeminiMinInterval is the minimum spacing between Gemini CLI calls; the free
// tier allows two requests per minute.
const GeminiMinInterval = 30 * time.Second

// RateLimiter spaces calls at least interval apart. It is safe for
// concurrent use; callers queue in lock order.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, now: time.Now}
}

// geminiLimiter is shared by every Gemini executor in the process.
var geminiLimiter = NewRateLimiter(GeminiMinInterval)

// Wait blocks until the next slot is free or ctx is done. It returns the
// time spent waiting.
func (r *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var waited time.Duration
	if !r.last.IsZero() {
		if remaining := r.interval - r.now().Sub(r.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return 0, ctx.Err()
			case <-timer.C:
			}
			waited = remaining
		}
	}
	r.last = r.now()
	return waited, nil
}
