package ws

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter is a token bucket checked before an inbound frame is dispatched.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// newRateLimiter allows bursts of capacity frames, refilled in full every interval.
func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	every := rate.Every(interval / time.Duration(capacity))
	return &rateLimiter{
		limiter: rate.NewLimiter(every, capacity),
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.AllowN(rl.now(), 1)
}
