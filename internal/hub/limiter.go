package hub

import (
	"sync"
	"time"
)

type rateConfig struct {
	burst  int
	refill time.Duration
}

// limiter is a token bucket throttling inbound messages per connection.
// Slider drags produce bursts of small messages, so the bucket is sized for
// sustained UI rates rather than chat rates.
type limiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

func newLimiter(burst int, refill time.Duration) *limiter {
	if burst <= 0 {
		burst = 1
	}
	if refill <= 0 {
		refill = time.Second
	}
	return &limiter{
		tokens:   float64(burst),
		capacity: float64(burst),
		rate:     float64(burst) / refill.Seconds(),
		last:     time.Now(),
	}
}

func (l *limiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
