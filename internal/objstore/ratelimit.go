package objstore

import (
	"sync"
	"time"
)

const limiterWindow = 10

// Limiter is a client-side soft QPS guard. It watches a sliding window of
// recent call times and sleeps briefly when the observed rate climbs above
// the ceiling, so one session's burst cannot trip the store's global limit
// and fail other sessions.
type Limiter struct {
	mu      sync.Mutex
	maxQPS  float64
	calls   []time.Time
	now     func() time.Time
	sleepFn func(time.Duration)
}

// NewLimiter creates a limiter with the given QPS ceiling. A non-positive
// ceiling defaults to 4.0.
func NewLimiter(maxQPS float64) *Limiter {
	if maxQPS <= 0 {
		maxQPS = 4.0
	}
	return &Limiter{
		maxQPS:  maxQPS,
		calls:   make([]time.Time, 0, limiterWindow),
		now:     time.Now,
		sleepFn: time.Sleep,
	}
}

// Wait records one call and sleeps a bounded, rate-proportional delay if the
// instantaneous QPS over the window exceeds the ceiling.
func (l *Limiter) Wait() {
	l.mu.Lock()
	now := l.now()
	if len(l.calls) == limiterWindow {
		copy(l.calls, l.calls[1:])
		l.calls = l.calls[:limiterWindow-1]
	}
	l.calls = append(l.calls, now)

	var delay time.Duration
	if len(l.calls) >= 2 {
		span := l.calls[len(l.calls)-1].Sub(l.calls[0]).Seconds()
		if span > 0 {
			qps := float64(len(l.calls)-1) / span
			if qps > l.maxQPS {
				delay = time.Duration((qps/l.maxQPS - 1.0) * 0.12 * float64(time.Second))
				if delay > 250*time.Millisecond {
					delay = 250 * time.Millisecond
				}
			}
		}
	}
	l.mu.Unlock()

	if delay > 0 {
		l.sleepFn(delay)
	}
}
