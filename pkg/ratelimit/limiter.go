// Package ratelimit throttles outbound calls to a fixed number per wall-clock
// second.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultLimit is the number of requests amoCRM accepts per second from one
// integration.
const DefaultLimit = 7

// Clock abstracts the wall clock so the limiter can be driven by tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Limiter allows at most limit acquisitions within the same wall-clock second.
// Callers that find the window full sleep one second and try again.
type Limiter struct {
	mu    sync.Mutex
	clock Clock
	limit int

	currentSecond int64
	count         int
}

// New creates a limiter with DefaultLimit backed by the real clock.
func New() *Limiter {
	return NewWithClock(DefaultLimit, realClock{})
}

// NewWithClock creates a limiter with a custom ceiling and clock.
func NewWithClock(limit int, clock Clock) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Limiter{clock: clock, limit: limit}
}

// Acquire blocks until the current window has capacity and reserves a slot.
// It returns how long the caller waited.
func (l *Limiter) Acquire() time.Duration {
	var waited time.Duration
	for {
		if l.tryReserve() {
			return waited
		}
		l.clock.Sleep(time.Second)
		waited += time.Second
	}
}

func (l *Limiter) tryReserve() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	sec := l.clock.Now().Unix()
	if sec != l.currentSecond {
		l.currentSecond = sec
		l.count = 0
	}
	if l.count < l.limit {
		l.count++
		return true
	}
	return false
}

// Limit returns the per-second ceiling.
func (l *Limiter) Limit() int {
	return l.limit
}
