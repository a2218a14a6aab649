package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 100*int(time.Millisecond), time.UTC)}
}

func TestLimiter_SevenCallsNeverWait(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(DefaultLimit, clock)

	for i := 0; i < 7; i++ {
		assert.Zero(t, l.Acquire(), "call %d", i+1)
	}
	assert.Empty(t, clock.sleeps)
}

func TestLimiter_EighthCallWaitsForNextSecond(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(DefaultLimit, clock)
	start := clock.now.Unix()

	for i := 0; i < 7; i++ {
		l.Acquire()
	}
	waited := l.Acquire()

	assert.Equal(t, time.Second, waited)
	assert.Equal(t, []time.Duration{time.Second}, clock.sleeps)
	assert.Greater(t, clock.now.Unix(), start)
}

func TestLimiter_WindowResetsOnSecondBoundary(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(2, clock)

	l.Acquire()
	l.Acquire()
	clock.now = clock.now.Add(time.Second)

	assert.Zero(t, l.Acquire())
	assert.Zero(t, l.Acquire())
	assert.Equal(t, time.Second, l.Acquire())
}

func TestLimiter_DefaultsForInvalidLimit(t *testing.T) {
	l := NewWithClock(0, nil)
	assert.Equal(t, DefaultLimit, l.Limit())
	assert.Equal(t, DefaultLimit, New().Limit())
}
