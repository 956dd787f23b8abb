// Package clock abstracts the time source so credential expiry can be tested
// deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// NewSystemClock returns a clock backed by time.Now
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixtureClock is a settable clock for tests
type FixtureClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixtureClock creates a clock frozen at now
func NewFixtureClock(now time.Time) *FixtureClock {
	return &FixtureClock{now: now}
}

// Now implements Clock
func (c *FixtureClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t
func (c *FixtureClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *FixtureClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
