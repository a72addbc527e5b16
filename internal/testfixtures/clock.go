package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Services take a now func, so tests
// hand them clock.Now (or NowFunc) and move time explicitly.
type Clock struct {
	mu      sync.RWMutex
	instant time.Time
}

// NewClock returns a clock frozen at start. A zero start falls back to
// ReferenceTime.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{instant: start}
}

// Now reports the frozen instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instant
}

// NowFunc adapts the clock for injection; a nil clock degrades to time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.instant = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.instant = c.instant.Add(d)
	moved := c.instant
	c.mu.Unlock()
	return moved
}
