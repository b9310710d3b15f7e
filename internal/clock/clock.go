// Package clock provides the timestamp source for ledger history.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant in nanoseconds since the Unix epoch.
// Successive calls must never go backwards.
type Clock interface {
	Now() uint64
}

// Monotonic reads the wall clock and clamps it so that it never returns a
// value lower than the previous one.
type Monotonic struct {
	mu   sync.Mutex
	last uint64
	wall func() time.Time
}

// NewMonotonic creates a wall-clock backed Monotonic clock.
func NewMonotonic() *Monotonic {
	return &Monotonic{wall: time.Now}
}

// Now returns the current timestamp in nanoseconds.
func (c *Monotonic) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns := c.wall().UnixNano()
	var now uint64
	if ns > 0 {
		now = uint64(ns)
	}
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}

// Manual is a Clock driven by the caller. Used in tests and replays.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual creates a Manual clock starting at start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual timestamp.
func (c *Manual) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d nanoseconds.
func (c *Manual) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

var (
	_ Clock = (*Monotonic)(nil)
	_ Clock = (*Manual)(nil)
)
