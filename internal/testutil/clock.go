package testutil

import (
	"context"
	"sync"
	"time"
)

// ManualClock is a scheduler clock for tests. Time only moves when Sleep
// or Advance is called, or by Step on every Now call, so scan cycles run
// instantly and deterministically.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	step   time.Duration
	sleeps []time.Duration
}

// NewManualClock creates a clock starting at 0.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// NewSteppingClock creates a clock that advances by step on every Now
// call, simulating execution cost.
func NewSteppingClock(step time.Duration) *ManualClock {
	return &ManualClock{step: step}
}

// Now returns the current time, then advances it by the step.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now += c.step
	return now
}

// Sleep advances the clock by d and records the sleep. It returns
// ctx.Err() without advancing if ctx is done.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now += d
	}
	return nil
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Sleeps returns the recorded sleep durations.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Elapsed returns the current time without stepping.
func (c *ManualClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
