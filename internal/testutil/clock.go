// Package testutil holds helpers shared by tests and the scenario harness.
package testutil

import "sync"

// DeterministicClock is a thread-safe logical clock for tests.
//
// Now returns 1, 2, 3, ... so every change stamped through it has a
// distinct, reproducible creation time. Set jumps the clock to simulate
// a skewed or delayed author.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now int64
}

// NewDeterministicClock creates a clock starting at 0.
// The first call to Now() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances the clock by one and returns the new value.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the last value handed out without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set makes the next call to Now() return t+1.
func (c *DeterministicClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.Set(0)
}
