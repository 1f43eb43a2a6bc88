// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync"
)

// DrainCounter is a thread-safe count of outstanding tasks paired with a
// signal that is closed each time the count returns to zero. Every transition
// from zero to one opens a fresh signal, so a signal observed during one epoch
// is never reused by the next.
//
// The zero value is ready to use.
type DrainCounter struct {
	mu      sync.Mutex
	n       int64
	drained chan struct{} // nil while n is zero
}

// Increment increments the counter and returns the incremented value.
func (c *DrainCounter) Increment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.n++
	if c.n == 1 {
		c.drained = make(chan struct{})
	}
	return c.n
}

// Decrement decrements the counter and returns true if its value has reached
// zero, in which case the current drain signal has been closed. Panics if the
// decremented counter is less than zero.
func (c *DrainCounter) Decrement() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.n == 0 {
		panic("no tasks in flight")
	}
	c.n--
	if c.n > 0 {
		return false
	}
	close(c.drained)
	c.drained = nil
	return true
}

// Drained returns a channel that will be closed when the counter next reaches
// zero, or nil if the counter is already zero.
func (c *DrainCounter) Drained() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

// Load returns the current value of the counter.
func (c *DrainCounter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
