// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"
)

// BoundedCounter counts admitted units of work against a caller-supplied
// bound. hooks.Limit uses one per task kind: a start hook admits a task with
// TryIncrement and the task's completion or failure hook releases it with
// Decrement. Unlike [DrainCounter] it offers no drain signal.
//
// The count never exceeds the bound passed to TryIncrement, even transiently.
type BoundedCounter struct {
	n atomic.Int64
}

// TryIncrement adds one to the count if the result would not exceed limit and
// reports whether it did.
func (c *BoundedCounter) TryIncrement(limit int) bool {
	for {
		n := c.n.Load()
		if n >= int64(limit) {
			return false
		}
		if c.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Decrement releases one unit and reports whether the count reached zero.
func (c *BoundedCounter) Decrement() bool {
	n := c.n.Add(-1)
	if n < 0 {
		panic("no admitted work to release")
	}
	return n == 0
}

func (c *BoundedCounter) Load() int64 {
	return c.n.Load()
}
