// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package hooks

import (
	"context"
	"sync/atomic"

	"github.com/petenewcomb/sched-go"
)

// Counter counts lifecycle events. The zero value is ready to use.
type Counter struct {
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

var (
	_ sched.CompletionHook = (*Counter)(nil)
	_ sched.FailureHook    = (*Counter)(nil)
)

func (c *Counter) OnTaskStart(context.Context, *sched.TaskType) error {
	c.started.Add(1)
	return nil
}

func (c *Counter) OnTaskComplete(context.Context, *sched.TaskType) error {
	c.completed.Add(1)
	return nil
}

func (c *Counter) OnTaskFailed(context.Context, *sched.TaskType, error) error {
	c.failed.Add(1)
	return nil
}

// Started returns the number of tasks this hook has seen start.
func (c *Counter) Started() int64 {
	return c.started.Load()
}

func (c *Counter) Completed() int64 {
	return c.completed.Load()
}

func (c *Counter) Failed() int64 {
	return c.failed.Load()
}

// Running returns the number of tasks that have started but not yet finished,
// as far as this hook can tell.
func (c *Counter) Running() int64 {
	return c.started.Load() - c.completed.Load() - c.failed.Load()
}
