// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package hooks

import (
	"context"
	"fmt"

	"github.com/petenewcomb/sched-go"
	"github.com/petenewcomb/sched-go/internal/cerr"
	"github.com/petenewcomb/sched-go/internal/state"
)

// ErrLimitExceeded is returned by a [Limit] hook when admitting a task would
// exceed its bound.
const ErrLimitExceeded = cerr.Error("concurrency limit exceeded")

// Limit rejects the start of a task of a particular kind while max tasks of
// that kind are already running. Tasks of other kinds are not affected.
//
// A slot is released when the task completes or fails. The scheduler also
// reports a failure to Limit when a later start hook rejects a task that
// Limit admitted, so slots are never leaked.
type Limit struct {
	kind     string
	max      int
	running  state.BoundedCounter
}

var (
	_ sched.CompletionHook = (*Limit)(nil)
	_ sched.FailureHook    = (*Limit)(nil)
	_ sched.NamedHook      = (*Limit)(nil)
)

// NewLimit returns a Limit admitting at most max concurrent tasks of the given
// kind. An empty kind matches tasks submitted without [sched.WithKind]. Panics
// if max is not positive.
func NewLimit(kind string, max int) *Limit {
	if max <= 0 {
		panic("max must be positive")
	}
	return &Limit{kind: kind, max: max}
}

func (l *Limit) Name() string {
	if l.kind == "" {
		return "limit"
	}
	return "limit:" + l.kind
}

func (l *Limit) OnTaskStart(_ context.Context, task *sched.TaskType) error {
	if task.Kind() != l.kind {
		return nil
	}
	if !l.running.TryIncrement(l.max) {
		return fmt.Errorf("%w: %d %q tasks running", ErrLimitExceeded, l.max, l.kind)
	}
	return nil
}

func (l *Limit) OnTaskComplete(_ context.Context, task *sched.TaskType) error {
	l.release(task)
	return nil
}

func (l *Limit) OnTaskFailed(_ context.Context, task *sched.TaskType, _ error) error {
	l.release(task)
	return nil
}

func (l *Limit) release(task *sched.TaskType) {
	if task.Kind() == l.kind {
		l.running.Decrement()
	}
}

// Running returns the number of admitted tasks of this hook's kind that have
// not yet finished.
func (l *Limit) Running() int {
	return int(l.running.Load())
}
