// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
)

// A TaskFunc represents a unit of work to be executed asynchronously by a
// [Scheduler]. Only its success or failure is meaningful to the scheduler. The
// provided context derives from the scheduler's base context (see
// [Builder.Context]), not from the context passed to [Scheduler.RunTask]. It
// carries the task itself (see [TaskFromContext]) and whatever each
// [ContextHook] added. Any other inputs to the task
// are expected to be provided by specifying the TaskFunc as a [function
// literal] that references and therefore captures local variables via
// [lexical closure].
//
// Each TaskFunc is executed in a new goroutine and must therefore be
// thread-safe. This includes access to any captured variables.
//
// If a TaskFunc panics, the panic is recovered and reported to the
// [FailureHook] implementations registered with the scheduler as an error
// wrapping [ErrTaskPanic]. A returned error is likewise only visible to hooks:
// by the time the function runs, [Scheduler.RunTask] has already returned.
// Work that needs to report failures elsewhere must do so itself.
//
// [function literal]: https://go.dev/ref/spec#Function_literals
// [lexical closure]: https://en.wikipedia.org/wiki/Closure_(computer_programming)
type TaskFunc = func(context.Context) error

// TaskType identifies a single submitted task. A new TaskType is created for
// each call to [Scheduler.RunTask] or [Scheduler.Go] and is never reused. It
// is immutable and safe to share between goroutines.
type TaskType struct {
	id          uint64
	name        string
	kind        string
	submittedAt time.Time
}

// ID returns the task's sequence number within its scheduler. IDs start at one
// and increase with each submission.
func (t *TaskType) ID() uint64 {
	return t.id
}

// Name returns the name given at submission.
func (t *TaskType) Name() string {
	return t.name
}

// Kind returns the optional kind given with [WithKind], or the empty string.
func (t *TaskType) Kind() string {
	return t.kind
}

// SubmittedAt returns the time at which the task was submitted.
func (t *TaskType) SubmittedAt() time.Time {
	return t.submittedAt
}

// String formats the task as name#id, prefixed by kind/ when a kind is set.
func (t *TaskType) String() string {
	if t == nil {
		return "<nil>"
	}
	s := t.name + "#" + strconv.FormatUint(t.id, 10)
	if t.kind != "" {
		s = t.kind + "/" + s
	}
	return s
}

// MarshalLogObject implements [zapcore.ObjectMarshaler] so that tasks may be
// logged with [go.uber.org/zap.Object].
func (t *TaskType) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("id", t.id)
	enc.AddString("name", t.name)
	if t.kind != "" {
		enc.AddString("kind", t.kind)
	}
	return nil
}

// A TaskOption customizes the [TaskType] created for a submission.
type TaskOption func(*taskOptions)

type taskOptions struct {
	kind string
}

// WithKind attaches kind metadata to the submitted task.
func WithKind(kind string) TaskOption {
	return func(o *taskOptions) {
		o.kind = kind
	}
}

func newTaskType(id uint64, name string, opts []TaskOption) *TaskType {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &TaskType{
		id:          id,
		name:        name,
		kind:        o.kind,
		submittedAt: time.Now(),
	}
}

type taskKey struct{}

func withTask(ctx context.Context, task *TaskType) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the task whose work or post-execution hooks were
// given ctx, or nil if there is none.
func TaskFromContext(ctx context.Context) *TaskType {
	task, _ := ctx.Value(taskKey{}).(*TaskType)
	return task
}
