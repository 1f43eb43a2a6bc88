// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched

import (
	"context"
	"fmt"
)

// Event identifies a point in a task's lifecycle at which hooks are invoked.
type Event int

const (
	EventStart    Event = iota // before the task's work begins
	EventComplete              // after the work returned nil
	EventFailed                // after the work returned an error or panicked
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventComplete:
		return "complete"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// A Hook observes task lifecycle events. OnTaskStart is called before a
// task's work begins, once per task and in the order in which hooks were
// registered with the [Builder]. Each call is awaited before the next hook is
// invoked. Returning an error rejects the task: [Scheduler.RunTask] returns
// the error wrapped in a [*HookError] and the work is never run.
//
// The same hook instance may be called concurrently on behalf of different
// tasks, so implementations must synchronize any internal state themselves.
//
// A hook may additionally implement [ContextHook], [CompletionHook],
// [FailureHook] and [NamedHook]. The scheduler discovers these capabilities when it is built.
type Hook interface {
	OnTaskStart(ctx context.Context, task *TaskType) error
}

// A CompletionHook is notified after a task's work returns nil. It is called
// from the task's goroutine before the task stops counting as outstanding, so
// [Scheduler.Wait] does not return until it has finished.
type CompletionHook interface {
	Hook
	OnTaskComplete(ctx context.Context, task *TaskType) error
}

// A FailureHook is notified after a task's work returns an error or panics,
// in which case err wraps [ErrTaskPanic]. It is also notified, with a
// [*HookError], when a hook registered after it rejects the start of a task
// that it had already accepted. As with [CompletionHook], it runs before the
// task stops counting as outstanding.
type FailureHook interface {
	Hook
	OnTaskFailed(ctx context.Context, task *TaskType, err error) error
}

// A ContextHook contributes to the context that a task's work and its
// post-execution hooks receive. Once every start hook has accepted a task,
// TaskContext is called on each ContextHook in registration order, starting
// from the scheduler's base context, and each call receives the context
// returned by the previous one. Returning nil leaves the context unchanged.
//
// A panic in TaskContext is handled like a rejected start.
type ContextHook interface {
	Hook
	TaskContext(ctx context.Context, task *TaskType) context.Context
}

// A NamedHook supplies the name used for the hook in errors and logs. Hooks
// that do not implement it are identified by their dynamic type.
type NamedHook interface {
	Hook
	Name() string
}

// HookFunc adapts an ordinary function to the [Hook] interface.
type HookFunc func(ctx context.Context, task *TaskType) error

func (f HookFunc) OnTaskStart(ctx context.Context, task *TaskType) error {
	return f(ctx, task)
}

// HookFuncs adapts up to three ordinary functions into a hook implementing
// [Hook], [CompletionHook] and [FailureHook]. Nil fields are treated as
// functions that return nil.
type HookFuncs struct {
	Start    func(ctx context.Context, task *TaskType) error
	Complete func(ctx context.Context, task *TaskType) error
	Failed   func(ctx context.Context, task *TaskType, err error) error
}

func (h HookFuncs) OnTaskStart(ctx context.Context, task *TaskType) error {
	if h.Start == nil {
		return nil
	}
	return h.Start(ctx, task)
}

func (h HookFuncs) OnTaskComplete(ctx context.Context, task *TaskType) error {
	if h.Complete == nil {
		return nil
	}
	return h.Complete(ctx, task)
}

func (h HookFuncs) OnTaskFailed(ctx context.Context, task *TaskType, err error) error {
	if h.Failed == nil {
		return nil
	}
	return h.Failed(ctx, task, err)
}

// boundHook caches the capabilities of a registered hook so that type
// assertions happen once, at build time.
type boundHook struct {
	name     string
	start    Hook
	context  ContextHook
	complete CompletionHook
	failed   FailureHook
}

func bindHook(h Hook) boundHook {
	b := boundHook{start: h}
	if nh, ok := h.(NamedHook); ok {
		b.name = nh.Name()
	} else {
		b.name = fmt.Sprintf("%T", h)
	}
	b.context, _ = h.(ContextHook)
	b.complete, _ = h.(CompletionHook)
	b.failed, _ = h.(FailureHook)
	return b
}

// invoke calls fn on behalf of the hook, converting a returned error or a
// panic into a *HookError.
func (b *boundHook) invoke(event Event, task *TaskType, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrHookPanic, r)
		}
		if err != nil {
			err = &HookError{
				Hook:  b.name,
				Event: event,
				Task:  task,
				Err:   err,
			}
		}
	}()
	return fn()
}

func (b *boundHook) onStart(ctx context.Context, task *TaskType) error {
	return b.invoke(EventStart, task, func() error {
		return b.start.OnTaskStart(ctx, task)
	})
}

// onContext derives the work context for task. The result is ctx itself when
// the hook is not a ContextHook, returns nil, or fails.
func (b *boundHook) onContext(ctx context.Context, task *TaskType) (context.Context, error) {
	if b.context == nil {
		return ctx, nil
	}
	derived := ctx
	err := b.invoke(EventStart, task, func() error {
		if c := b.context.TaskContext(ctx, task); c != nil {
			derived = c
		}
		return nil
	})
	if err != nil {
		return ctx, err
	}
	return derived, nil
}

// onFinish delivers the post-execution event matching workErr. Hooks lacking
// the corresponding capability are skipped.
func (b *boundHook) onFinish(ctx context.Context, task *TaskType, workErr error) error {
	if workErr == nil {
		if b.complete == nil {
			return nil
		}
		return b.invoke(EventComplete, task, func() error {
			return b.complete.OnTaskComplete(ctx, task)
		})
	}
	if b.failed == nil {
		return nil
	}
	return b.invoke(EventFailed, task, func() error {
		return b.failed.OnTaskFailed(ctx, task, workErr)
	})
}
