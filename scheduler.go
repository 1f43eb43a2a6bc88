// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched

import (
	"context"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/petenewcomb/sched-go/internal/state"
	"go.uber.org/zap"
)

// Scheduler runs submitted tasks concurrently, each in its own goroutine,
// notifying its hooks as each task starts and finishes. It counts every task
// from the moment of submission until its work and post-execution hooks have
// returned, and [Scheduler.Wait] blocks until that count reaches zero.
//
// A Scheduler must be created with a [Builder]. All of its methods are
// thread-safe.
//
// Discarding a Scheduler does not stop its tasks: they run to completion and
// keep whatever references to hooks they already hold.
type Scheduler struct {
	ctx       context.Context
	logger    *zap.Logger
	hooks     []boundHook
	lifecycle state.Lifecycle
	inFlight  state.DrainCounter
	lastID    atomic.Uint64
}

// RunTask submits work for concurrent execution under the given name.
//
// The task counts as outstanding before RunTask invokes each hook's
// [Hook.OnTaskStart] in registration order, waiting for each to return. If a
// hook returns an error or panics, RunTask stops, notifies any hooks that had
// already accepted the task via [FailureHook], removes the task from the
// outstanding count and returns a [*HookError]. The work is not run.
//
// Otherwise RunTask launches the work in a new goroutine and returns nil
// without waiting for it. The task remains outstanding until the work has
// returned and every [CompletionHook] or [FailureHook] has been notified.
//
// Returns [ErrClosed] if [Scheduler.Close] has been called. The context is
// passed to the start hooks only. Panics if work is nil.
func (s *Scheduler) RunTask(ctx context.Context, name string, work TaskFunc, opts ...TaskOption) error {
	_, err := s.launch(ctx, name, work, opts, false)
	return err
}

// Go is a fire-and-forget variant of [Scheduler.RunTask]. Start hook failures
// are logged rather than returned and do not prevent the task from running;
// only hooks that accepted the start receive its post-execution event. If the
// scheduler is closed, Go logs [ErrClosed] and returns nil without running the
// work. Otherwise it returns the submitted task's identity.
func (s *Scheduler) Go(ctx context.Context, name string, work TaskFunc, opts ...TaskOption) *TaskType {
	task, err := s.launch(ctx, name, work, opts, true)
	if err != nil {
		s.logger.Warn("task not submitted",
			zap.String("name", name),
			zap.Error(err))
		return nil
	}
	return task
}

func (s *Scheduler) launch(
	ctx context.Context,
	name string,
	work TaskFunc,
	opts []TaskOption,
	bestEffort bool,
) (task *TaskType, err error) {
	if work == nil {
		panic("task function must be non-nil")
	}

	// Count the task before checking for closure. This way any Wait that
	// follows a Close is guaranteed to observe a submission that got past the
	// check.
	s.inFlight.Increment()

	// Bookkeeping: make sure that the count incremented above gets decremented
	// unless the launch actually happens
	launched := false
	defer func() {
		if !launched {
			s.inFlight.Decrement()
		}
	}()

	if s.lifecycle.IsClosed() {
		return nil, ErrClosed
	}

	task = newTaskType(s.lastID.Add(1), name, opts)
	accepted, workCtx, err := s.start(ctx, task, bestEffort)
	if err != nil {
		if !bestEffort {
			return task, err
		}
		s.logger.Warn("start hooks failed; running task anyway",
			zap.Object("task", task),
			zap.Error(err))
	}

	// Launch the task in a new goroutine.
	launched = true
	go s.execute(workCtx, task, work, accepted)
	return task, nil
}

// start invokes the start hooks and returns those that accepted the task,
// along with the context derived for its work. In best-effort mode every hook
// is invoked and the failures are combined; otherwise the first failure stops
// the sequence and the hooks that had accepted are told that the task failed.
func (s *Scheduler) start(
	ctx context.Context,
	task *TaskType,
	bestEffort bool,
) ([]*boundHook, context.Context, error) {
	workCtx := withTask(s.ctx, task)
	accepted := make([]*boundHook, 0, len(s.hooks))
	var mErr *multierror.Error
	for i := range s.hooks {
		h := &s.hooks[i]
		err := h.onStart(ctx, task)
		if err == nil {
			accepted = append(accepted, h)
			continue
		}
		if !bestEffort {
			s.finish(workCtx, task, accepted, err)
			return nil, nil, err
		}
		mErr = multierror.Append(mErr, err)
	}

	// The work context is derived only once the task has been admitted.
	for _, h := range accepted {
		derived, err := h.onContext(workCtx, task)
		if err != nil {
			if !bestEffort {
				s.finish(workCtx, task, accepted, err)
				return nil, nil, err
			}
			mErr = multierror.Append(mErr, err)
		}
		workCtx = derived
	}
	return accepted, workCtx, mErr.ErrorOrNil()
}

func (s *Scheduler) execute(ctx context.Context, task *TaskType, work TaskFunc, accepted []*boundHook) {
	// Decrement only after the post-execution hooks have returned so that
	// Wait accounts for them too. Deferred so that it happens even if
	// logging panics.
	defer func() {
		if s.inFlight.Decrement() {
			s.logger.Debug("all tasks finished")
		}
	}()

	// A work function that calls runtime.Goexit never returns, but the hooks
	// must still hear about it before the count drops.
	returned := false
	defer func() {
		if !returned {
			s.finish(ctx, task, accepted, ErrTaskExited)
		}
	}()
	err := runWork(ctx, work)
	returned = true

	s.finish(ctx, task, accepted, err)
}

// finish delivers the post-execution event matching workErr to each of the
// given hooks in order. Hook failures cannot be returned to anyone, so they are
// logged together.
func (s *Scheduler) finish(ctx context.Context, task *TaskType, hooks []*boundHook, workErr error) {
	var mErr *multierror.Error
	for _, h := range hooks {
		if err := h.onFinish(ctx, task, workErr); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if err := mErr.ErrorOrNil(); err != nil {
		s.logger.Error("post-execution hooks failed",
			zap.Object("task", task),
			zap.Error(err))
	}
}

// runWork executes the task function, converting a panic into an error so
// that it cannot take down the process or skip the bookkeeping above.
func runWork(ctx context.Context, work TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrTaskPanic, r)
		}
	}()
	return work(ctx)
}

// Wait blocks until no tasks are outstanding. Tasks submitted while Wait is
// blocked are waited for as well: each time the count reaches zero Wait checks
// it again before returning. Returns nil immediately if nothing is
// outstanding.
//
// Returns the context's error if it is canceled first. This does not affect
// any tasks, which keep running and may be waited for again.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		drained := s.inFlight.Drained()
		if drained == nil {
			return nil
		}
		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the scheduler from accepting new tasks. Tasks already submitted
// continue to run. Subsequent calls to [Scheduler.RunTask] return
// [ErrClosed]. Calling Close more than once has no additional effect.
func (s *Scheduler) Close() {
	if s.lifecycle.Close() {
		s.logger.Debug("scheduler closed",
			zap.Int64("in_flight", s.inFlight.Load()))
	}
}

// CloseAndWait calls [Scheduler.Close] and then [Scheduler.Wait].
func (s *Scheduler) CloseAndWait(ctx context.Context) error {
	s.Close()
	return s.Wait(ctx)
}

// InFlight returns the number of outstanding tasks. The value may be stale by
// the time it is used unless no submissions can be happening concurrently.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Hooks returns the number of hooks registered with the scheduler.
func (s *Scheduler) Hooks() int {
	return len(s.hooks)
}
