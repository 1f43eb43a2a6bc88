// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched

import (
	"fmt"

	"github.com/petenewcomb/sched-go/internal/cerr"
)

const ErrClosed = cerr.Error("scheduler is closed")
const ErrTaskPanic = cerr.Error("task panicked")
const ErrHookPanic = cerr.Error("hook panicked")

// ErrTaskExited is reported to failure hooks when a task's work ends its
// goroutine with [runtime.Goexit] instead of returning.
const ErrTaskExited = cerr.Error("task exited without returning")

// HookError reports that a hook failed or panicked while handling a lifecycle
// event. Err is the error returned by the hook, or an error wrapping
// [ErrHookPanic] if the hook panicked.
type HookError struct {
	Hook  string
	Event Event
	Task  *TaskType
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %s failed for task %v: %v", e.Event, e.Hook, e.Task, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func panicError(sentinel error, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%w: %v", sentinel, r)
}
