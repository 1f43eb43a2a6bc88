// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/sched-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errBoom = errors.New("boom")

// countingHook mirrors the simplest useful observer: a mutex-guarded count of
// start events.
type countingHook struct {
	mu    sync.Mutex
	count int
}

func (h *countingHook) OnTaskStart(context.Context, *sched.TaskType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return nil
}

func (h *countingHook) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// rejectHook rejects the start of tasks with a particular name.
type rejectHook struct {
	name string
}

func (h rejectHook) Name() string {
	return "rejecter"
}

func (h rejectHook) OnTaskStart(_ context.Context, task *sched.TaskType) error {
	if task.Name() == h.name {
		return errBoom
	}
	return nil
}

// eventLog collects entries from concurrently running hooks.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func noop(context.Context) error {
	return nil
}

func TestSchedulerRunTask(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	s := sched.NewBuilder().Build()
	var ran atomic.Bool
	err := s.RunTask(ctx, "task", func(context.Context) error {
		time.Sleep(0)
		ran.Store(true)
		return nil
	})
	chk.NoError(err)
	chk.NoError(s.Wait(ctx))
	chk.True(ran.Load())
	chk.Equal(0, s.InFlight())
}

func TestSchedulerHooksSeeEveryStart(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	hook := &countingHook{}
	s := sched.NewBuilder().Hooks(hook).Build()
	for range 10 {
		chk.NoError(s.RunTask(ctx, "task", noop))
	}
	chk.NoError(s.Wait(ctx))
	chk.Equal(10, hook.Count())
	chk.Equal(0, s.InFlight())
}

func TestSchedulerEmptyWait(t *testing.T) {
	chk := require.New(t)

	s := sched.New()
	chk.NoError(s.Wait(context.Background()))
	chk.NoError(s.Wait(context.Background()))

	// Nothing to wait for, so even a canceled context succeeds.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chk.NoError(s.Wait(ctx))
}

func TestSchedulerTaskCountedUntilReturn(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	gate := make(chan struct{})
	s := sched.New()
	chk.NoError(s.RunTask(ctx, "blocked", func(context.Context) error {
		<-gate
		return nil
	}))
	chk.Equal(1, s.InFlight())
	close(gate)
	chk.NoError(s.Wait(ctx))
	chk.Equal(0, s.InFlight())
}

func TestSchedulerIsolation(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var mu sync.Mutex
	failures := make(map[string]error)
	var completed atomic.Int32
	s := sched.NewBuilder().Hooks(sched.HookFuncs{
		Complete: func(context.Context, *sched.TaskType) error {
			completed.Add(1)
			return nil
		},
		Failed: func(_ context.Context, task *sched.TaskType, err error) error {
			mu.Lock()
			defer mu.Unlock()
			failures[task.Name()] = err
			return nil
		},
	}).Build()

	var slowDone atomic.Bool
	chk.NoError(s.RunTask(ctx, "error", func(context.Context) error {
		return errBoom
	}))
	chk.NoError(s.RunTask(ctx, "panic", func(context.Context) error {
		panic("task blew up")
	}))
	chk.NoError(s.RunTask(ctx, "slow", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		slowDone.Store(true)
		return nil
	}))
	chk.NoError(s.Wait(ctx))

	chk.True(slowDone.Load())
	chk.Equal(int32(1), completed.Load())
	chk.Len(failures, 2)
	chk.ErrorIs(failures["error"], errBoom)
	chk.ErrorIs(failures["panic"], sched.ErrTaskPanic)
	chk.Contains(failures["panic"].Error(), "task blew up")
	chk.Equal(0, s.InFlight())
}

func TestSchedulerPanicWithErrorValue(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var failure atomic.Value
	s := sched.New(sched.HookFuncs{
		Failed: func(_ context.Context, _ *sched.TaskType, err error) error {
			failure.Store(err)
			return nil
		},
	})
	chk.NoError(s.RunTask(ctx, "panic", func(context.Context) error {
		panic(errBoom)
	}))
	chk.NoError(s.Wait(ctx))

	err, _ := failure.Load().(error)
	chk.ErrorIs(err, sched.ErrTaskPanic)
	chk.ErrorIs(err, errBoom)
}

func TestSchedulerNoPrematureDrain(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	s := sched.New()
	gate1 := make(chan struct{})
	gate2 := make(chan struct{})
	chk.NoError(s.RunTask(ctx, "first", func(context.Context) error {
		<-gate1
		return nil
	}))

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- s.Wait(ctx)
	}()

	// Submitted after Wait was called but before it could return.
	chk.NoError(s.RunTask(ctx, "second", func(context.Context) error {
		<-gate2
		return nil
	}))
	close(gate1)

	select {
	case <-waitDone:
		chk.Fail("Wait returned while a task was still outstanding")
	case <-time.After(20 * time.Millisecond):
	}
	chk.Equal(1, s.InFlight())

	close(gate2)
	chk.NoError(<-waitDone)
	chk.Equal(0, s.InFlight())
}

func TestSchedulerWaitAcrossEpochs(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	hook := &countingHook{}
	s := sched.New(hook)
	for epoch := 1; epoch <= 3; epoch++ {
		gate := make(chan struct{})
		chk.NoError(s.RunTask(ctx, "task", func(context.Context) error {
			<-gate
			return nil
		}))

		waitDone := make(chan error, 1)
		go func() {
			waitDone <- s.Wait(ctx)
		}()
		select {
		case <-waitDone:
			chk.Fail("Wait returned using a drain signal from an earlier epoch")
		case <-time.After(10 * time.Millisecond):
		}

		close(gate)
		chk.NoError(<-waitDone)
		chk.Equal(epoch, hook.Count())
	}
}

func TestSchedulerHookOrder(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	log := &eventLog{}
	newHook := func(name string) sched.Hook {
		return sched.HookFuncs{
			Start: func(context.Context, *sched.TaskType) error {
				log.add(name + ":begin")
				time.Sleep(time.Millisecond)
				log.add(name + ":end")
				return nil
			},
			Complete: func(context.Context, *sched.TaskType) error {
				log.add(name + ":complete")
				return nil
			},
		}
	}

	s := sched.NewBuilder().Hooks(newHook("A")).Hooks(newHook("B")).Build()
	chk.NoError(s.RunTask(ctx, "task", func(context.Context) error {
		log.add("work")
		return nil
	}))
	chk.NoError(s.Wait(ctx))

	chk.Equal([]string{
		"A:begin", "A:end",
		"B:begin", "B:end",
		"work",
		"A:complete", "B:complete",
	}, log.get())
}

func TestSchedulerStartHookRejects(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	log := &eventLog{}
	observerHook := sched.HookFuncs{
		Start: func(_ context.Context, task *sched.TaskType) error {
			log.add("start " + task.Name())
			return nil
		},
		Complete: func(_ context.Context, task *sched.TaskType) error {
			log.add("complete " + task.Name())
			return nil
		},
		Failed: func(_ context.Context, task *sched.TaskType, err error) error {
			var hookErr *sched.HookError
			if errors.As(err, &hookErr) {
				log.add("rejected " + task.Name() + " by " + hookErr.Hook)
			}
			return nil
		},
	}
	s := sched.New(observerHook, rejectHook{name: "bad"})

	var ran atomic.Bool
	err := s.RunTask(ctx, "bad", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	chk.ErrorIs(err, errBoom)

	var hookErr *sched.HookError
	chk.ErrorAs(err, &hookErr)
	chk.Equal("rejecter", hookErr.Hook)
	chk.Equal(sched.EventStart, hookErr.Event)
	chk.Equal("bad", hookErr.Task.Name())
	chk.Equal("start hook rejecter failed for task bad#1: boom", err.Error())

	// The count is rolled back before RunTask returns.
	chk.Equal(0, s.InFlight())

	chk.NoError(s.RunTask(ctx, "good", noop))
	chk.NoError(s.Wait(ctx))
	chk.False(ran.Load())
	chk.Equal([]string{
		"start bad",
		"rejected bad by rejecter",
		"start good",
		"complete good",
	}, log.get())
}

func TestSchedulerStartHookPanics(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	s := sched.New(sched.HookFunc(func(context.Context, *sched.TaskType) error {
		panic("hook blew up")
	}))
	err := s.RunTask(ctx, "task", noop)
	chk.ErrorIs(err, sched.ErrHookPanic)
	chk.Contains(err.Error(), "hook blew up")

	var hookErr *sched.HookError
	chk.ErrorAs(err, &hookErr)
	chk.Equal("sched.HookFunc", hookErr.Hook)
	chk.Equal(0, s.InFlight())
	chk.NoError(s.Wait(ctx))
}

func TestSchedulerPostExecutionHooksCounted(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var notified atomic.Bool
	s := sched.New(sched.HookFuncs{
		Complete: func(context.Context, *sched.TaskType) error {
			time.Sleep(20 * time.Millisecond)
			notified.Store(true)
			return nil
		},
	})
	chk.NoError(s.RunTask(ctx, "task", noop))
	chk.NoError(s.Wait(ctx))
	chk.True(notified.Load(), "Wait returned before the completion hook finished")
}

func TestSchedulerPostExecutionHookErrorsLogged(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	core, logs := observer.New(zapcore.DebugLevel)
	s := sched.NewBuilder().
		Logger(zap.New(core)).
		Hooks(sched.HookFuncs{
			Complete: func(context.Context, *sched.TaskType) error {
				return errBoom
			},
		}).
		Hooks(sched.HookFuncs{
			Complete: func(context.Context, *sched.TaskType) error {
				panic("late panic")
			},
		}).
		Build()

	chk.NoError(s.RunTask(ctx, "task", noop))
	chk.NoError(s.Wait(ctx))
	chk.Equal(0, s.InFlight())

	failed := logs.FilterMessage("post-execution hooks failed").All()
	chk.Len(failed, 1)
	chk.Equal(zapcore.ErrorLevel, failed[0].Level)
	msg := failed[0].ContextMap()["error"]
	chk.Contains(msg, "boom")
	chk.Contains(msg, "late panic")
}

func TestSchedulerGoLogsStartFailures(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	core, logs := observer.New(zapcore.DebugLevel)
	log := &eventLog{}
	s := sched.NewBuilder().
		Logger(zap.New(core)).
		Hooks(sched.HookFuncs{
			Start: func(context.Context, *sched.TaskType) error {
				return errBoom
			},
			Complete: func(context.Context, *sched.TaskType) error {
				log.add("rejecting hook notified")
				return nil
			},
		}).
		Hooks(sched.HookFuncs{
			Complete: func(_ context.Context, task *sched.TaskType) error {
				log.add("complete " + task.Name())
				return nil
			},
		}).
		Build()

	var ran atomic.Bool
	task := s.Go(ctx, "background", func(context.Context) error {
		ran.Store(true)
		return nil
	}, sched.WithKind("batch"))
	chk.NotNil(task)
	chk.Equal("batch/background#1", task.String())
	chk.NoError(s.Wait(ctx))

	chk.True(ran.Load())
	chk.Equal([]string{"complete background"}, log.get())
	chk.Equal(1, logs.FilterMessage("start hooks failed; running task anyway").Len())
}

func TestSchedulerClose(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	core, logs := observer.New(zapcore.DebugLevel)
	hook := &countingHook{}
	s := sched.NewBuilder().Logger(zap.New(core)).Hooks(hook).Build()

	gate := make(chan struct{})
	chk.NoError(s.RunTask(ctx, "running", func(context.Context) error {
		<-gate
		return nil
	}))

	s.Close()
	s.Close()
	chk.Equal(1, logs.FilterMessage("scheduler closed").Len())

	chk.ErrorIs(s.RunTask(ctx, "late", noop), sched.ErrClosed)
	chk.Nil(s.Go(ctx, "late", noop))
	chk.Equal(1, logs.FilterMessage("task not submitted").Len())
	chk.Equal(1, s.InFlight())
	chk.Equal(1, hook.Count(), "hooks must not see rejected submissions")

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- s.CloseAndWait(ctx)
	}()
	close(gate)
	chk.NoError(<-waitDone)
	chk.Equal(0, s.InFlight())
}

func TestSchedulerWaitContextCanceled(t *testing.T) {
	chk := require.New(t)

	s := sched.New()
	gate := make(chan struct{})
	chk.NoError(s.RunTask(context.Background(), "blocked", func(context.Context) error {
		<-gate
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	chk.ErrorIs(s.Wait(ctx), context.DeadlineExceeded)
	chk.Equal(1, s.InFlight())

	close(gate)
	chk.NoError(s.Wait(context.Background()))
}

func TestSchedulerTaskTypes(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*sched.TaskType
	s := sched.New(sched.HookFunc(func(_ context.Context, task *sched.TaskType) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, task)
		return nil
	}))

	before := time.Now()
	chk.NoError(s.RunTask(ctx, "fetch", noop, sched.WithKind("io")))
	chk.NoError(s.RunTask(ctx, "compute", noop))
	chk.NoError(s.Wait(ctx))

	chk.Len(seen, 2)
	chk.Equal(uint64(1), seen[0].ID())
	chk.Equal("fetch", seen[0].Name())
	chk.Equal("io", seen[0].Kind())
	chk.Equal("io/fetch#1", seen[0].String())
	chk.False(seen[0].SubmittedAt().Before(before))

	chk.Equal(uint64(2), seen[1].ID())
	chk.Equal("", seen[1].Kind())
	chk.Equal("compute#2", seen[1].String())
}

type ctxKey struct{}

func TestSchedulerContexts(t *testing.T) {
	chk := require.New(t)

	base := context.WithValue(context.Background(), ctxKey{}, "base")
	caller := context.WithValue(context.Background(), ctxKey{}, "caller")

	var startValue, workValue, completeValue atomic.Value
	s := sched.NewBuilder().
		Context(base).
		Hooks(sched.HookFuncs{
			Start: func(ctx context.Context, _ *sched.TaskType) error {
				startValue.Store(ctx.Value(ctxKey{}))
				return nil
			},
			Complete: func(ctx context.Context, _ *sched.TaskType) error {
				completeValue.Store(ctx.Value(ctxKey{}))
				return nil
			},
		}).
		Build()

	chk.NoError(s.RunTask(caller, "task", func(ctx context.Context) error {
		workValue.Store(ctx.Value(ctxKey{}))
		return nil
	}))
	chk.NoError(s.Wait(caller))

	chk.Equal("caller", startValue.Load())
	chk.Equal("base", workValue.Load())
	chk.Equal("base", completeValue.Load())
}

func TestSchedulerNilWorkPanic(t *testing.T) {
	chk := require.New(t)

	s := sched.New()
	chk.PanicsWithValue("task function must be non-nil", func() {
		_ = s.RunTask(context.Background(), "task", nil)
	})
	chk.Equal(0, s.InFlight())
}

func TestSchedulerConcurrentSubmitters(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	const submitters = 8
	const perSubmitter = 50

	hook := &countingHook{}
	var ran, failed atomic.Int64
	s := sched.New(hook)

	var wg sync.WaitGroup
	wg.Add(submitters)
	for range submitters {
		go func() {
			defer wg.Done()
			for range perSubmitter {
				err := s.RunTask(ctx, "task", func(context.Context) error {
					ran.Add(1)
					return nil
				})
				if err != nil {
					failed.Add(1)
				}
			}
		}()
	}

	// Waiting while submissions are still arriving must not disturb the count.
	_ = s.Wait(ctx)
	wg.Wait()
	chk.NoError(s.Wait(ctx))

	chk.Zero(failed.Load())
	chk.Equal(int64(submitters*perSubmitter), ran.Load())
	chk.Equal(submitters*perSubmitter, hook.Count())
	chk.Equal(0, s.InFlight())
}

func TestSchedulerTaskFromContext(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var fromWork, fromComplete atomic.Pointer[sched.TaskType]
	s := sched.New(sched.HookFuncs{
		Complete: func(ctx context.Context, _ *sched.TaskType) error {
			fromComplete.Store(sched.TaskFromContext(ctx))
			return nil
		},
	})

	task := s.Go(ctx, "self", func(ctx context.Context) error {
		fromWork.Store(sched.TaskFromContext(ctx))
		return nil
	})
	chk.NotNil(task)
	chk.NoError(s.Wait(ctx))

	chk.Same(task, fromWork.Load())
	chk.Same(task, fromComplete.Load())
	chk.Nil(sched.TaskFromContext(ctx))
}

// layerHook appends its label to a slice carried in the work context.
type layerHook struct {
	label string
}

func (h layerHook) Name() string {
	return h.label
}

func (h layerHook) OnTaskStart(context.Context, *sched.TaskType) error {
	return nil
}

func (h layerHook) TaskContext(ctx context.Context, _ *sched.TaskType) context.Context {
	layers, _ := ctx.Value(ctxKey{}).([]string)
	return context.WithValue(ctx, ctxKey{}, append(append([]string(nil), layers...), h.label))
}

func TestSchedulerContextHooks(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var seen atomic.Value
	s := sched.New(
		layerHook{label: "a"},
		sched.HookFunc(func(context.Context, *sched.TaskType) error {
			return nil
		}),
		layerHook{label: "b"},
		sched.HookFuncs{
			Complete: func(ctx context.Context, _ *sched.TaskType) error {
				seen.Store(ctx.Value(ctxKey{}))
				return nil
			},
		},
	)

	var inWork atomic.Value
	chk.NoError(s.RunTask(ctx, "layered", func(ctx context.Context) error {
		inWork.Store(ctx.Value(ctxKey{}))
		return nil
	}))
	chk.NoError(s.Wait(ctx))

	chk.Equal([]string{"a", "b"}, inWork.Load())
	chk.Equal([]string{"a", "b"}, seen.Load())
}

type panickyContextHook struct{}

func (panickyContextHook) OnTaskStart(context.Context, *sched.TaskType) error {
	return nil
}

func (panickyContextHook) TaskContext(context.Context, *sched.TaskType) context.Context {
	panic("no context for you")
}

func TestSchedulerContextHookPanics(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	log := &eventLog{}
	s := sched.New(
		sched.HookFuncs{
			Failed: func(_ context.Context, task *sched.TaskType, err error) error {
				log.add("failed " + task.Name())
				return nil
			},
		},
		panickyContextHook{},
	)

	ran := false
	err := s.RunTask(ctx, "doomed", func(context.Context) error {
		ran = true
		return nil
	})
	chk.ErrorIs(err, sched.ErrHookPanic)
	var hookErr *sched.HookError
	chk.ErrorAs(err, &hookErr)
	chk.Equal(sched.EventStart, hookErr.Event)
	chk.Equal(0, s.InFlight())
	chk.NoError(s.Wait(ctx))
	chk.False(ran)
	chk.Equal([]string{"failed doomed"}, log.get())
}

func TestSchedulerGoexitReportedAsFailure(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	var failures atomic.Int64
	var lastErr atomic.Value
	s := sched.New(sched.HookFuncs{
		Complete: func(context.Context, *sched.TaskType) error {
			t.Error("completion reported for exited task")
			return nil
		},
		Failed: func(_ context.Context, _ *sched.TaskType, err error) error {
			failures.Add(1)
			lastErr.Store(err)
			return nil
		},
	})

	chk.NoError(s.RunTask(ctx, "quitter", func(context.Context) error {
		runtime.Goexit()
		return nil
	}))
	chk.NoError(s.Wait(ctx))

	chk.Equal(int64(1), failures.Load())
	chk.ErrorIs(lastErr.Load().(error), sched.ErrTaskExited)
	chk.Equal(0, s.InFlight())
}
