// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched

import (
	"context"
	"sync"
	"time"

	"github.com/petenewcomb/sched-go"
	"go.uber.org/zap"
)

// LoggingHook adds structured logging to tasks. It logs the start and
// completion of each task, including timing information and any error that
// occurred.
type LoggingHook struct {
	logger *zap.Logger
	// Start times keyed by task ID.
	started sync.Map
}

var (
	_ sched.CompletionHook = (*LoggingHook)(nil)
	_ sched.FailureHook    = (*LoggingHook)(nil)
	_ sched.NamedHook      = (*LoggingHook)(nil)
)

// Logging returns a hook writing to logger, or to [zap.L] if logger is nil.
// Starts and completions are logged at debug level and failures at error
// level.
func Logging(logger *zap.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) log() *zap.Logger {
	if h.logger != nil {
		return h.logger
	}
	// Looked up on every use so that zap.ReplaceGlobals takes effect.
	return zap.L()
}

func (h *LoggingHook) OnTaskStart(_ context.Context, task *sched.TaskType) error {
	h.started.Store(task.ID(), time.Now())
	h.log().Debug("Starting task",
		zap.Object("task", task),
		zap.String("component", component))
	return nil
}

func (h *LoggingHook) OnTaskComplete(_ context.Context, task *sched.TaskType) error {
	h.log().Debug("Task completed",
		zap.Object("task", task),
		zap.String("component", component),
		zap.Duration("duration", h.elapsed(task)))
	return nil
}

func (h *LoggingHook) OnTaskFailed(_ context.Context, task *sched.TaskType, err error) error {
	h.log().Error("Task failed",
		zap.Object("task", task),
		zap.String("component", component),
		zap.Duration("duration", h.elapsed(task)),
		zap.Error(err))
	return nil
}

func (h *LoggingHook) elapsed(task *sched.TaskType) time.Duration {
	v, ok := h.started.LoadAndDelete(task.ID())
	if !ok {
		return 0
	}
	return time.Since(v.(time.Time))
}
