// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched

import (
	"context"
	"sync"
	"time"

	"github.com/petenewcomb/sched-go"
	"go.opentelemetry.io/otel/metric"
)

// MetricsHook records task metrics. With a prefix of "sched" the instruments
// are:
//
//   - sched.started, sched.completed and sched.failed: counters
//   - sched.in_flight: an up-down counter of running tasks
//   - sched.duration: a histogram of task durations in seconds
//
// Every measurement carries the task.name attribute, and task.kind when the
// task has one.
type MetricsHook struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	duration  metric.Float64Histogram
	// Start times keyed by task ID.
	startTimes sync.Map
}

var (
	_ sched.CompletionHook = (*MetricsHook)(nil)
	_ sched.FailureHook    = (*MetricsHook)(nil)
	_ sched.NamedHook      = (*MetricsHook)(nil)
)

// Metrics returns a hook whose instruments are created from a meter named
// prefix and whose instrument names start with prefix.
func Metrics(prefix string, opts ...Option) (*MetricsHook, error) {
	o := buildOptions(opts)
	meter := o.meterProvider.Meter(prefix)

	h := &MetricsHook{}
	var err error
	if h.started, err = meter.Int64Counter(prefix+".started",
		metric.WithDescription("Tasks started")); err != nil {
		return nil, err
	}
	if h.completed, err = meter.Int64Counter(prefix+".completed",
		metric.WithDescription("Tasks whose work returned without error")); err != nil {
		return nil, err
	}
	if h.failed, err = meter.Int64Counter(prefix+".failed",
		metric.WithDescription("Tasks whose work returned an error or panicked")); err != nil {
		return nil, err
	}
	if h.inFlight, err = meter.Int64UpDownCounter(prefix+".in_flight",
		metric.WithDescription("Tasks started but not yet finished")); err != nil {
		return nil, err
	}
	if h.duration, err = meter.Float64Histogram(prefix+".duration",
		metric.WithDescription("Task duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MetricsHook) Name() string {
	return "metrics"
}

func (h *MetricsHook) OnTaskStart(ctx context.Context, task *sched.TaskType) error {
	h.startTimes.Store(task.ID(), time.Now())
	attrs := metric.WithAttributes(taskAttributes(task)...)
	h.started.Add(ctx, 1, attrs)
	h.inFlight.Add(ctx, 1, attrs)
	return nil
}

func (h *MetricsHook) OnTaskComplete(ctx context.Context, task *sched.TaskType) error {
	h.finish(ctx, task, h.completed)
	return nil
}

func (h *MetricsHook) OnTaskFailed(ctx context.Context, task *sched.TaskType, _ error) error {
	h.finish(ctx, task, h.failed)
	return nil
}

func (h *MetricsHook) finish(ctx context.Context, task *sched.TaskType, outcome metric.Int64Counter) {
	attrs := metric.WithAttributes(taskAttributes(task)...)
	outcome.Add(ctx, 1, attrs)
	h.inFlight.Add(ctx, -1, attrs)
	if v, ok := h.startTimes.LoadAndDelete(task.ID()); ok {
		h.duration.Record(ctx, time.Since(v.(time.Time)).Seconds(), attrs)
	}
}
