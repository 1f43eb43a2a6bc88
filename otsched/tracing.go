// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched

import (
	"context"
	"sync"

	"github.com/petenewcomb/sched-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook wraps each task in a span. The span starts when the task's
// start hooks run and ends when its work has returned, so it becomes a child of
// whatever span is active in the context passed to [sched.Scheduler.RunTask].
// The task's work runs with the span in its context, so spans started by the
// work become children of the task's span.
type TracingHook struct {
	tracer trace.Tracer
	// Open spans keyed by task ID.
	spans sync.Map
}

var (
	_ sched.ContextHook    = (*TracingHook)(nil)
	_ sched.CompletionHook = (*TracingHook)(nil)
	_ sched.FailureHook    = (*TracingHook)(nil)
	_ sched.NamedHook      = (*TracingHook)(nil)
)

// Tracing returns a hook whose spans come from a tracer with the given name.
// Spans are named after the task.
func Tracing(tracerName string, opts ...Option) *TracingHook {
	o := buildOptions(opts)
	return &TracingHook{
		tracer: o.tracerProvider.Tracer(tracerName),
	}
}

func (h *TracingHook) Name() string {
	return "tracing"
}

func (h *TracingHook) OnTaskStart(ctx context.Context, task *sched.TaskType) error {
	attrs := append(taskAttributes(task),
		attribute.Int64("task.id", int64(task.ID())))
	_, span := h.tracer.Start(ctx, task.Name(),
		trace.WithTimestamp(task.SubmittedAt()),
		trace.WithAttributes(attrs...))
	h.spans.Store(task.ID(), span)
	return nil
}

func (h *TracingHook) TaskContext(ctx context.Context, task *sched.TaskType) context.Context {
	v, ok := h.spans.Load(task.ID())
	if !ok {
		return nil
	}
	return trace.ContextWithSpan(ctx, v.(trace.Span))
}

func (h *TracingHook) OnTaskComplete(_ context.Context, task *sched.TaskType) error {
	if span, ok := h.take(task); ok {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return nil
}

func (h *TracingHook) OnTaskFailed(_ context.Context, task *sched.TaskType, err error) error {
	if span, ok := h.take(task); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
	return nil
}

// SpanContext returns the span context of the running task, or an invalid
// span context if the task is not running.
func (h *TracingHook) SpanContext(task *sched.TaskType) trace.SpanContext {
	if v, ok := h.spans.Load(task.ID()); ok {
		return v.(trace.Span).SpanContext()
	}
	return trace.SpanContext{}
}

func (h *TracingHook) take(task *sched.TaskType) (trace.Span, bool) {
	v, ok := h.spans.LoadAndDelete(task.ID())
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}
