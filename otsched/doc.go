// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package otsched provides OpenTelemetry and zap instrumentation for the
// sched task scheduler in the form of hooks. Each hook observes the lifecycle
// of every task submitted to a scheduler it is registered with:
//
//   - [Logging] writes structured log entries for task starts and outcomes.
//   - [Metrics] records counts, durations and the number of running tasks.
//   - [Tracing] wraps each task in a span.
//
// [Instrumented] returns all three, ready to pass to
// [github.com/petenewcomb/sched-go.Builder.Hooks].
package otsched
