// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package sched provides a lightweight in-process task scheduler with an
// observable lifecycle. Callers submit named units of asynchronous work with
// [Scheduler.RunTask], the scheduler runs each one in its own goroutine, and
// [Scheduler.Wait] blocks until every submitted task has finished.
//
// Hooks registered through a [Builder] observe each task's lifecycle. Every
// hook is told when a task is about to start and may reject it by returning an
// error, which [Scheduler.RunTask] hands back to its caller. Hooks that also
// implement [CompletionHook] or [FailureHook] are told how the task ended. For
// any single task, hooks are invoked one at a time in registration order;
// hooks for different tasks may run concurrently.
//
// A task counts as outstanding from the moment it is submitted until its work
// and its post-execution hooks have all returned, even if the work fails or
// panics. Waiting is therefore never satisfied early, and a task is never
// silently dropped.
//
// The hooks subpackage provides general-purpose hooks for counting, recording
// and limiting tasks, and the otsched subpackage provides logging, metrics and
// tracing hooks built on zap and OpenTelemetry.
package sched
