// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package hooks provides reusable [sched.Hook] implementations: simple event
// counters, a bounded event history, a tracker for the slowest tasks, and a
// per-kind concurrency limit.
//
// Every hook in this package is safe for concurrent use and may be shared
// among several schedulers.
package hooks
