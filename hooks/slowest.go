// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/addrummond/heap"
	"github.com/petenewcomb/sched-go"
)

// Timing records how long a finished task ran.
type Timing struct {
	Task     *sched.TaskType
	Duration time.Duration
	Failed   bool
}

// Cmp orders timings by duration, breaking ties by task ID so that the order
// is total.
func (a *Timing) Cmp(b *Timing) int {
	switch {
	case a.Duration < b.Duration:
		return -1
	case a.Duration > b.Duration:
		return 1
	case a.Task.ID() < b.Task.ID():
		return -1
	case a.Task.ID() > b.Task.ID():
		return 1
	default:
		return 0
	}
}

// Slowest tracks the n slowest tasks to have finished. Durations are measured
// from the start hook to the completion or failure hook.
type Slowest struct {
	n   int
	now func() time.Time

	mu      sync.Mutex
	started map[uint64]time.Time
	// Min-heap so that the fastest retained timing is the one evicted.
	top  heap.Heap[Timing, heap.Min]
	size int
}

var (
	_ sched.CompletionHook = (*Slowest)(nil)
	_ sched.FailureHook    = (*Slowest)(nil)
	_ sched.NamedHook      = (*Slowest)(nil)
)

// NewSlowest returns a Slowest retaining n timings. Panics if n is not
// positive.
func NewSlowest(n int) *Slowest {
	if n <= 0 {
		panic("n must be positive")
	}
	return &Slowest{
		n:       n,
		now:     time.Now,
		started: make(map[uint64]time.Time),
	}
}

func (s *Slowest) Name() string {
	return "slowest"
}

func (s *Slowest) OnTaskStart(_ context.Context, task *sched.TaskType) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[task.ID()] = now
	return nil
}

func (s *Slowest) OnTaskComplete(_ context.Context, task *sched.TaskType) error {
	s.finish(task, false)
	return nil
}

func (s *Slowest) OnTaskFailed(_ context.Context, task *sched.TaskType, _ error) error {
	s.finish(task, true)
	return nil
}

func (s *Slowest) finish(task *sched.TaskType, failed bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	startedAt, ok := s.started[task.ID()]
	if !ok {
		return
	}
	delete(s.started, task.ID())

	t := Timing{Task: task, Duration: now.Sub(startedAt), Failed: failed}
	if s.size < s.n {
		heap.PushOrderable(&s.top, t)
		s.size++
		return
	}
	if fastest, _ := heap.Peek(&s.top); t.Cmp(&fastest) <= 0 {
		return
	}
	_, _ = heap.PopOrderable(&s.top)
	heap.PushOrderable(&s.top, t)
}

// Top returns the retained timings, slowest first.
func (s *Slowest) Top() []Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timing, s.size)
	for i := s.size - 1; i >= 0; i-- {
		out[i], _ = heap.PopOrderable(&s.top)
	}
	for _, t := range out {
		heap.PushOrderable(&s.top, t)
	}
	return out
}
