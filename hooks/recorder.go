// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/petenewcomb/sched-go"
)

// Record is one lifecycle event captured by a [Recorder].
type Record struct {
	Event sched.Event
	Task  *sched.TaskType
	At    time.Time
	Err   error // set only for [sched.EventFailed]
}

// Recorder keeps a history of the most recent lifecycle events.
type Recorder struct {
	limit int

	mu      sync.Mutex
	records deque.Deque[Record]
}

var (
	_ sched.CompletionHook = (*Recorder)(nil)
	_ sched.FailureHook    = (*Recorder)(nil)
	_ sched.NamedHook      = (*Recorder)(nil)
)

// NewRecorder returns a Recorder that retains at most limit records, evicting
// the oldest first. A limit less than or equal to zero retains every record.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Name() string {
	return "recorder"
}

func (r *Recorder) OnTaskStart(_ context.Context, task *sched.TaskType) error {
	r.add(Record{Event: sched.EventStart, Task: task})
	return nil
}

func (r *Recorder) OnTaskComplete(_ context.Context, task *sched.TaskType) error {
	r.add(Record{Event: sched.EventComplete, Task: task})
	return nil
}

func (r *Recorder) OnTaskFailed(_ context.Context, task *sched.TaskType, err error) error {
	r.add(Record{Event: sched.EventFailed, Task: task, Err: err})
	return nil
}

func (r *Recorder) add(rec Record) {
	rec.At = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && r.records.Len() >= r.limit {
		r.records.PopFront()
	}
	r.records.PushBack(rec)
}

// Events returns a snapshot of the retained records, oldest first.
func (r *Recorder) Events() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, r.records.Len())
	for i := range out {
		out[i] = r.records.At(i)
	}
	return out
}

// Len returns the number of retained records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records.Len()
}
