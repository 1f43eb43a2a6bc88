// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"
)

// lifecycleStage represents the possible stages in a scheduler's lifecycle
type lifecycleStage int32

const (
	// stageOpen indicates that the scheduler is accepting new tasks
	stageOpen lifecycleStage = iota
	// stageClosed indicates that the scheduler is closed for new tasks but
	// existing tasks continue to run
	stageClosed
)

// Lifecycle tracks whether a scheduler still accepts submissions. The zero
// value is open.
type Lifecycle struct {
	currentStage atomic.Int32 // Contains a lifecycleStage value
}

// Close attempts to transition from Open to Closed. Returns true if this call
// performed the transition.
func (l *Lifecycle) Close() bool {
	return l.currentStage.CompareAndSwap(int32(stageOpen), int32(stageClosed))
}

// IsClosed reports whether Close has been called.
func (l *Lifecycle) IsClosed() bool {
	return lifecycleStage(l.currentStage.Load()) == stageClosed
}
