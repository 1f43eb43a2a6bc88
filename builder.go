// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sched

import (
	"context"

	"go.uber.org/zap"
)

// A Builder accumulates the configuration of a [Scheduler]. It is the only way
// to obtain one: the hook set and other settings are fixed when
// [Builder.Build] is called and cannot be changed afterward, which frees the
// scheduler from synchronizing access to them.
//
// A Builder is single-use. Calling any of its methods after Build panics.
// Builders are not thread-safe.
type Builder struct {
	ctx    context.Context
	logger *zap.Logger
	hooks  []Hook
	built  bool
}

// NewBuilder returns a builder with an empty hook set, a background base
// context and a no-op logger.
func NewBuilder() *Builder {
	return &Builder{}
}

// New is shorthand for NewBuilder().Hooks(hooks...).Build().
func New(hooks ...Hook) *Scheduler {
	return NewBuilder().Hooks(hooks...).Build()
}

// Hooks appends hooks to the set that will be invoked for every task. May be
// called any number of times; registration order is preserved and determines
// the order in which hooks are invoked for each lifecycle event.
//
// Panics if any hook is nil.
func (b *Builder) Hooks(hooks ...Hook) *Builder {
	b.panicIfBuilt()
	for _, h := range hooks {
		if h == nil {
			panic("hook must be non-nil")
		}
	}
	b.hooks = append(b.hooks, hooks...)
	return b
}

// Context sets the base context passed to every [TaskFunc] and to the
// post-execution hooks. The scheduler never cancels it; callers that want
// tasks to observe cancellation may cancel it themselves.
func (b *Builder) Context(ctx context.Context) *Builder {
	b.panicIfBuilt()
	if ctx == nil {
		panic("context must be non-nil")
	}
	b.ctx = ctx
	return b
}

// Logger sets the logger used to report failures that have no caller to
// return to: post-execution hook errors and start hook errors encountered by
// [Scheduler.Go].
func (b *Builder) Logger(logger *zap.Logger) *Builder {
	b.panicIfBuilt()
	if logger == nil {
		panic("logger must be non-nil")
	}
	b.logger = logger
	return b
}

// Build finalizes the configuration and returns a new [Scheduler].
func (b *Builder) Build() *Scheduler {
	b.panicIfBuilt()
	b.built = true

	s := &Scheduler{
		ctx:    b.ctx,
		logger: b.logger,
		hooks:  make([]boundHook, len(b.hooks)),
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for i, h := range b.hooks {
		s.hooks[i] = bindHook(h)
	}
	b.hooks = nil
	return s
}

func (b *Builder) panicIfBuilt() {
	if b.built {
		panic("builder already built")
	}
}
