// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched

import (
	"github.com/petenewcomb/sched-go"
	"go.uber.org/zap"
)

// Instrumented combines logging, metrics and tracing hooks, in that order, so
// that all instrumentation can be applied at once:
//
//	hooks, err := otsched.Instrumented(logger, "jobs")
//	if err != nil {
//		return err
//	}
//	s := sched.NewBuilder().Hooks(hooks...).Build()
//
// The name is used as the metric prefix and as the tracer name.
func Instrumented(logger *zap.Logger, name string, opts ...Option) ([]sched.Hook, error) {
	metrics, err := Metrics(name, opts...)
	if err != nil {
		return nil, err
	}
	return []sched.Hook{
		Logging(logger),
		metrics,
		Tracing(name, opts...),
	}, nil
}
