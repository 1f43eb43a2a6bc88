// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched

import (
	"github.com/petenewcomb/sched-go"
	"go.opentelemetry.io/otel/attribute"
)

const component = "otsched"

// taskAttributes returns the attributes identifying a task in metrics and
// spans.
func taskAttributes(task *sched.TaskType) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("task.name", task.Name()),
	}
	if kind := task.Kind(); kind != "" {
		attrs = append(attrs, attribute.String("task.kind", kind))
	}
	return attrs
}
