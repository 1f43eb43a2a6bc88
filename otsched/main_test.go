// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otsched_test

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
