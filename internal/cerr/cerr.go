// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package cerr provides a string-based error type so that sentinel errors can
// be declared as constants.
package cerr

// Error is an error whose message is the string itself. Two Error values are
// equal, and match under errors.Is, exactly when their messages are equal.
type Error string

func (e Error) Error() string {
	return string(e)
}
