// SPDX-License-Identifier: Unlicense OR MIT

// Package precond defines the panic value used for programming errors
// such as unbalanced scopes or out of range state.
package precond

import "fmt"

// Error describes a violated precondition of operation Op.
type Error struct {
	Op     string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gpu: %s: %s", e.Op, e.Reason)
}

// Panicf panics with an *Error.
func Panicf(op, format string, args ...any) {
	panic(&Error{Op: op, Reason: fmt.Sprintf(format, args...)})
}
