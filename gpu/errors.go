// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"errors"
	"fmt"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
)

// PreconditionError is the panic value for programming errors: scopes
// ended out of order, state out of range, draws outside a render and
// similar misuse.
type PreconditionError = precond.Error

var (
	// ErrIncompleteTarget is returned when the device rejects the
	// off-screen configuration of a render target.
	ErrIncompleteTarget = fmt.Errorf("gpu: incomplete render target: %w", driver.ErrIncompleteFramebuffer)
	// ErrCaptureOverflow is returned when feedback capture overflows
	// even at the largest allowed capacity.
	ErrCaptureOverflow = fmt.Errorf("gpu: capture overflow: %w", driver.ErrFeedbackOverflow)
)

// IsPrecondition reports whether v, typically a recovered panic value,
// is a *PreconditionError or an error wrapping one.
func IsPrecondition(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var perr *PreconditionError
	return errors.As(err, &perr)
}
