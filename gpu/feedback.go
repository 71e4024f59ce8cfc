// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"errors"
	"fmt"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
)

// Feedback is the result of a feedback capture.
type Feedback struct {
	Status FeedbackStatus
	// Vertices holds the window positions of the processed vertices,
	// truncated to the capacity on overflow.
	Vertices []f32.Point
}

type FeedbackStatus uint8

const (
	// FeedbackComplete means every vertex was captured.
	FeedbackComplete FeedbackStatus = iota
	// FeedbackOverflow means the capacity was exceeded. The capture
	// can be retried with a larger capacity.
	FeedbackOverflow
)

func (s FeedbackStatus) String() string {
	switch s {
	case FeedbackComplete:
		return "complete"
	case FeedbackOverflow:
		return "overflow"
	default:
		return "status(?)"
	}
}

// CaptureFeedback runs draw with the device in feedback mode, where
// draws rasterize nothing and the window positions of their vertices
// are captured, up to capacity vertices. It needs immediate draws and
// is not allowed in queue or compile blocks.
func (l *Layer) CaptureFeedback(capacity int, draw func()) (Feedback, error) {
	const op = "CaptureFeedback"
	l.current(op)
	l.mustNotPainting(op)
	if !l.caps.Features.Has(driver.FeatureFeedback) {
		precond.Panicf(op, "device has no feedback mode")
	}
	if capacity <= 0 {
		precond.Panicf(op, "invalid capacity %d", capacity)
	}
	if f := l.deferringFrame(); f != nil {
		precond.Panicf(op, "not allowed in a %s block", f.kind)
	}
	l.dev.BeginFeedback(capacity)
	ended := false
	defer func() {
		if !ended {
			l.dev.EndFeedback()
		}
	}()
	draw()
	ended = true
	pts, err := l.dev.EndFeedback()
	switch {
	case errors.Is(err, driver.ErrFeedbackOverflow):
		return Feedback{Status: FeedbackOverflow, Vertices: pts}, nil
	case err != nil:
		return Feedback{}, fmt.Errorf("gpu: feedback capture: %w", err)
	}
	return Feedback{Status: FeedbackComplete, Vertices: pts}, nil
}

// CaptureFeedbackGrow is like CaptureFeedback, doubling the capacity
// from initial after every overflow. It returns ErrCaptureOverflow if
// the capture overflows at limit.
func (l *Layer) CaptureFeedbackGrow(initial, limit int, draw func()) (Feedback, error) {
	if initial <= 0 || limit < initial {
		precond.Panicf("CaptureFeedbackGrow", "invalid capacities initial=%d limit=%d", initial, limit)
	}
	for capacity := initial; ; capacity = min(2*capacity, limit) {
		fb, err := l.CaptureFeedback(capacity, draw)
		if err != nil || fb.Status == FeedbackComplete {
			return fb, err
		}
		if capacity == limit {
			return Feedback{}, fmt.Errorf("%w: %d vertices", ErrCaptureOverflow, limit)
		}
		l.logger.Debug("gpu: feedback capture overflow, retrying", "capacity", capacity)
	}
}
