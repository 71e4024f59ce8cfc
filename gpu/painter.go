// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"image"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
)

// Painter is an external 2D painting surface sharing the device. The
// painter owns the device outside BeginNative and EndNative.
type Painter interface {
	// BeginNative hands the device over to the layer.
	BeginNative()
	// EndNative takes the device back.
	EndNative()
	// Transform returns the current transform of the painter.
	Transform() f32.Affine2D
	// Size returns the size of the painted surface.
	Size() image.Point
}

// BeginExternalPaint suspends the layer and hands the device back to
// the painter attached by BeginRender, which it returns. With no
// painter attached it returns nil and only marks painting active.
// Draws are not allowed until EndExternalPaint.
func (l *Layer) BeginExternalPaint() Painter {
	const op = "BeginExternalPaint"
	l.current(op)
	if l.painting {
		precond.Panicf(op, "external painting already active")
	}
	if f := l.deferringFrame(); f != nil {
		precond.Panicf(op, "not allowed in a %s block", f.kind)
	}
	l.painting = true
	if p := l.painter; p != nil {
		p.EndNative()
	}
	return l.painter
}

// EndExternalPaint resumes the layer. The device state left by the
// painter is unknown and is reissued by the next draw. With
// restoreTransforms the painter transform becomes the model-view
// matrix and the projection maps the painter surface in pixels, origin
// at the top left.
func (l *Layer) EndExternalPaint(restoreTransforms bool) {
	const op = "EndExternalPaint"
	l.current(op)
	if !l.painting {
		precond.Panicf(op, "no external painting active")
	}
	p := l.painter
	if restoreTransforms && p == nil {
		precond.Panicf(op, "no painter attached to restore transforms from")
	}
	l.painting = false
	if p == nil {
		return
	}
	p.BeginNative()
	l.applier.Invalidate()
	if restoreTransforms {
		sz := p.Size()
		l.SetMatrix(driver.MatrixModelView, f32.AffineMat4(p.Transform()))
		l.SetMatrix(driver.MatrixProjection, f32.Ortho(0, float32(sz.X), float32(sz.Y), 0, -1, 1))
	}
}
