// SPDX-License-Identifier: Unlicense OR MIT

package state

import (
	"image"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/resource"
)

// Applier mirrors the state last issued to a device and reconciles it
// with requested vectors. It is the only writer of that mirror.
type Applier struct {
	last *Vector
	// known[k] is false when the device value of k is unknown, for
	// example before the first Apply or after a foreign client used the
	// device.
	known [NumKeys]bool
}

// NewApplier returns an applier that knows nothing about the device.
func NewApplier(surface image.Point) *Applier {
	return &Applier{last: Default(surface).Clone()}
}

// Apply issues one device call for every key whose requested value in
// cur differs from the last applied value, and returns the number of
// calls issued. Applying the same vector twice issues no calls the
// second time.
func (a *Applier) Apply(dev driver.Device, cur *Vector) int {
	n := 0
	for k := Key(0); k < NumKeys; k++ {
		want := cur.s.vals[k]
		if a.known[k] && a.last.s.vals[k] == want {
			continue
		}
		issue(dev, k, want)
		a.last.set(k, want)
		a.known[k] = true
		n++
	}
	return n
}

// Invalidate forgets the device state so that the next Apply issues
// every key.
func (a *Applier) Invalidate() {
	a.known = [NumKeys]bool{}
}

// Assume records that the device holds v for key k without issuing a
// call, as when the device changed state as a side effect.
func (a *Applier) Assume(k Key, v Value) {
	a.last.set(k, v)
	a.known[k] = true
}

// Last returns a copy of the last applied state. Keys never applied
// hold their default values.
func (a *Applier) Last() *Vector {
	return a.last.Clone()
}

// Known reports whether the device value of k is known.
func (a *Applier) Known(k Key) bool {
	return a.known[k]
}

func issue(dev driver.Device, k Key, v Value) {
	switch {
	case k == KeyFramebuffer:
		var fb driver.Framebuffer
		if v.h != nil {
			fb = v.h.Object().(driver.Framebuffer)
		}
		dev.BindFramebuffer(fb)
	case k == KeyProgram:
		var p driver.Program
		if v.h != nil {
			p = v.h.Object().(driver.Program)
		}
		dev.BindProgram(p)
	case k == KeyVertexArray:
		var va driver.VertexArray
		if v.h != nil {
			va = v.h.Object().(driver.VertexArray)
		}
		dev.BindVertexArray(va)
	case k == KeyViewport:
		dev.SetViewport(valueRect(v))
	case k == KeyScissor:
		dev.SetScissor(valueRect(v))
	case k == KeyBlendFunc:
		dev.SetBlendFunc(gputypes.BlendFactor(v.i[0]), gputypes.BlendFactor(v.i[1]))
	case k == KeyDepthFunc:
		dev.SetDepthFunc(gputypes.CompareFunction(v.i[0]))
	case k == KeyDepthMask:
		dev.SetDepthMask(v.i[0] != 0)
	case k == KeyStencilFunc:
		dev.SetStencilFunc(gputypes.CompareFunction(v.i[0]), v.i[1], uint32(v.i[2]))
	case k == KeyStencilOp:
		dev.SetStencilOp(driver.StencilOp(v.i[0]), driver.StencilOp(v.i[1]), driver.StencilOp(v.i[2]))
	case k == KeyColorMask:
		dev.SetColorMask(v.i[0] != 0, v.i[1] != 0, v.i[2] != 0, v.i[3] != 0)
	case k == KeyClearColor:
		dev.SetClearColor(valueColor(v))
	case k == KeyClearDepth:
		dev.SetClearDepth(v.f[0])
	case k == KeyColor:
		dev.SetColor(valueColor(v))
	case k == KeyPointSize:
		dev.SetPointSize(v.f[0])
	case k == KeyLineWidth:
		dev.SetLineWidth(v.f[0])
	case k == KeyCullMode:
		dev.SetCullMode(gputypes.CullMode(v.i[0]))
	case k == KeyFrontFace:
		dev.SetFrontFace(gputypes.FrontFace(v.i[0]))
	case k < keyEnable0:
		dev.BindBuffer(driver.BufferTarget(k-keyBuffer0), deviceBuffer(v.h))
	case k < keyMatrix0:
		dev.SetEnabled(driver.Capability(k-keyEnable0), v.i[0] != 0)
	case k < keyTexture0:
		dev.SetMatrix(driver.MatrixMode(k-keyMatrix0), v.f)
	case k < keyAttrib0:
		var t driver.Texture
		if v.h != nil {
			t = v.h.Texture()
		}
		dev.BindTexture(int(k-keyTexture0), t)
	default:
		a := valueAttrib(v)
		dev.SetVertexAttrib(int(k-keyAttrib0), driver.Attrib{
			Enabled: a.Enabled,
			Buffer:  deviceBuffer(a.Buffer),
			Data:    a.Data,
			Size:    a.Size,
			Stride:  a.Stride,
			Offset:  a.Offset,
		})
	}
}

func deviceBuffer(h *resource.Handle) driver.Buffer {
	if h == nil {
		return nil
	}
	return h.Buffer()
}
