// SPDX-License-Identifier: Unlicense OR MIT

package state

import (
	"image"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
)

// Default returns a vector holding the device defined default
// configuration for a surface of the given size: nothing bound, every
// toggle off, identity matrices and the viewport and scissor covering
// the surface. The returned vector is frozen; modifying it copies.
func Default(surface image.Point) *Vector {
	v := &Vector{s: &snapshot{}}
	for m := driver.MatrixMode(0); m < driver.NumMatrixModes; m++ {
		v.SetMatrix(m, f32.Identity4())
	}
	r := image.Rectangle{Max: surface}
	v.SetViewport(r)
	v.SetScissor(r)
	v.SetBlendFunc(BlendFunc{Src: gputypes.BlendFactorOne, Dst: gputypes.BlendFactorZero})
	v.SetDepthFunc(gputypes.CompareFunctionLess)
	v.SetDepthMask(true)
	v.SetStencilFunc(StencilFunc{Func: gputypes.CompareFunctionAlways, Mask: ^uint32(0)})
	v.SetStencilOps(StencilOps{Fail: driver.StencilKeep, DepthFail: driver.StencilKeep, Pass: driver.StencilKeep})
	v.SetColorMask(true, true, true, true)
	v.SetClearDepth(1)
	v.SetColor([4]float32{1, 1, 1, 1})
	v.SetPointSize(1)
	v.SetLineWidth(1)
	v.SetCullMode(gputypes.CullModeBack)
	v.SetFrontFace(gputypes.FrontFaceCCW)
	v.s.frozen = true
	return v
}
