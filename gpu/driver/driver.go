// SPDX-License-Identifier: Unlicense OR MIT

// Package driver defines the stateful graphics device the rendering
// layer drives. A Device is a thin, legacy-style state machine: every
// setter changes one piece of global device state, and draw calls use
// whatever state is current at the time of the call.
package driver

import (
	"errors"
	"image"

	"gioui.org/shader"
	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
)

// Device represents the abstraction of an underlying graphics API.
// Implementations need not filter redundant calls; the rendering
// layer only calls a setter when the requested value differs from the
// value it last set.
type Device interface {
	Caps() Caps
	// SurfaceSize returns the size of the main (displayed) surface.
	SurfaceSize() image.Point

	NewTexture(format gputypes.TextureFormat, width, height, levels int) (Texture, error)
	NewBuffer(typ BufferTarget, data []byte) (Buffer, error)
	NewVertexArray() (VertexArray, error)
	NewProgram(vertex, fragment shader.Sources) (Program, error)
	// NewFramebuffer creates an off-screen target rendering into the
	// given level of tex. It returns an error wrapping
	// ErrIncompleteFramebuffer if the device rejects the configuration.
	NewFramebuffer(tex Texture, level int) (Framebuffer, error)

	// BindFramebuffer redirects rendering; nil selects the main surface.
	BindFramebuffer(fb Framebuffer)
	BindProgram(p Program)
	BindVertexArray(a VertexArray)
	BindBuffer(target BufferTarget, b Buffer)
	BindTexture(unit int, t Texture)
	SetEnabled(c Capability, enable bool)
	SetMatrix(mode MatrixMode, m f32.Mat4)
	SetViewport(r image.Rectangle)
	SetScissor(r image.Rectangle)
	SetBlendFunc(src, dst gputypes.BlendFactor)
	SetDepthFunc(f gputypes.CompareFunction)
	SetDepthMask(mask bool)
	SetStencilFunc(f gputypes.CompareFunction, ref int, mask uint32)
	SetStencilOp(fail, depthFail, pass StencilOp)
	SetColorMask(r, g, b, a bool)
	SetClearColor(c [4]float32)
	SetClearDepth(d float32)
	SetColor(c [4]float32)
	SetPointSize(size float32)
	SetLineWidth(width float32)
	SetCullMode(m gputypes.CullMode)
	SetFrontFace(f gputypes.FrontFace)
	SetVertexAttrib(index int, a Attrib)

	Clear(mask ClearMask)
	DrawArrays(mode gputypes.PrimitiveTopology, first, count int)
	// DrawElements draws count 16-bit indices starting at index off of
	// the bound element array buffer.
	DrawElements(mode gputypes.PrimitiveTopology, off, count int)
	// CopyTexSubImage copies src from the current target into level of
	// dst at dstOrigin.
	CopyTexSubImage(dst Texture, level int, dstOrigin image.Point, src image.Rectangle)
	ReadPixels(src image.Rectangle, pixels []byte) error
	// WritePixels replaces the pixels of the current target at dst.
	WritePixels(dst image.Point, img *image.RGBA)

	// BeginFeedback switches the device to feedback mode: draws
	// rasterize nothing and record the window position of every
	// processed vertex, up to capacity vertices.
	BeginFeedback(capacity int)
	// EndFeedback leaves feedback mode. It returns ErrFeedbackOverflow
	// together with the truncated vertices if the capacity was exceeded.
	EndFeedback() ([]f32.Point, error)

	Release()
}

// Object is a device-side object.
type Object interface {
	Release()
}

type Texture interface {
	Object
	Size() image.Point
	Levels() int
	Upload(level int, offset image.Point, img *image.RGBA)
}

type Buffer interface {
	Object
	Size() int
	Upload(data []byte)
}

type VertexArray interface {
	Object
}

type Program interface {
	Object
}

type Framebuffer interface {
	Object
}

// Attrib describes the source of one vertex attribute. A zero Attrib
// disables the attribute. Buffer is nil for client-side sources, in
// which case Data holds the vertex data.
type Attrib struct {
	Enabled bool
	Buffer  Buffer
	// Data is the client-side array on devices without buffer objects.
	Data *[]float32
	// Size is the number of float32 components per vertex.
	Size   int
	Stride int
	Offset int
}

type Caps struct {
	// BottomLeftOrigin is true if the driver has the origin in the lower left
	// corner.
	BottomLeftOrigin bool
	Features         Features
	MaxTextureSize   int
	MaxTextureUnits  int
	MaxVertexAttribs int
	MaxPointSize     float32
}

type Features uint

type Capability uint8

type MatrixMode uint8

type BufferTarget uint8

type StencilOp uint8

type ClearMask uint8

const (
	// FeatureOffscreenTargets is set when NewFramebuffer is expected to
	// work.
	FeatureOffscreenTargets Features = 1 << iota
	// FeatureBufferObjects is set when vertex attributes can source
	// from buffer objects.
	FeatureBufferObjects
	FeatureFeedback
)

const (
	CapBlend Capability = iota
	CapDepthTest
	CapStencilTest
	CapScissorTest
	CapCullFace
	CapPointSmooth
	CapLineSmooth
	NumCapabilities
)

const (
	MatrixProjection MatrixMode = iota
	MatrixModelView
	MatrixTexture
	NumMatrixModes
)

const (
	BufferArray BufferTarget = iota
	BufferElementArray
	BufferUniform
	BufferPixelPack
	NumBufferTargets
)

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncr
	StencilDecr
	StencilInvert
	NumStencilOps
)

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil
)

var (
	ErrIncompleteFramebuffer = errors.New("incomplete framebuffer")
	ErrFeedbackOverflow      = errors.New("feedback buffer overflow")
	ErrContentLost           = errors.New("buffer content lost")
)

func (f Features) Has(feats Features) bool {
	return f&feats == feats
}

func (c Capability) String() string {
	switch c {
	case CapBlend:
		return "blend"
	case CapDepthTest:
		return "depth-test"
	case CapStencilTest:
		return "stencil-test"
	case CapScissorTest:
		return "scissor-test"
	case CapCullFace:
		return "cull-face"
	case CapPointSmooth:
		return "point-smooth"
	case CapLineSmooth:
		return "line-smooth"
	default:
		return "capability(?)"
	}
}

func (m MatrixMode) String() string {
	switch m {
	case MatrixProjection:
		return "projection"
	case MatrixModelView:
		return "modelview"
	case MatrixTexture:
		return "texture"
	default:
		return "matrix(?)"
	}
}

func (t BufferTarget) String() string {
	switch t {
	case BufferArray:
		return "array"
	case BufferElementArray:
		return "element-array"
	case BufferUniform:
		return "uniform"
	case BufferPixelPack:
		return "pixel-pack"
	default:
		return "buffer(?)"
	}
}

// DownloadImage reads r from the current target of d.
func DownloadImage(d Device, r image.Rectangle) (*image.RGBA, error) {
	img := image.NewRGBA(r)
	if err := d.ReadPixels(r, img.Pix); err != nil {
		return nil, err
	}
	if d.Caps().BottomLeftOrigin {
		// The origin is in the lower-left corner. Flip the image to
		// match.
		flipImageY(r.Dx()*4, r.Dy(), img.Pix)
	}
	return img, nil
}

func flipImageY(stride, height int, pixels []byte) {
	row := make([]uint8, stride)
	for y := 0; y < height/2; y++ {
		y1 := height - y - 1
		dest := y1 * stride
		src := y * stride
		copy(row, pixels[dest:])
		copy(pixels[dest:], pixels[src:src+len(row)])
		copy(pixels[src:], row)
	}
}
