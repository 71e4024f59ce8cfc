// SPDX-License-Identifier: Unlicense OR MIT

// Package state implements the copy-on-write vector of tracked device
// state and the engine that reconciles it with a device.
package state

import (
	"image"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
)

// Value is the value of a single Key. Values are comparable; two
// values are equal exactly when setting either leaves the device in the
// same state, handles being compared by identity.
type Value struct {
	h *resource.Handle
	// data is the client-side array of a vertex attribute.
	data *[]float32
	i    [4]int
	f    [16]float32
}

// Change sets Key to Value.
type Change struct {
	Key   Key
	Value Value
}

// Handle returns the resource referenced by v, if any.
func (v Value) Handle() *resource.Handle {
	return v.h
}

// Attrib is the source of one vertex attribute. Buffer is nil for
// client-side arrays.
type Attrib struct {
	Enabled bool
	Buffer  *resource.Handle
	Data    *[]float32
	Size    int
	Stride  int
	Offset  int
}

// BlendFunc is the source and destination blend factor pair.
type BlendFunc struct {
	Src, Dst gputypes.BlendFactor
}

// StencilFunc is the stencil test configuration.
type StencilFunc struct {
	Func gputypes.CompareFunction
	Ref  int
	Mask uint32
}

// StencilOps are the actions taken on stencil fail, depth fail and pass.
type StencilOps struct {
	Fail, DepthFail, Pass driver.StencilOp
}

// Vector is a snapshot of every tracked device setting. Clones share
// storage until one of them is modified.
type Vector struct {
	s *snapshot
}

type snapshot struct {
	// frozen is set once the snapshot is shared by more than one Vector.
	frozen bool
	vals   [NumKeys]Value
}

// Clone returns a vector equal to v. Neither v's nor the clone's later
// modifications are visible to the other.
func (v *Vector) Clone() *Vector {
	v.s.frozen = true
	return &Vector{s: v.s}
}

// Get returns the value of k.
func (v *Vector) Get(k Key) Value {
	if k >= NumKeys {
		panicRange("Get", "key", int(k), int(NumKeys))
	}
	return v.s.vals[k]
}

// Set applies a change.
func (v *Vector) Set(c Change) {
	if c.Key >= NumKeys {
		panicRange("Set", "key", int(c.Key), int(NumKeys))
	}
	v.set(c.Key, c.Value)
}

// Change returns the change that sets k to its value in v.
func (v *Vector) Change(k Key) Change {
	return Change{Key: k, Value: v.Get(k)}
}

// Equal reports whether v and o hold the same value for every key.
func (v *Vector) Equal(o *Vector) bool {
	return v.s == o.s || v.s.vals == o.s.vals
}

// Diff returns the keys whose values differ between v and o, in key
// order.
func (v *Vector) Diff(o *Vector) []Key {
	if v.s == o.s {
		return nil
	}
	var keys []Key
	for k := range v.s.vals {
		if v.s.vals[k] != o.s.vals[k] {
			keys = append(keys, Key(k))
		}
	}
	return keys
}

// Handles calls f for every resource referenced by v.
func (v *Vector) Handles(f func(*resource.Handle)) {
	for _, val := range v.s.vals {
		if val.h != nil {
			f(val.h)
		}
	}
}

func (v *Vector) set(k Key, val Value) {
	if v.s.vals[k] == val {
		return
	}
	if v.s.frozen {
		s := &snapshot{vals: v.s.vals}
		v.s = s
	}
	v.s.vals[k] = val
}

func (v *Vector) setHandle(op string, k Key, h *resource.Handle, kind resource.Kind) {
	if h != nil && h.Kind() != kind {
		precond.Panicf(op, "%s is not a %s", h, kind)
	}
	v.set(k, Value{h: h})
}

func (v *Vector) BindFramebuffer(fb *resource.Handle) {
	v.setHandle("BindFramebuffer", KeyFramebuffer, fb, resource.KindFramebuffer)
}

func (v *Vector) Framebuffer() *resource.Handle { return v.s.vals[KeyFramebuffer].h }

func (v *Vector) BindProgram(p *resource.Handle) {
	v.setHandle("BindProgram", KeyProgram, p, resource.KindProgram)
}

func (v *Vector) Program() *resource.Handle { return v.s.vals[KeyProgram].h }

func (v *Vector) BindVertexArray(a *resource.Handle) {
	v.setHandle("BindVertexArray", KeyVertexArray, a, resource.KindVertexArray)
}

func (v *Vector) VertexArray() *resource.Handle { return v.s.vals[KeyVertexArray].h }

func (v *Vector) BindBuffer(t driver.BufferTarget, b *resource.Handle) {
	v.setHandle("BindBuffer", BufferKey(t), b, resource.KindBuffer)
}

func (v *Vector) Buffer(t driver.BufferTarget) *resource.Handle {
	return v.s.vals[BufferKey(t)].h
}

func (v *Vector) BindTexture(unit int, t *resource.Handle) {
	v.setHandle("BindTexture", TextureKey(unit), t, resource.KindTexture)
}

func (v *Vector) Texture(unit int) *resource.Handle {
	return v.s.vals[TextureKey(unit)].h
}

func (v *Vector) SetEnabled(c driver.Capability, enable bool) {
	v.set(EnableKey(c), Value{i: [4]int{b2i(enable)}})
}

func (v *Vector) Enabled(c driver.Capability) bool {
	return v.s.vals[EnableKey(c)].i[0] != 0
}

func (v *Vector) SetMatrix(mode driver.MatrixMode, m f32.Mat4) {
	v.set(MatrixKey(mode), Value{f: m})
}

func (v *Vector) Matrix(mode driver.MatrixMode) f32.Mat4 {
	return v.s.vals[MatrixKey(mode)].f
}

func (v *Vector) SetViewport(r image.Rectangle) {
	v.set(KeyViewport, rectValue("SetViewport", r))
}

func (v *Vector) Viewport() image.Rectangle {
	return valueRect(v.s.vals[KeyViewport])
}

func (v *Vector) SetScissor(r image.Rectangle) {
	v.set(KeyScissor, rectValue("SetScissor", r))
}

func (v *Vector) Scissor() image.Rectangle {
	return valueRect(v.s.vals[KeyScissor])
}

func (v *Vector) SetBlendFunc(b BlendFunc) {
	mustEnum("SetBlendFunc", "source blend factor", b.Src, gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusConstant)
	mustEnum("SetBlendFunc", "destination blend factor", b.Dst, gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusConstant)
	v.set(KeyBlendFunc, Value{i: [4]int{int(b.Src), int(b.Dst)}})
}

func (v *Vector) BlendFunc() BlendFunc {
	i := v.s.vals[KeyBlendFunc].i
	return BlendFunc{Src: gputypes.BlendFactor(i[0]), Dst: gputypes.BlendFactor(i[1])}
}

func (v *Vector) SetDepthFunc(f gputypes.CompareFunction) {
	mustEnum("SetDepthFunc", "depth function", f, gputypes.CompareFunctionNever, gputypes.CompareFunctionAlways)
	v.set(KeyDepthFunc, Value{i: [4]int{int(f)}})
}

func (v *Vector) DepthFunc() gputypes.CompareFunction {
	return gputypes.CompareFunction(v.s.vals[KeyDepthFunc].i[0])
}

func (v *Vector) SetDepthMask(mask bool) {
	v.set(KeyDepthMask, Value{i: [4]int{b2i(mask)}})
}

func (v *Vector) DepthMask() bool {
	return v.s.vals[KeyDepthMask].i[0] != 0
}

func (v *Vector) SetStencilFunc(s StencilFunc) {
	mustEnum("SetStencilFunc", "stencil function", s.Func, gputypes.CompareFunctionNever, gputypes.CompareFunctionAlways)
	v.set(KeyStencilFunc, Value{i: [4]int{int(s.Func), s.Ref, int(s.Mask)}})
}

func (v *Vector) StencilFunc() StencilFunc {
	i := v.s.vals[KeyStencilFunc].i
	return StencilFunc{Func: gputypes.CompareFunction(i[0]), Ref: i[1], Mask: uint32(i[2])}
}

func (v *Vector) SetStencilOps(s StencilOps) {
	for _, op := range [...]driver.StencilOp{s.Fail, s.DepthFail, s.Pass} {
		if op >= driver.NumStencilOps {
			panicRange("SetStencilOps", "stencil op", int(op), int(driver.NumStencilOps))
		}
	}
	v.set(KeyStencilOp, Value{i: [4]int{int(s.Fail), int(s.DepthFail), int(s.Pass)}})
}

func (v *Vector) StencilOps() StencilOps {
	i := v.s.vals[KeyStencilOp].i
	return StencilOps{Fail: driver.StencilOp(i[0]), DepthFail: driver.StencilOp(i[1]), Pass: driver.StencilOp(i[2])}
}

func (v *Vector) SetColorMask(r, g, b, a bool) {
	v.set(KeyColorMask, Value{i: [4]int{b2i(r), b2i(g), b2i(b), b2i(a)}})
}

func (v *Vector) ColorMask() (r, g, b, a bool) {
	i := v.s.vals[KeyColorMask].i
	return i[0] != 0, i[1] != 0, i[2] != 0, i[3] != 0
}

func (v *Vector) SetClearColor(c [4]float32) {
	v.set(KeyClearColor, colorValue(c))
}

func (v *Vector) ClearColor() [4]float32 {
	return valueColor(v.s.vals[KeyClearColor])
}

func (v *Vector) SetClearDepth(d float32) {
	v.set(KeyClearDepth, Value{f: [16]float32{d}})
}

func (v *Vector) ClearDepth() float32 {
	return v.s.vals[KeyClearDepth].f[0]
}

func (v *Vector) SetColor(c [4]float32) {
	v.set(KeyColor, colorValue(c))
}

func (v *Vector) Color() [4]float32 {
	return valueColor(v.s.vals[KeyColor])
}

func (v *Vector) SetPointSize(size float32) {
	if !(size > 0) {
		precond.Panicf("SetPointSize", "invalid point size %v", size)
	}
	v.set(KeyPointSize, Value{f: [16]float32{size}})
}

func (v *Vector) PointSize() float32 {
	return v.s.vals[KeyPointSize].f[0]
}

func (v *Vector) SetLineWidth(width float32) {
	if !(width > 0) {
		precond.Panicf("SetLineWidth", "invalid line width %v", width)
	}
	v.set(KeyLineWidth, Value{f: [16]float32{width}})
}

func (v *Vector) LineWidth() float32 {
	return v.s.vals[KeyLineWidth].f[0]
}

func (v *Vector) SetCullMode(m gputypes.CullMode) {
	mustEnum("SetCullMode", "cull mode", m, gputypes.CullModeNone, gputypes.CullModeBack)
	v.set(KeyCullMode, Value{i: [4]int{int(m)}})
}

func (v *Vector) CullMode() gputypes.CullMode {
	return gputypes.CullMode(v.s.vals[KeyCullMode].i[0])
}

func (v *Vector) SetFrontFace(f gputypes.FrontFace) {
	mustEnum("SetFrontFace", "front face", f, gputypes.FrontFaceCCW, gputypes.FrontFaceCW)
	v.set(KeyFrontFace, Value{i: [4]int{int(f)}})
}

func (v *Vector) FrontFace() gputypes.FrontFace {
	return gputypes.FrontFace(v.s.vals[KeyFrontFace].i[0])
}

// SetVertexAttrib sets the source of vertex attribute index. A
// disabled attribute carries no source.
func (v *Vector) SetVertexAttrib(index int, a Attrib) {
	k := AttribKey(index)
	if !a.Enabled {
		v.set(k, Value{})
		return
	}
	if a.Size < 1 || a.Size > 4 || a.Stride < 0 || a.Offset < 0 {
		precond.Panicf("SetVertexAttrib", "invalid layout size=%d stride=%d offset=%d", a.Size, a.Stride, a.Offset)
	}
	if (a.Buffer == nil) == (a.Data == nil) {
		precond.Panicf("SetVertexAttrib", "attribute %d needs exactly one of a buffer or client data", index)
	}
	if a.Buffer != nil && a.Buffer.Kind() != resource.KindBuffer {
		precond.Panicf("SetVertexAttrib", "%s is not a buffer", a.Buffer)
	}
	v.set(k, Value{h: a.Buffer, data: a.Data, i: [4]int{1, a.Size, a.Stride, a.Offset}})
}

func (v *Vector) VertexAttrib(index int) Attrib {
	val := v.s.vals[AttribKey(index)]
	return valueAttrib(val)
}

func valueAttrib(val Value) Attrib {
	return Attrib{
		Enabled: val.i[0] != 0,
		Buffer:  val.h,
		Data:    val.data,
		Size:    val.i[1],
		Stride:  val.i[2],
		Offset:  val.i[3],
	}
}

func rectValue(op string, r image.Rectangle) Value {
	if r.Dx() < 0 || r.Dy() < 0 {
		precond.Panicf(op, "negative size rectangle %v", r)
	}
	return Value{i: [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}}
}

func valueRect(v Value) image.Rectangle {
	return image.Rect(v.i[0], v.i[1], v.i[2], v.i[3])
}

func colorValue(c [4]float32) Value {
	return Value{f: [16]float32{c[0], c[1], c[2], c[3]}}
}

func valueColor(v Value) [4]float32 {
	return [4]float32{v.f[0], v.f[1], v.f[2], v.f[3]}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func panicRange(op, what string, v, n int) {
	precond.Panicf(op, "%s %d out of range [0, %d)", what, v, n)
}

// mustEnum panics unless lo <= e <= hi.
func mustEnum[E ~uint32](op, what string, e, lo, hi E) {
	if e < lo || e > hi {
		precond.Panicf(op, "invalid %s %d", what, uint32(e))
	}
}
