// SPDX-License-Identifier: Unlicense OR MIT

package state

import (
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/headless"
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
)

var surface = image.Pt(64, 48)

func TestCloneIsolation(t *testing.T) {
	v := Default(surface).Clone()
	c := v.Clone()
	c.SetColor([4]float32{1, 0, 0, 1})
	c.SetEnabled(driver.CapBlend, true)

	assert.Equal(t, [4]float32{1, 1, 1, 1}, v.Color())
	assert.False(t, v.Enabled(driver.CapBlend))
	assert.True(t, c.Enabled(driver.CapBlend))

	v.SetPointSize(4)
	assert.Equal(t, float32(1), c.PointSize())
}

func TestCloneSharesUntilWrite(t *testing.T) {
	v := Default(surface).Clone()
	c := v.Clone()
	assert.Same(t, v.s, c.s)
	// Setting an equal value does not copy.
	c.SetColor(v.Color())
	assert.Same(t, v.s, c.s)
	c.SetColor([4]float32{0, 0, 0, 1})
	assert.NotSame(t, v.s, c.s)
}

func TestDefaults(t *testing.T) {
	v := Default(surface)
	assert.Equal(t, image.Rect(0, 0, 64, 48), v.Viewport())
	assert.Equal(t, image.Rect(0, 0, 64, 48), v.Scissor())
	assert.Equal(t, f32.Identity4(), v.Matrix(driver.MatrixModelView))
	assert.Equal(t, BlendFunc{Src: gputypes.BlendFactorOne, Dst: gputypes.BlendFactorZero}, v.BlendFunc())
	assert.True(t, v.DepthMask())
	for c := driver.Capability(0); c < driver.NumCapabilities; c++ {
		assert.False(t, v.Enabled(c), c)
	}
	assert.Nil(t, v.Framebuffer())
	assert.Nil(t, v.Program())
}

func TestDiff(t *testing.T) {
	a := Default(surface).Clone()
	b := a.Clone()
	assert.Empty(t, a.Diff(b))
	assert.True(t, a.Equal(b))

	b.SetLineWidth(3)
	b.SetEnabled(driver.CapDepthTest, true)
	b.SetMatrix(driver.MatrixProjection, f32.Ortho(0, 1, 0, 1, -1, 1))
	assert.Equal(t, []Key{KeyLineWidth, EnableKey(driver.CapDepthTest), MatrixKey(driver.MatrixProjection)}, a.Diff(b))
	assert.False(t, a.Equal(b))

	// Applying the changes of b to a makes them equal.
	for _, k := range a.Diff(b) {
		a.Set(b.Change(k))
	}
	assert.True(t, a.Equal(b))
}

func TestApplyIdempotent(t *testing.T) {
	d := headless.New(headless.Options{Size: surface})
	a := NewApplier(surface)
	v := Default(surface).Clone()
	v.SetColor([4]float32{0, 1, 0, 1})

	n := a.Apply(d, v)
	assert.Equal(t, int(NumKeys), n)
	d.ResetCalls()

	assert.Zero(t, a.Apply(d, v))
	assert.Zero(t, d.TotalCalls())
}

func TestApplyIssuesOnlyDifferences(t *testing.T) {
	d := headless.New(headless.Options{Size: surface})
	a := NewApplier(surface)
	v := Default(surface).Clone()
	a.Apply(d, v)
	d.ResetCalls()

	v.SetColor([4]float32{0, 1, 0, 1})
	v.SetScissor(image.Rect(1, 2, 3, 4))
	assert.Equal(t, 2, a.Apply(d, v))
	assert.Equal(t, map[string]int{"SetColor": 1, "SetScissor": 1}, d.Calls())
	assert.True(t, a.Last().Equal(v))
}

func TestInvalidate(t *testing.T) {
	d := headless.New(headless.Options{Size: surface})
	a := NewApplier(surface)
	v := Default(surface).Clone()
	a.Apply(d, v)
	a.Invalidate()
	assert.False(t, a.Known(KeyColor))
	assert.Equal(t, int(NumKeys), a.Apply(d, v))
}

func TestAssume(t *testing.T) {
	d := headless.New(headless.Options{Size: surface})
	a := NewApplier(surface)
	v := Default(surface).Clone()
	a.Apply(d, v)

	other := v.Clone()
	other.SetPointSize(5)
	a.Assume(KeyPointSize, other.Get(KeyPointSize))
	d.ResetCalls()
	assert.Zero(t, a.Apply(d, other))
	assert.Equal(t, 1, a.Apply(d, v))
}

func TestHandleBindings(t *testing.T) {
	d := headless.New(headless.Options{Size: surface, BufferObjects: true})
	m := resource.NewManager(d, nil)
	buf, err := m.NewBuffer("verts", driver.BufferArray, make([]byte, 32))
	require.NoError(t, err)
	tex, err := m.NewTexture("tex", gputypes.TextureFormatRGBA8Unorm, 4, 4, 1)
	require.NoError(t, err)

	v := Default(surface).Clone()
	v.BindBuffer(driver.BufferArray, buf)
	v.BindTexture(2, tex)
	v.SetVertexAttrib(0, Attrib{Enabled: true, Buffer: buf, Size: 2})

	var got []*resource.Handle
	v.Handles(func(h *resource.Handle) { got = append(got, h) })
	assert.ElementsMatch(t, []*resource.Handle{buf, tex, buf}, got)
	assert.Equal(t, Attrib{Enabled: true, Buffer: buf, Size: 2}, v.VertexAttrib(0))

	a := NewApplier(surface)
	a.Apply(d, v)

	// Binding a handle of the wrong kind is a programming error.
	assertPrecondition(t, func() { v.BindTexture(0, buf) })
	assertPrecondition(t, func() { v.BindBuffer(driver.BufferArray, tex) })
}

func TestDisabledAttribCarriesNoSource(t *testing.T) {
	v := Default(surface).Clone()
	data := []float32{0, 0}
	v.SetVertexAttrib(1, Attrib{Enabled: true, Data: &data, Size: 2})
	v.SetVertexAttrib(1, Attrib{Data: &data, Size: 2})
	assert.Equal(t, Attrib{}, v.VertexAttrib(1))
	assert.True(t, v.Equal(Default(surface)))
}

func TestPreconditions(t *testing.T) {
	v := Default(surface).Clone()
	data := []float32{0}
	assertPrecondition(t, func() { v.SetPointSize(0) })
	assertPrecondition(t, func() { v.SetLineWidth(-1) })
	assertPrecondition(t, func() { v.SetViewport(image.Rectangle{Min: image.Pt(4, 4), Max: image.Pt(0, 0)}) })
	assertPrecondition(t, func() { v.BindTexture(MaxTextureUnits, nil) })
	assertPrecondition(t, func() { v.SetVertexAttrib(MaxVertexAttribs, Attrib{}) })
	assertPrecondition(t, func() { v.SetVertexAttrib(0, Attrib{Enabled: true, Size: 2}) })
	assertPrecondition(t, func() { v.SetVertexAttrib(0, Attrib{Enabled: true, Data: &data, Size: 5}) })
	assertPrecondition(t, func() { v.Get(NumKeys) })
}

func TestEnumRanges(t *testing.T) {
	v := Default(surface).Clone()
	blend := func(src, dst gputypes.BlendFactor) func() {
		return func() { v.SetBlendFunc(BlendFunc{Src: src, Dst: dst}) }
	}
	assertPrecondition(t, blend(gputypes.BlendFactorUndefined, gputypes.BlendFactorOne))
	assertPrecondition(t, blend(gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusConstant+1))
	assertPrecondition(t, func() { v.SetDepthFunc(gputypes.CompareFunctionUndefined) })
	assertPrecondition(t, func() { v.SetDepthFunc(gputypes.CompareFunctionAlways + 1) })
	assertPrecondition(t, func() { v.SetStencilFunc(StencilFunc{Func: gputypes.CompareFunction(42)}) })
	assertPrecondition(t, func() { v.SetCullMode(gputypes.CullModeBack + 1) })
	assertPrecondition(t, func() { v.SetFrontFace(gputypes.FrontFaceCW + 1) })
	assertPrecondition(t, func() { v.SetStencilOps(StencilOps{Pass: driver.NumStencilOps}) })
	// Rejected values leave the vector unchanged.
	assert.True(t, Default(surface).Equal(v))

	// Range bounds are accepted.
	blend(gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusConstant)()
	v.SetDepthFunc(gputypes.CompareFunctionNever)
	v.SetStencilFunc(StencilFunc{Func: gputypes.CompareFunctionAlways})
	v.SetCullMode(gputypes.CullModeNone)
	v.SetFrontFace(gputypes.FrontFaceCW)
	assert.Equal(t, BlendFunc{Src: gputypes.BlendFactorZero, Dst: gputypes.BlendFactorOneMinusConstant}, v.BlendFunc())
	assert.Equal(t, gputypes.CompareFunctionNever, v.DepthFunc())
	assert.Equal(t, gputypes.CullModeNone, v.CullMode())
	assert.Equal(t, gputypes.FrontFaceCW, v.FrontFace())
}

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "color", KeyColor.String())
	assert.Equal(t, "enable:blend", EnableKey(driver.CapBlend).String())
	assert.Equal(t, "texture:3", TextureKey(3).String())
}

func assertPrecondition(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		_, ok := r.(*precond.Error)
		assert.True(t, ok, "panic value %v is not a precondition error", r)
	}()
	f()
}
