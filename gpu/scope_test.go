// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"image"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/headless"
	"geoviz.org/render/gpu/state"
)

func TestBeginRenderOpensMainScope(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	require.False(t, l.Rendering())
	sc := l.BeginRender(nil)
	assert.True(t, l.Rendering())
	assert.Equal(t, 1, l.Depth())
	assert.Equal(t, KindRenderTarget, sc.Kind())
	k, ok := l.Innermost()
	require.True(t, ok)
	assert.Equal(t, KindRenderTarget, k)
	assertPrecondition(t, func() { l.BeginRender(nil) })
	sc.End()
	assert.False(t, l.Rendering())
	assert.Zero(t, l.Depth())

	// Scopes other than the render need a render in progress.
	assertPrecondition(t, func() { l.BeginStateBlock(true) })
	assertPrecondition(t, func() { l.BeginRenderQueueBlock() })
	assertPrecondition(t, func() { l.BeginCompileBlock(nil) })
	assert.Zero(t, l.Depth())
}

func TestStateBlockRestores(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	l.BeginRender(nil)
	defer l.EndRender()
	l.SetColor(red)
	l.Enable(driver.CapBlend)
	saved := l.State()

	sc := l.BeginStateBlock(false)
	assert.Equal(t, KindState, sc.Kind())
	assert.Equal(t, red, l.State().Color(), "state is inherited")
	l.SetColor(green)
	l.Disable(driver.CapBlend)
	l.SetViewport(image.Rect(1, 2, 3, 4))
	l.EndStateBlock()

	assert.True(t, saved.Equal(l.State()))
	assert.False(t, sc.Open())
}

func TestStateBlockReset(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	l.BeginRender(nil)
	defer l.EndRender()
	l.SetColor(red)
	l.Enable(driver.CapBlend)

	l.BeginStateBlock(true)
	assert.True(t, state.Default(image.Pt(surfaceSize, surfaceSize)).Equal(l.State()))
	l.EndStateBlock()

	assert.Equal(t, red, l.State().Color())
	assert.True(t, l.IsEnabled(driver.CapBlend))
}

func TestUnbalancedScopes(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	l.BeginRender(nil)
	defer l.EndRender()

	assertPrecondition(t, func() { l.EndStateBlock() })
	assertPrecondition(t, func() { l.EndRenderQueueBlock() })
	assertPrecondition(t, func() { l.EndCompileBlock() })
	assertPrecondition(t, func() { l.EndRenderTargetBlock() })

	st := l.BeginStateBlock(false)
	q := l.BeginRenderQueueBlock()
	assertPrecondition(t, func() { l.EndStateBlock() })
	assertPrecondition(t, st.End)
	k, ok := l.Innermost()
	require.True(t, ok)
	assert.Equal(t, KindRenderQueue, k)
	assert.Equal(t, 3, l.Depth())

	q.End()
	st.End()
	// Ending twice does nothing.
	st.End()
	assert.Equal(t, 1, l.Depth())
}

func TestRandomScopeBrackets(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	rng := rand.New(rand.NewPCG(1, 2))
	l.BeginRender(nil)

	type open struct {
		kind  ScopeKind
		saved *state.Vector
	}
	var stack []open
	end := func() {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch top.kind {
		case KindState:
			l.EndStateBlock()
		case KindRenderQueue:
			l.EndRenderQueueBlock()
		case KindCompile:
			l.EndCompileBlock().Release()
		}
		require.True(t, top.saved.Equal(l.State()), "state not restored by %s block", top.kind)
	}
	for i := 0; i < 1000; i++ {
		switch rng.IntN(4) {
		case 0:
			if len(stack) > 0 {
				end()
			}
		case 1:
			kinds := []ScopeKind{KindState, KindRenderQueue, KindCompile}
			k := kinds[rng.IntN(len(kinds))]
			saved := l.State()
			switch k {
			case KindState:
				l.BeginStateBlock(rng.IntN(4) == 0)
			case KindRenderQueue:
				l.BeginRenderQueueBlock()
			case KindCompile:
				l.BeginCompileBlock(nil)
			}
			stack = append(stack, open{kind: k, saved: saved})
		case 2:
			l.SetColor([4]float32{rng.Float32(), rng.Float32(), rng.Float32(), 1})
			l.SetPointSize(float32(1 + rng.IntN(8)))
			if rng.IntN(2) == 0 {
				l.Enable(driver.CapBlend)
			} else {
				l.Disable(driver.CapBlend)
			}
		case 3:
			point(l, float32(rng.IntN(surfaceSize)), float32(rng.IntN(surfaceSize)), red)
		}
		require.Equal(t, len(stack)+1, l.Depth())
	}
	for len(stack) > 0 {
		end()
	}
	l.EndRender()
	assert.Zero(t, l.Depth())
}

func TestScopeReleaseUnwinds(t *testing.T) {
	logs := captureLogs(t)
	l, dev := newTestLayer(t, headless.Options{})
	va, err := l.Resources().NewVertexArray("queued")
	require.NoError(t, err)
	tex, err := l.Resources().NewTexture("compiled", gputypes.TextureFormatRGBA8Unorm, 4, 4, 1)
	require.NoError(t, err)

	l.BeginRender(nil)
	l.SetColor(red)
	outer := l.BeginStateBlock(false)
	l.SetColor(green)
	l.BeginRenderQueueBlock()
	l.BindVertexArray(va)
	point(l, 4, 4, green)
	l.BeginCompileBlock(nil)
	l.BindTexture(0, tex)
	va.Release()
	tex.Release()
	assert.True(t, va.Alive(), "queued operation keeps the vertex array")
	assert.True(t, tex.Alive(), "compiled state keeps the texture")

	outer.Release()
	assert.Equal(t, 1, l.Depth())
	assert.Equal(t, red, l.State().Color())
	assert.False(t, va.Alive())
	assert.False(t, tex.Alive())
	assert.Zero(t, dev.Calls()["DrawArrays"])
	assert.Contains(t, logs.String(), "scope left open")
	assert.Contains(t, logs.String(), "queued operations discarded")

	// Releasing an ended scope does nothing.
	outer.Release()
	assert.Equal(t, 1, l.Depth())
	l.EndRender()
}

func TestScopeGuardOnPanic(t *testing.T) {
	l, _ := newTestLayer(t, headless.Options{})
	func() {
		defer func() {
			assert.Equal(t, "boom", recover())
		}()
		sc := l.BeginRender(nil)
		defer sc.Release()
		l.BeginStateBlock(false)
		l.BeginRenderQueueBlock()
		panic("boom")
	}()
	assert.False(t, l.Rendering())
	// The layer is usable again.
	l.BeginRender(nil)
	l.EndRender()
}

func TestScopeReleaseSwallowsCleanupPanic(t *testing.T) {
	logs := captureLogs(t)
	l, _ := newTestLayer(t, headless.Options{})
	p := &fakePainter{size: image.Pt(surfaceSize, surfaceSize), panicOnEndNative: true}
	sc := l.BeginRender(p)
	assert.NotPanics(t, sc.Release)
	assert.False(t, l.Rendering())
	assert.Contains(t, logs.String(), "scope cleanup failed")
}

func TestScopeKindString(t *testing.T) {
	assert.Equal(t, "state", KindState.String())
	assert.Equal(t, "render-target", KindRenderTarget.String())
	assert.Equal(t, "render-queue", KindRenderQueue.String())
	assert.Equal(t, "compile", KindCompile.String())
}
