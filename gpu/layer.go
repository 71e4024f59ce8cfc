// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
	"geoviz.org/render/gpu/state"
	"geoviz.org/render/gpu/tile"
)

// Layer tracks the state of a device and mediates every access to it.
type Layer struct {
	dev    driver.Device
	res    *resource.Manager
	caps   driver.Caps
	cfg    Config
	logger *slog.Logger
	path   Path

	surface  image.Point
	defaults *state.Vector
	applier  *state.Applier
	// cur is the state requested by the client.
	cur *state.Vector

	frames   []*frame
	painter  Painter
	painting bool
	// clientArrays is set when vertex attributes cannot source from
	// buffer objects.
	clientArrays bool

	stats Stats
}

// Path is the mechanism used for render targets.
type Path uint8

const (
	// PathNative renders into off-screen framebuffers.
	PathNative Path = iota
	// PathTiled renders tiles on the main surface and copies them
	// into the target.
	PathTiled
)

// Stats counts the work done by a Layer.
type Stats struct {
	// Applies is the number of times the requested state was
	// reconciled with the device.
	Applies int
	// StateCalls is the number of device state calls issued.
	StateCalls int
	// Draws is the number of clears and draws issued to the device.
	Draws int
	// Queued is the number of operations deferred by render queues.
	Queued int
	// Flushed is the number of queued operations replayed.
	Flushed int
	// Recorded is the number of entries recorded by compile blocks.
	Recorded int
	// Tiles is the number of render-target tiles completed.
	Tiles int
}

func (p Path) String() string {
	switch p {
	case PathNative:
		return "native"
	case PathTiled:
		return "tiled"
	default:
		return "path(?)"
	}
}

// New creates a layer for dev. It probes the device for off-screen
// target support and selects the render-target path once.
func New(dev driver.Device, opts ...Option) (*Layer, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return NewWithConfig(dev, cfg)
}

// NewWithConfig is like New with an explicit configuration.
func NewWithConfig(dev driver.Device, cfg Config) (*Layer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := Logger()
	l := &Layer{
		dev:    dev,
		res:    resource.NewManager(dev, logger),
		caps:   dev.Caps(),
		cfg:    cfg,
		logger: logger,
	}
	l.clientArrays = !l.caps.Features.Has(driver.FeatureBufferObjects)
	switch {
	case cfg.Tiling.ForceEmulation:
		l.path = PathTiled
	case l.res.OffscreenSupported():
		l.path = PathNative
	default:
		l.path = PathTiled
	}
	l.resize(dev.SurfaceSize())
	l.applier = state.NewApplier(l.surface)
	logger.Debug("gpu: render target path selected", "path", l.path, "client_arrays", l.clientArrays)
	return l, nil
}

func (l *Layer) resize(sz image.Point) {
	l.surface = sz
	l.defaults = state.Default(sz)
}

// Release frees the device objects owned by the layer. The device
// itself is not released.
func (l *Layer) Release() {
	if len(l.frames) > 0 {
		precond.Panicf("Release", "render in progress")
	}
	l.res.Release()
}

// Resources returns the manager allocating device objects for l.
func (l *Layer) Resources() *resource.Manager {
	return l.res
}

// Caps returns the capabilities of the device.
func (l *Layer) Caps() driver.Caps {
	return l.caps
}

// Path returns the render-target path selected at creation.
func (l *Layer) Path() Path {
	return l.path
}

// Config returns the configuration of l.
func (l *Layer) Config() Config {
	return l.cfg
}

// Stats returns the counters accumulated since the last ResetStats.
func (l *Layer) Stats() Stats {
	return l.stats
}

// ResetStats zeroes the counters.
func (l *Layer) ResetStats() {
	l.stats = Stats{}
}

// BeginRender starts rendering to the main surface with the default
// state. The painter, if not nil, currently owns the device; its
// BeginNative method is called to hand the device over and the layer
// forgets what it knows about the device state.
func (l *Layer) BeginRender(p Painter) *Scope {
	if len(l.frames) > 0 {
		precond.Panicf("BeginRender", "render already in progress")
	}
	if sz := l.dev.SurfaceSize(); sz != l.surface {
		l.resize(sz)
	}
	l.painter = p
	if p != nil {
		p.BeginNative()
		l.applier.Invalidate()
	}
	l.cur = l.defaults.Clone()
	tr := &TargetRender{l: l, vp: image.Rectangle{Max: l.surface}, main: true}
	tr.tiles = tile.Native(tr.vp)
	tr.base = l.cur.Clone()
	f := l.push(KindRenderTarget)
	f.target = tr
	tr.Scope = f.scope
	return f.scope
}

// EndRender ends the render started by BeginRender and hands the
// device back to the painter.
func (l *Layer) EndRender() {
	if len(l.frames) == 0 {
		precond.Panicf("EndRender", "no render in progress")
	}
	if len(l.frames) > 1 {
		precond.Panicf("EndRender", "%d scopes still open, innermost %s", len(l.frames)-1, l.frames[len(l.frames)-1].kind)
	}
	if l.painting {
		precond.Panicf("EndRender", "external painting active")
	}
	l.pop(KindRenderTarget, "EndRender")
	l.cur = nil
	if p := l.painter; p != nil {
		l.painter = nil
		p.EndNative()
	}
}

// Rendering reports whether a render is in progress.
func (l *Layer) Rendering() bool {
	return len(l.frames) > 0
}

// current returns the requested state, panicking outside a render.
func (l *Layer) current(op string) *state.Vector {
	if len(l.frames) == 0 {
		precond.Panicf(op, "no render in progress")
	}
	return l.cur
}

// update runs a setter on the requested state and records the
// resulting value of k in the innermost open compile block.
func (l *Layer) update(op string, k state.Key, set func(v *state.Vector)) {
	v := l.current(op)
	set(v)
	if f := l.compileFrame(); f != nil {
		f.compiled.record(entry{kind: entryChange, change: v.Change(k)})
		l.stats.Recorded++
	}
}

// sync reconciles the device with the requested state.
func (l *Layer) sync(v *state.Vector) {
	l.stats.StateCalls += l.applier.Apply(l.dev, v)
	l.stats.Applies++
}

// BindProgram selects the shader program used by draws.
func (l *Layer) BindProgram(p *resource.Handle) {
	l.update("BindProgram", state.KeyProgram, func(v *state.Vector) { v.BindProgram(p) })
}

// BindVertexArray selects the vertex array object.
func (l *Layer) BindVertexArray(a *resource.Handle) {
	l.update("BindVertexArray", state.KeyVertexArray, func(v *state.Vector) { v.BindVertexArray(a) })
}

// BindBuffer binds b to target t.
func (l *Layer) BindBuffer(t driver.BufferTarget, b *resource.Handle) {
	l.update("BindBuffer", state.BufferKey(t), func(v *state.Vector) { v.BindBuffer(t, b) })
}

// BindTexture binds t to texture unit unit.
func (l *Layer) BindTexture(unit int, t *resource.Handle) {
	if n := l.caps.MaxTextureUnits; n > 0 && unit >= n {
		precond.Panicf("BindTexture", "texture unit %d exceeds device limit %d", unit, n)
	}
	l.update("BindTexture", state.TextureKey(unit), func(v *state.Vector) { v.BindTexture(unit, t) })
}

// Enable turns capability c on.
func (l *Layer) Enable(c driver.Capability) {
	l.update("Enable", state.EnableKey(c), func(v *state.Vector) { v.SetEnabled(c, true) })
}

// Disable turns capability c off.
func (l *Layer) Disable(c driver.Capability) {
	l.update("Disable", state.EnableKey(c), func(v *state.Vector) { v.SetEnabled(c, false) })
}

// SetMatrix replaces the matrix of mode.
func (l *Layer) SetMatrix(mode driver.MatrixMode, m f32.Mat4) {
	l.update("SetMatrix", state.MatrixKey(mode), func(v *state.Vector) { v.SetMatrix(mode, m) })
}

// LoadIdentity resets the matrix of mode to the identity.
func (l *Layer) LoadIdentity(mode driver.MatrixMode) {
	l.SetMatrix(mode, f32.Identity4())
}

// MultMatrix post-multiplies the matrix of mode by m.
func (l *Layer) MultMatrix(mode driver.MatrixMode, m f32.Mat4) {
	cur := l.current("MultMatrix").Matrix(mode)
	l.SetMatrix(mode, f32.Mul4(cur, m))
}

// SetViewport sets the viewport in target coordinates.
func (l *Layer) SetViewport(r image.Rectangle) {
	l.update("SetViewport", state.KeyViewport, func(v *state.Vector) { v.SetViewport(r) })
}

// SetScissor sets the scissor rectangle in target coordinates.
func (l *Layer) SetScissor(r image.Rectangle) {
	l.update("SetScissor", state.KeyScissor, func(v *state.Vector) { v.SetScissor(r) })
}

// SetBlendFunc sets the source and destination blend factors.
func (l *Layer) SetBlendFunc(src, dst gputypes.BlendFactor) {
	l.update("SetBlendFunc", state.KeyBlendFunc, func(v *state.Vector) {
		v.SetBlendFunc(state.BlendFunc{Src: src, Dst: dst})
	})
}

// SetDepthFunc sets the depth comparison.
func (l *Layer) SetDepthFunc(f gputypes.CompareFunction) {
	l.update("SetDepthFunc", state.KeyDepthFunc, func(v *state.Vector) { v.SetDepthFunc(f) })
}

// SetDepthMask enables or disables depth writes.
func (l *Layer) SetDepthMask(mask bool) {
	l.update("SetDepthMask", state.KeyDepthMask, func(v *state.Vector) { v.SetDepthMask(mask) })
}

// SetStencilFunc sets the stencil comparison, reference and mask.
func (l *Layer) SetStencilFunc(f gputypes.CompareFunction, ref int, mask uint32) {
	l.update("SetStencilFunc", state.KeyStencilFunc, func(v *state.Vector) {
		v.SetStencilFunc(state.StencilFunc{Func: f, Ref: ref, Mask: mask})
	})
}

// SetStencilOp sets the stencil actions on stencil failure, depth
// failure and pass.
func (l *Layer) SetStencilOp(fail, depthFail, pass driver.StencilOp) {
	l.update("SetStencilOp", state.KeyStencilOp, func(v *state.Vector) {
		v.SetStencilOps(state.StencilOps{Fail: fail, DepthFail: depthFail, Pass: pass})
	})
}

// SetColorMask selects the color channels written by draws.
func (l *Layer) SetColorMask(r, g, b, a bool) {
	l.update("SetColorMask", state.KeyColorMask, func(v *state.Vector) { v.SetColorMask(r, g, b, a) })
}

// SetClearColor sets the color used by Clear.
func (l *Layer) SetClearColor(c [4]float32) {
	l.update("SetClearColor", state.KeyClearColor, func(v *state.Vector) { v.SetClearColor(c) })
}

// SetClearDepth sets the depth used by Clear.
func (l *Layer) SetClearDepth(d float32) {
	l.update("SetClearDepth", state.KeyClearDepth, func(v *state.Vector) { v.SetClearDepth(d) })
}

// SetColor sets the current non-premultiplied color.
func (l *Layer) SetColor(c [4]float32) {
	l.update("SetColor", state.KeyColor, func(v *state.Vector) { v.SetColor(c) })
}

// SetPointSize sets the diameter of points, in pixels. The size
// must not exceed the device limit.
func (l *Layer) SetPointSize(size float32) {
	if m := l.caps.MaxPointSize; m > 0 && size > m {
		precond.Panicf("SetPointSize", "point size %v exceeds device limit %v", size, m)
	}
	l.update("SetPointSize", state.KeyPointSize, func(v *state.Vector) { v.SetPointSize(size) })
}

// SetLineWidth sets the width of lines, in pixels.
func (l *Layer) SetLineWidth(width float32) {
	l.update("SetLineWidth", state.KeyLineWidth, func(v *state.Vector) { v.SetLineWidth(width) })
}

// SetCullMode selects the faces discarded when culling is enabled.
func (l *Layer) SetCullMode(m gputypes.CullMode) {
	l.update("SetCullMode", state.KeyCullMode, func(v *state.Vector) { v.SetCullMode(m) })
}

// SetFrontFace sets the winding order of front faces.
func (l *Layer) SetFrontFace(f gputypes.FrontFace) {
	l.update("SetFrontFace", state.KeyFrontFace, func(v *state.Vector) { v.SetFrontFace(f) })
}

// SetVertexAttrib sets the source of a vertex attribute. Devices
// without buffer objects only accept client-side data.
func (l *Layer) SetVertexAttrib(index int, a state.Attrib) {
	if n := l.caps.MaxVertexAttribs; n > 0 && index >= n {
		precond.Panicf("SetVertexAttrib", "attribute %d exceeds device limit %d", index, n)
	}
	if a.Enabled && a.Buffer != nil && l.clientArrays {
		precond.Panicf("SetVertexAttrib", "device has no buffer objects, use client data")
	}
	l.update("SetVertexAttrib", state.AttribKey(index), func(v *state.Vector) { v.SetVertexAttrib(index, a) })
}

// DisableVertexAttrib disables vertex attribute index.
func (l *Layer) DisableVertexAttrib(index int) {
	l.SetVertexAttrib(index, state.Attrib{})
}

// State returns a copy of the requested state.
func (l *Layer) State() *state.Vector {
	return l.current("State").Clone()
}

// Viewport returns the requested viewport.
func (l *Layer) Viewport() image.Rectangle {
	return l.current("Viewport").Viewport()
}

// Matrix returns the requested matrix of mode.
func (l *Layer) Matrix(mode driver.MatrixMode) f32.Mat4 {
	return l.current("Matrix").Matrix(mode)
}

// IsEnabled reports whether capability c is requested on.
func (l *Layer) IsEnabled(c driver.Capability) bool {
	return l.current("IsEnabled").Enabled(c)
}

// Get returns the requested value of k.
func (l *Layer) Get(k state.Key) state.Value {
	return l.current("Get").Get(k)
}

// Clear clears the buffers in mask of the current target, within the
// scissor rectangle if the scissor test is enabled.
func (l *Layer) Clear(mask driver.ClearMask) {
	l.submit("Clear", command{op: cmdClear, mask: mask})
}

// DrawArrays draws count vertices starting at index first of the
// enabled vertex attributes.
func (l *Layer) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	mustTopology("DrawArrays", mode)
	if first < 0 || count < 0 {
		precond.Panicf("DrawArrays", "invalid range first=%d count=%d", first, count)
	}
	l.submit("DrawArrays", command{op: cmdDrawArrays, mode: mode, first: first, count: count})
}

// DrawElements draws count 16-bit indices starting at index off of
// the bound element array buffer.
func (l *Layer) DrawElements(mode gputypes.PrimitiveTopology, off, count int) {
	mustTopology("DrawElements", mode)
	if off < 0 || count < 0 {
		precond.Panicf("DrawElements", "invalid range offset=%d count=%d", off, count)
	}
	l.submit("DrawElements", command{op: cmdDrawElements, mode: mode, first: off, count: count})
}

// ReadPixels returns the content of r of the current target, top row
// first. It needs a synchronous result and is not allowed in queue or
// compile blocks.
func (l *Layer) ReadPixels(r image.Rectangle) (*image.RGBA, error) {
	v := l.current("ReadPixels")
	l.mustNotPainting("ReadPixels")
	if f := l.deferringFrame(); f != nil {
		precond.Panicf("ReadPixels", "not allowed in a %s block", f.kind)
	}
	l.sync(v)
	img, err := driver.DownloadImage(l.dev, r)
	if err != nil {
		return nil, fmt.Errorf("gpu: read pixels: %w", err)
	}
	return img, nil
}

func mustTopology(op string, mode gputypes.PrimitiveTopology) {
	if mode > gputypes.PrimitiveTopologyTriangleStrip {
		precond.Panicf(op, "invalid primitive topology %d", uint32(mode))
	}
}

func (l *Layer) mustNotPainting(op string) {
	if l.painting {
		precond.Panicf(op, "external painting active")
	}
}

// submit routes a command: recorded by the innermost compile block,
// deferred by the queue of the current render target or issued. Draws
// into a render target other than the main surface need a tile in
// progress.
func (l *Layer) submit(op string, cmd command) {
	v := l.current(op)
	l.mustNotPainting(op)
	cmd.check(op, v, l)
	if f := l.compileFrame(); f != nil {
		f.compiled.recordDraw(cmd, v)
		l.stats.Recorded++
		return
	}
	rt := l.targetFrame()
	if tr := rt.target; !tr.main && !tr.inTile {
		precond.Panicf(op, "render target draws must be inside BeginTile and EndTile")
	}
	if q := rt.queue; q != nil {
		q.push(v, cmd)
		l.stats.Queued++
		return
	}
	l.issue(v, cmd)
}

// issue applies v and runs cmd on the device.
func (l *Layer) issue(v *state.Vector, cmd command) {
	l.sync(v)
	cmd.run(l.dev)
	l.stats.Draws++
}
