// SPDX-License-Identifier: Unlicense OR MIT

// Package headless implements a software graphics device for rendering
// without a display. It rasterizes into in-memory images and counts the
// calls it receives, which makes it suitable for tests and for
// off-screen rendering on machines without a GPU.
package headless

import (
	"errors"
	"fmt"
	"image"
	"maps"

	"gioui.org/shader"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
)

// Options configures a Device.
type Options struct {
	// Size of the main surface. The zero value selects 256x256.
	Size image.Point
	// Offscreen advertises and supports framebuffer objects.
	Offscreen bool
	// IncompleteFramebuffers advertises framebuffer objects but fails
	// every attempt to create one.
	IncompleteFramebuffers bool
	// BottomLeft selects a lower-left window origin.
	BottomLeft bool
	// MaxTextureSize limits texture and viewport dimensions. The zero
	// value selects 4096.
	MaxTextureSize int
	// BufferObjects advertises vertex buffer objects.
	BufferObjects bool
	// Feedback advertises feedback mode.
	Feedback bool
}

// Device is a software driver.Device. Images are stored in window row
// order: row y of an image holds window row y, so for bottom-left
// devices the stored images are upside down.
type Device struct {
	opts    Options
	caps    driver.Caps
	surface *image.RGBA

	st    deviceState
	calls map[string]int
	live  int

	feedback *feedback
	released bool
}

type deviceState struct {
	fb        *framebuffer
	program   *program
	va        *vertexArray
	buffers   [driver.NumBufferTargets]*buffer
	textures  []*texture
	enabled   [driver.NumCapabilities]bool
	matrices  [driver.NumMatrixModes]f32.Mat4
	viewport  image.Rectangle
	scissor   image.Rectangle
	blendSrc  gputypes.BlendFactor
	blendDst  gputypes.BlendFactor
	colorMask [4]bool
	clear     [4]float32
	color     [4]float32
	pointSize float32
	lineWidth float32
	attribs   []driver.Attrib
}

type feedback struct {
	capacity int
	points   []f32.Point
	overflow bool
}

type texture struct {
	dev      *Device
	levels   []*image.RGBA
	released bool
}

type buffer struct {
	dev      *Device
	target   driver.BufferTarget
	data     []byte
	released bool
}

type vertexArray struct {
	dev      *Device
	released bool
}

type program struct {
	dev      *Device
	name     string
	released bool
}

type framebuffer struct {
	dev      *Device
	tex      *texture
	level    int
	released bool
}

const (
	defaultSize           = 256
	defaultMaxTextureSize = 4096
	maxTextureUnits       = 8
	maxVertexAttribs      = 8
)

var errReleased = errors.New("headless: device released")

// New creates a device.
func New(opts Options) *Device {
	if opts.Size == (image.Point{}) {
		opts.Size = image.Pt(defaultSize, defaultSize)
	}
	if opts.MaxTextureSize == 0 {
		opts.MaxTextureSize = defaultMaxTextureSize
	}
	var feats driver.Features
	if opts.Offscreen || opts.IncompleteFramebuffers {
		feats |= driver.FeatureOffscreenTargets
	}
	if opts.BufferObjects {
		feats |= driver.FeatureBufferObjects
	}
	if opts.Feedback {
		feats |= driver.FeatureFeedback
	}
	d := &Device{
		opts: opts,
		caps: driver.Caps{
			BottomLeftOrigin: opts.BottomLeft,
			Features:         feats,
			MaxTextureSize:   opts.MaxTextureSize,
			MaxTextureUnits:  maxTextureUnits,
			MaxVertexAttribs: maxVertexAttribs,
			MaxPointSize:     64,
		},
		surface: image.NewRGBA(image.Rectangle{Max: opts.Size}),
		calls:   make(map[string]int),
	}
	d.st = deviceState{
		textures:  make([]*texture, maxTextureUnits),
		attribs:   make([]driver.Attrib, maxVertexAttribs),
		viewport:  d.surface.Rect,
		scissor:   d.surface.Rect,
		blendSrc:  gputypes.BlendFactorOne,
		blendDst:  gputypes.BlendFactorZero,
		colorMask: [4]bool{true, true, true, true},
		color:     [4]float32{1, 1, 1, 1},
		pointSize: 1,
		lineWidth: 1,
	}
	for i := range d.st.matrices {
		d.st.matrices[i] = f32.Identity4()
	}
	return d
}

// Calls returns the number of calls received per method name since
// the last ResetCalls.
func (d *Device) Calls() map[string]int {
	return maps.Clone(d.calls)
}

// TotalCalls returns the number of calls received since the last
// ResetCalls.
func (d *Device) TotalCalls() int {
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

// ResetCalls clears the call counters.
func (d *Device) ResetCalls() {
	clear(d.calls)
}

// Live returns the number of device objects not yet released.
func (d *Device) Live() int {
	return d.live
}

// Surface returns a copy of the main surface with the top row first.
func (d *Device) Surface() *image.RGBA {
	return d.display(d.surface)
}

// TextureImage returns a copy of a level of t with the top row first.
func (d *Device) TextureImage(t driver.Texture, level int) *image.RGBA {
	tex := t.(*texture)
	tex.mustAlive("TextureImage")
	return d.display(tex.levels[level])
}

func (d *Device) display(src *image.RGBA) *image.RGBA {
	img := image.NewRGBA(src.Rect)
	copy(img.Pix, src.Pix)
	if d.opts.BottomLeft {
		flipY(img)
	}
	return img
}

func (d *Device) count(name string) {
	if d.released {
		panic(errReleased)
	}
	d.calls[name]++
}

func (d *Device) Caps() driver.Caps {
	return d.caps
}

func (d *Device) SurfaceSize() image.Point {
	return d.surface.Rect.Size()
}

func (d *Device) NewTexture(format gputypes.TextureFormat, width, height, levels int) (driver.Texture, error) {
	d.count("NewTexture")
	if format != gputypes.TextureFormatRGBA8Unorm {
		return nil, fmt.Errorf("headless: unsupported texture format %v", format)
	}
	if width > d.opts.MaxTextureSize || height > d.opts.MaxTextureSize {
		return nil, fmt.Errorf("headless: %dx%d texture exceeds %d", width, height, d.opts.MaxTextureSize)
	}
	t := &texture{dev: d}
	for l := 0; l < levels; l++ {
		w, h := max(width>>l, 1), max(height>>l, 1)
		t.levels = append(t.levels, image.NewRGBA(image.Rect(0, 0, w, h)))
	}
	d.live++
	return t, nil
}

func (d *Device) NewBuffer(typ driver.BufferTarget, data []byte) (driver.Buffer, error) {
	d.count("NewBuffer")
	if !d.opts.BufferObjects {
		return nil, errors.New("headless: buffer objects not supported")
	}
	b := &buffer{dev: d, target: typ, data: append([]byte(nil), data...)}
	d.live++
	return b, nil
}

func (d *Device) NewVertexArray() (driver.VertexArray, error) {
	d.count("NewVertexArray")
	d.live++
	return &vertexArray{dev: d}, nil
}

func (d *Device) NewProgram(vertex, fragment shader.Sources) (driver.Program, error) {
	d.count("NewProgram")
	d.live++
	return &program{dev: d, name: vertex.Name + "/" + fragment.Name}, nil
}

func (d *Device) NewFramebuffer(tex driver.Texture, level int) (driver.Framebuffer, error) {
	d.count("NewFramebuffer")
	if !d.opts.Offscreen || d.opts.IncompleteFramebuffers {
		return nil, fmt.Errorf("headless: %w", driver.ErrIncompleteFramebuffer)
	}
	t := tex.(*texture)
	t.mustAlive("NewFramebuffer")
	if level < 0 || level >= len(t.levels) {
		return nil, fmt.Errorf("headless: level %d: %w", level, driver.ErrIncompleteFramebuffer)
	}
	d.live++
	return &framebuffer{dev: d, tex: t, level: level}, nil
}

func (d *Device) BindFramebuffer(fb driver.Framebuffer) {
	d.count("BindFramebuffer")
	if fb == nil {
		d.st.fb = nil
		return
	}
	f := fb.(*framebuffer)
	if f.released || f.tex.released {
		panic("headless: bind of released framebuffer")
	}
	d.st.fb = f
}

func (d *Device) BindProgram(p driver.Program) {
	d.count("BindProgram")
	if p == nil {
		d.st.program = nil
		return
	}
	d.st.program = p.(*program)
}

func (d *Device) BindVertexArray(a driver.VertexArray) {
	d.count("BindVertexArray")
	if a == nil {
		d.st.va = nil
		return
	}
	d.st.va = a.(*vertexArray)
}

func (d *Device) BindBuffer(target driver.BufferTarget, b driver.Buffer) {
	d.count("BindBuffer")
	if b == nil {
		d.st.buffers[target] = nil
		return
	}
	d.st.buffers[target] = b.(*buffer)
}

func (d *Device) BindTexture(unit int, t driver.Texture) {
	d.count("BindTexture")
	if t == nil {
		d.st.textures[unit] = nil
		return
	}
	d.st.textures[unit] = t.(*texture)
}

func (d *Device) SetEnabled(c driver.Capability, enable bool) {
	d.count("SetEnabled")
	d.st.enabled[c] = enable
}

func (d *Device) SetMatrix(mode driver.MatrixMode, m f32.Mat4) {
	d.count("SetMatrix")
	d.st.matrices[mode] = m
}

func (d *Device) SetViewport(r image.Rectangle) {
	d.count("SetViewport")
	d.st.viewport = r
}

func (d *Device) SetScissor(r image.Rectangle) {
	d.count("SetScissor")
	d.st.scissor = r
}

func (d *Device) SetBlendFunc(src, dst gputypes.BlendFactor) {
	d.count("SetBlendFunc")
	d.st.blendSrc, d.st.blendDst = src, dst
}

// SetDepthFunc is tracked but the device has no depth buffer.
func (d *Device) SetDepthFunc(f gputypes.CompareFunction) {
	d.count("SetDepthFunc")
}

func (d *Device) SetDepthMask(mask bool) {
	d.count("SetDepthMask")
}

func (d *Device) SetStencilFunc(f gputypes.CompareFunction, ref int, mask uint32) {
	d.count("SetStencilFunc")
}

func (d *Device) SetStencilOp(fail, depthFail, pass driver.StencilOp) {
	d.count("SetStencilOp")
}

func (d *Device) SetColorMask(r, g, b, a bool) {
	d.count("SetColorMask")
	d.st.colorMask = [4]bool{r, g, b, a}
}

func (d *Device) SetClearColor(c [4]float32) {
	d.count("SetClearColor")
	d.st.clear = c
}

func (d *Device) SetClearDepth(v float32) {
	d.count("SetClearDepth")
}

func (d *Device) SetColor(c [4]float32) {
	d.count("SetColor")
	d.st.color = c
}

func (d *Device) SetPointSize(size float32) {
	d.count("SetPointSize")
	d.st.pointSize = size
}

func (d *Device) SetLineWidth(width float32) {
	d.count("SetLineWidth")
	d.st.lineWidth = width
}

func (d *Device) SetCullMode(m gputypes.CullMode) {
	d.count("SetCullMode")
}

func (d *Device) SetFrontFace(f gputypes.FrontFace) {
	d.count("SetFrontFace")
}

func (d *Device) SetVertexAttrib(index int, a driver.Attrib) {
	d.count("SetVertexAttrib")
	d.st.attribs[index] = a
}

// target returns the image rendered to.
func (d *Device) target() *image.RGBA {
	if fb := d.st.fb; fb != nil {
		return fb.tex.levels[fb.level]
	}
	return d.surface
}

// writeBounds returns the pixels writable by clears and draws.
func (d *Device) writeBounds() image.Rectangle {
	r := d.target().Rect
	if d.st.enabled[driver.CapScissorTest] {
		r = r.Intersect(d.st.scissor)
	}
	return r
}

func (d *Device) Clear(mask driver.ClearMask) {
	d.count("Clear")
	if mask&driver.ClearColor == 0 || d.feedback != nil {
		return
	}
	dst := d.target()
	c := colorPixel(d.st.clear)
	r := d.writeBounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d.writePixel(dst, x, y, c)
		}
	}
}

func (d *Device) CopyTexSubImage(dst driver.Texture, level int, dstOrigin image.Point, src image.Rectangle) {
	d.count("CopyTexSubImage")
	t := dst.(*texture)
	t.mustAlive("CopyTexSubImage")
	dimg := t.levels[level]
	draw.Draw(dimg, image.Rectangle{Min: dstOrigin, Max: dstOrigin.Add(src.Size())}, d.target(), src.Min, draw.Src)
}

func (d *Device) ReadPixels(src image.Rectangle, pixels []byte) error {
	d.count("ReadPixels")
	if len(pixels) < src.Dx()*src.Dy()*4 {
		return fmt.Errorf("headless: ReadPixels buffer too small: %d bytes for %v", len(pixels), src)
	}
	img := &image.RGBA{Pix: pixels, Stride: src.Dx() * 4, Rect: src}
	draw.Draw(img, src, d.target(), src.Min, draw.Src)
	return nil
}

func (d *Device) WritePixels(dst image.Point, img *image.RGBA) {
	d.count("WritePixels")
	draw.Draw(d.target(), image.Rectangle{Min: dst, Max: dst.Add(img.Rect.Size())}, img, img.Rect.Min, draw.Src)
}

func (d *Device) BeginFeedback(capacity int) {
	d.count("BeginFeedback")
	if !d.opts.Feedback {
		panic("headless: feedback mode not supported")
	}
	if d.feedback != nil {
		panic("headless: nested feedback mode")
	}
	d.feedback = &feedback{capacity: capacity}
}

func (d *Device) EndFeedback() ([]f32.Point, error) {
	d.count("EndFeedback")
	fb := d.feedback
	if fb == nil {
		panic("headless: EndFeedback outside feedback mode")
	}
	d.feedback = nil
	if fb.overflow {
		return fb.points, driver.ErrFeedbackOverflow
	}
	return fb.points, nil
}

// Release implements driver.Device. Objects not released by the
// client are counted as leaked by Live.
func (d *Device) Release() {
	d.count("Release")
	d.released = true
}

func (t *texture) mustAlive(op string) {
	if t.released {
		panic(fmt.Sprintf("headless: %s on released texture", op))
	}
}

func (t *texture) Release() {
	if t.released {
		panic("headless: texture released twice")
	}
	t.released = true
	t.dev.live--
}

func (t *texture) Size() image.Point {
	return t.levels[0].Rect.Size()
}

func (t *texture) Levels() int {
	return len(t.levels)
}

func (t *texture) Upload(level int, offset image.Point, img *image.RGBA) {
	t.mustAlive("Upload")
	dst := t.levels[level]
	draw.Draw(dst, image.Rectangle{Min: offset, Max: offset.Add(img.Rect.Size())}, img, img.Rect.Min, draw.Src)
}

func (b *buffer) Release() {
	if b.released {
		panic("headless: buffer released twice")
	}
	b.released = true
	b.dev.live--
}

func (b *buffer) Size() int {
	return len(b.data)
}

func (b *buffer) Upload(data []byte) {
	b.data = append(b.data[:0], data...)
}

func (a *vertexArray) Release() {
	if a.released {
		panic("headless: vertex array released twice")
	}
	a.released = true
	a.dev.live--
}

func (p *program) Release() {
	if p.released {
		panic("headless: program released twice")
	}
	p.released = true
	p.dev.live--
}

func (f *framebuffer) Release() {
	if f.released {
		panic("headless: framebuffer released twice")
	}
	f.released = true
	f.dev.live--
	if f.dev.st.fb == f {
		f.dev.st.fb = nil
	}
}

func flipY(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bot := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bot)
		copy(bot, row)
	}
}
