// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"errors"
	"fmt"
	"image"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
	"geoviz.org/render/gpu/state"
	"geoviz.org/render/gpu/tile"
)

// Target describes a render destination inside a texture.
type Target struct {
	Texture *resource.Handle
	Level   int
	// Viewport is the destination region in level coordinates. The
	// empty rectangle selects the whole level.
	Viewport image.Rectangle
	// MaxPrimitiveSize is the largest point size or line width drawn
	// into the target.
	MaxPrimitiveSize float32
}

// TargetRender is an open render-target block. Clients render the
// target one tile at a time:
//
//	for {
//		adj := tr.BeginTile()
//		// Draw with adj pre-multiplied into the projection.
//		if !tr.EndTile() {
//			break
//		}
//	}
//	tr.End()
type TargetRender struct {
	*Scope
	l     *Layer
	t     Target
	vp    image.Rectangle
	tiles *tile.Render
	tiled bool
	// main is set for the main surface render started by BeginRender.
	main bool
	fb   *resource.Handle
	// base is the state every tile starts from.
	base   *state.Vector
	inTile bool

	// saved holds the surface content overwritten by the tiles.
	saved *image.RGBA
}

// BeginTarget is BeginRenderTargetBlock with the state reset to the
// defaults of the target.
func (l *Layer) BeginTarget(t Target) (*TargetRender, error) {
	return l.BeginRenderTargetBlock(t, true)
}

// BeginRenderTargetBlock redirects rendering to t until the matching
// EndRenderTargetBlock. Without reset the current state is kept apart
// from the bindings selecting the target: the framebuffer, the viewport
// and the scissor rectangle, with the scissor test enabled to confine
// clears to the destination. The block holds a reference to the target
// texture.
//
// An incomplete off-screen configuration is reported as an error
// wrapping ErrIncompleteTarget; no block is opened in that case.
func (l *Layer) BeginRenderTargetBlock(t Target, reset bool) (*TargetRender, error) {
	const op = "BeginRenderTargetBlock"
	v := l.current(op)
	l.mustNotPainting(op)
	if l.compileFrame() != nil {
		precond.Panicf(op, "not allowed in a compile block")
	}
	if t.Texture == nil {
		precond.Panicf(op, "no target texture")
	}
	tex := t.Texture.Texture()
	if t.Level < 0 || t.Level >= tex.Levels() {
		precond.Panicf(op, "level %d out of range for %s", t.Level, t.Texture)
	}
	bounds := image.Rectangle{Max: levelSize(tex.Size(), t.Level)}
	vp := t.Viewport
	if vp.Empty() {
		vp = bounds
	}
	if !vp.In(bounds) {
		precond.Panicf(op, "viewport %v outside level %d bounds %v", vp, t.Level, bounds)
	}
	if t.MaxPrimitiveSize < 0 {
		precond.Panicf(op, "negative primitive size %v", t.MaxPrimitiveSize)
	}
	tr := &TargetRender{l: l, t: t, vp: vp}
	switch l.path {
	case PathNative:
		fb, err := l.res.Framebuffer(t.Texture, t.Level)
		if err != nil {
			if errors.Is(err, driver.ErrIncompleteFramebuffer) {
				return nil, fmt.Errorf("%w: %w", ErrIncompleteTarget, err)
			}
			return nil, err
		}
		tr.fb = fb
		tr.tiles = tile.Native(vp)
	case PathTiled:
		tr.tiled = true
		tr.tiles = tile.New(vp, l.maxTile(), t.MaxPrimitiveSize, l.caps.BottomLeftOrigin)
		if err := tr.saveSurface(v); err != nil {
			return nil, err
		}
	}
	base := v
	if reset {
		base = l.defaults
	}
	tr.base = base.Clone()
	tr.bind(tr.base)
	t.Texture.Ref()
	f := l.push(KindRenderTarget)
	f.target = tr
	tr.Scope = f.scope
	l.cur = tr.base.Clone()
	l.logger.Debug("gpu: render target begun", "texture", t.Texture, "level", t.Level,
		"viewport", vp, "path", l.path, "tiles", tr.tiles.Len())
	return tr, nil
}

// EndRenderTargetBlock ends the innermost render-target block. Ending
// the block before the last tile abandons the remaining tiles.
func (l *Layer) EndRenderTargetBlock() {
	const op = "EndRenderTargetBlock"
	f := l.top(KindRenderTarget, op)
	tr := f.target
	if tr.main {
		precond.Panicf(op, "the main surface is ended by EndRender")
	}
	if !tr.tiles.Done() {
		l.logger.Debug("gpu: render target ended early", "texture", tr.t.Texture,
			"tile", tr.tiles.Index(), "tiles", tr.tiles.Len())
	}
	tr.inTile = false
	tr.restoreSurface()
	l.pop(KindRenderTarget, op)
	tr.t.Texture.Release()
}

// maxTile returns the largest tile the surface can hold.
func (l *Layer) maxTile() image.Point {
	sz := l.surface
	if m := l.cfg.Tiling.MaxTileSize; m > 0 {
		sz = image.Pt(min(sz.X, m), min(sz.Y, m))
	}
	return sz
}

func levelSize(sz image.Point, level int) image.Point {
	return image.Pt(max(sz.X>>level, 1), max(sz.Y>>level, 1))
}

// Tiled reports whether the target is emulated with tiles of the main
// surface.
func (tr *TargetRender) Tiled() bool {
	return tr.tiled
}

// Viewport returns the destination region in level coordinates.
func (tr *TargetRender) Viewport() image.Rectangle {
	return tr.vp
}

// Tiles returns a copy of the tile cursor.
func (tr *TargetRender) Tiles() tile.Render {
	return *tr.tiles
}

// BeginTile starts rendering the current tile from the state the block
// started with, with the viewport and scissor rectangle selecting the
// tile. The returned matrix must be pre-multiplied into the projection.
func (tr *TargetRender) BeginTile() f32.Mat4 {
	const op = "BeginTile"
	tr.mustInnermost(op)
	if tr.inTile {
		precond.Panicf(op, "tile %d already in progress", tr.tiles.Index())
	}
	if tr.tiles.Done() {
		precond.Panicf(op, "no tiles left")
	}
	tr.inTile = true
	v := tr.base.Clone()
	tr.bind(v)
	tr.l.cur = v
	return tr.tiles.Current().Projection
}

// EndTile completes the current tile and reports whether more tiles
// remain. Tiles of the main surface are copied into the target.
func (tr *TargetRender) EndTile() bool {
	const op = "EndTile"
	tr.mustInnermost(op)
	if !tr.inTile {
		precond.Panicf(op, "no tile in progress")
	}
	l := tr.l
	tr.inTile = false
	if tr.tiled {
		t := tr.tiles.Current()
		l.sync(l.cur)
		l.dev.CopyTexSubImage(tr.t.Texture.Texture(), tr.t.Level, t.Interior.Min, t.Scissor)
	}
	l.stats.Tiles++
	more := tr.tiles.Next()
	if !more {
		tr.restoreSurface()
	}
	return more
}

func (tr *TargetRender) mustInnermost(op string) {
	if tr.Scope == nil || tr.done {
		precond.Panicf(op, "render target block already ended")
	}
	if f := tr.l.topFrame(op); f != tr.f {
		precond.Panicf(op, "%s block still open inside the render target", f.kind)
	}
}

// resetState returns the defaults of the target.
func (tr *TargetRender) resetState() *state.Vector {
	v := tr.l.defaults.Clone()
	tr.bind(v)
	return v
}

// bind redirects v to the target, or to the current tile.
func (tr *TargetRender) bind(v *state.Vector) {
	if tr.main {
		return
	}
	v.BindFramebuffer(tr.fb)
	switch {
	case !tr.tiled:
		v.SetViewport(tr.vp)
		v.SetScissor(tr.vp)
		v.SetEnabled(driver.CapScissorTest, true)
	case tr.inTile:
		t := tr.tiles.Current()
		v.SetViewport(t.SurfaceViewport)
		v.SetScissor(t.Scissor)
		v.SetEnabled(driver.CapScissorTest, true)
	}
}

// saveSurface reads the part of the surface the tiles overwrite.
func (tr *TargetRender) saveSurface(v *state.Vector) error {
	l := tr.l
	var r image.Rectangle
	for i := 0; i < tr.tiles.Len(); i++ {
		r = r.Union(tr.tiles.Tile(i).SurfaceViewport)
	}
	r = r.Intersect(image.Rectangle{Max: l.surface})
	if r.Empty() {
		return nil
	}
	l.sync(v)
	img := image.NewRGBA(r)
	if err := l.dev.ReadPixels(r, img.Pix); err != nil {
		return fmt.Errorf("gpu: save surface for %s: %w", tr.t.Texture, err)
	}
	tr.saved = img
	return nil
}

func (tr *TargetRender) restoreSurface() {
	if tr.saved == nil {
		return
	}
	l := tr.l
	l.sync(l.cur)
	l.dev.WritePixels(tr.saved.Rect.Min, tr.saved)
	tr.saved = nil
}
