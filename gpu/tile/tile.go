// SPDX-License-Identifier: Unlicense OR MIT

// Package tile splits a render target larger than the drawable
// surface into tiles that each fit the surface.
//
// Every tile is rendered with a viewport grown by a border of half the
// largest primitive size, so that wide points and lines centered just
// outside the tile still contribute to it. The border never extends
// past the destination: primitives centered outside the destination
// are clipped exactly as they are when rendering to it directly. The
// scissor rectangle keeps the border out of the result.
package tile

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"

	"geoviz.org/render/f32"
)

// Tile describes the rendering of one part of the destination.
type Tile struct {
	// Interior is the part of the destination produced by the tile.
	Interior image.Rectangle
	// Viewport is Interior grown by the border and clamped to the
	// destination, in destination coordinates.
	Viewport image.Rectangle
	// SurfaceViewport is Viewport moved to the surface origin.
	SurfaceViewport image.Rectangle
	// Scissor is Interior in surface coordinates.
	Scissor image.Rectangle
	// Projection maps normalized device coordinates of the whole
	// destination to those of the tile. It is applied after the
	// projection matrix.
	Projection f32.Mat4
}

// Render is a cursor over the tiles of a destination.
type Render struct {
	dst    image.Rectangle
	border int
	size   image.Point
	grid   image.Point
	native bool
	bl     bool
	idx    int
}

// New tiles dst with tiles no larger than maxTile, including a border
// of half of maxPrimitiveSize. Origin conventions only affect the
// projection. New panics if dst is empty or if maxTile is not positive.
func New(dst image.Rectangle, maxTile image.Point, maxPrimitiveSize float32, bottomLeft bool) *Render {
	if dst.Empty() {
		panic(fmt.Sprintf("tile: empty destination %v", dst))
	}
	if maxTile.X <= 0 || maxTile.Y <= 0 {
		panic(fmt.Sprintf("tile: invalid maximum tile size %v", maxTile))
	}
	b := int(math32.Ceil(max(maxPrimitiveSize, 0) / 2))
	size := image.Pt(max(maxTile.X-2*b, 1), max(maxTile.Y-2*b, 1))
	return &Render{
		dst:    dst,
		border: b,
		size:   size,
		grid: image.Pt(
			(dst.Dx()+size.X-1)/size.X,
			(dst.Dy()+size.Y-1)/size.Y,
		),
		bl: bottomLeft,
	}
}

// Native returns a single tile covering dst with no border and an
// identity projection adjustment, for devices that render to dst
// directly.
func Native(dst image.Rectangle) *Render {
	return &Render{
		dst:    dst,
		size:   dst.Size(),
		grid:   image.Pt(1, 1),
		native: true,
	}
}

// Border returns the border width in pixels.
func (r *Render) Border() int {
	return r.border
}

// Grid returns the number of tile columns and rows.
func (r *Render) Grid() image.Point {
	return r.grid
}

// Len returns the number of tiles.
func (r *Render) Len() int {
	return r.grid.X * r.grid.Y
}

// Index returns the position of the cursor.
func (r *Render) Index() int {
	return r.idx
}

// Done reports whether the cursor is past the last tile.
func (r *Render) Done() bool {
	return r.idx >= r.Len()
}

// Next advances the cursor and reports whether a tile remains.
func (r *Render) Next() bool {
	if !r.Done() {
		r.idx++
	}
	return !r.Done()
}

// Current returns the tile under the cursor. It panics if Done.
func (r *Render) Current() Tile {
	if r.Done() {
		panic("tile: no current tile")
	}
	return r.Tile(r.idx)
}

// Tile returns tile i in row-major order.
func (r *Render) Tile(i int) Tile {
	if i < 0 || i >= r.Len() {
		panic(fmt.Sprintf("tile: index %d out of range [0, %d)", i, r.Len()))
	}
	if r.native {
		return Tile{
			Interior:        r.dst,
			Viewport:        r.dst,
			SurfaceViewport: r.dst,
			Scissor:         r.dst,
			Projection:      f32.Identity4(),
		}
	}
	col, row := i%r.grid.X, i/r.grid.X
	o := r.dst.Min.Add(image.Pt(col*r.size.X, row*r.size.Y))
	in := image.Rectangle{Min: o, Max: o.Add(r.size)}.Intersect(r.dst)
	vp := in.Inset(-r.border).Intersect(r.dst)
	t := Tile{
		Interior:        in,
		Viewport:        vp,
		SurfaceViewport: vp.Sub(vp.Min),
		Scissor:         in.Sub(vp.Min),
	}
	t.Projection = r.adjust(vp)
	return t
}

// adjust returns the matrix moving full destination coordinates into
// the tile viewport vp.
func (r *Render) adjust(vp image.Rectangle) f32.Mat4 {
	w, h := float32(r.dst.Dx()), float32(r.dst.Dy())
	vw, vh := float32(vp.Dx()), float32(vp.Dy())
	ox, oy := float32(vp.Min.X-r.dst.Min.X), float32(vp.Min.Y-r.dst.Min.Y)
	sx, sy := w/vw, h/vh
	tx := (w-2*ox)/vw - 1
	var ty float32
	if r.bl {
		ty = (h-2*oy)/vh - 1
	} else {
		ty = 1 - h/vh + 2*oy/vh
	}
	return f32.ScaleTranslate(sx, sy, tx, ty)
}
