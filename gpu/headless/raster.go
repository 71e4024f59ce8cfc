// SPDX-License-Identifier: Unlicense OR MIT

package headless

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/internal/f32color"
)

// vertex is a processed vertex in continuous image coordinates.
type vertex struct {
	pos   f32.Point
	clip  f32.Vec4
	color f32color.RGBA
}

const (
	attribPosition = 0
	attribColor    = 1
)

func (d *Device) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	d.count("DrawArrays")
	idx := make([]int, count)
	for i := range idx {
		idx[i] = first + i
	}
	d.draw(mode, idx)
}

func (d *Device) DrawElements(mode gputypes.PrimitiveTopology, off, count int) {
	d.count("DrawElements")
	b := d.st.buffers[driver.BufferElementArray]
	if b == nil {
		panic("headless: DrawElements without element array buffer")
	}
	if (off+count)*2 > len(b.data) {
		panic(fmt.Sprintf("headless: %d indices from %d exceed element buffer of %d bytes", count, off, len(b.data)))
	}
	idx := make([]int, count)
	for i := range idx {
		idx[i] = int(binary.NativeEndian.Uint16(b.data[(off+i)*2:]))
	}
	d.draw(mode, idx)
}

func (d *Device) draw(mode gputypes.PrimitiveTopology, idx []int) {
	if !d.st.attribs[attribPosition].Enabled {
		return
	}
	verts := make([]vertex, len(idx))
	for i, n := range idx {
		verts[i] = d.process(n)
	}
	if fb := d.feedback; fb != nil {
		for _, v := range verts {
			if len(fb.points) == fb.capacity {
				fb.overflow = true
				break
			}
			fb.points = append(fb.points, v.pos)
		}
		return
	}
	switch mode {
	case gputypes.PrimitiveTopologyPointList:
		for _, v := range verts {
			d.point(v)
		}
	case gputypes.PrimitiveTopologyLineList:
		for i := 0; i+1 < len(verts); i += 2 {
			d.line(verts[i], verts[i+1])
		}
	case gputypes.PrimitiveTopologyLineStrip:
		for i := 0; i+1 < len(verts); i++ {
			d.line(verts[i], verts[i+1])
		}
	case gputypes.PrimitiveTopologyTriangleList:
		for i := 0; i+2 < len(verts); i += 3 {
			d.triangle(verts[i], verts[i+1], verts[i+2], verts[i].color, d.st.viewport)
		}
	case gputypes.PrimitiveTopologyTriangleStrip:
		for i := 0; i+2 < len(verts); i++ {
			d.triangle(verts[i], verts[i+1], verts[i+2], verts[i].color, d.st.viewport)
		}
	default:
		panic(fmt.Sprintf("headless: unsupported topology %v", mode))
	}
}

// process fetches vertex n and transforms it to image coordinates.
func (d *Device) process(n int) vertex {
	p := d.fetch(d.st.attribs[attribPosition], n)
	obj := f32.Vec4{p[0], p[1], p[2], p[3]}
	mvp := f32.Mul4(d.st.matrices[driver.MatrixProjection], d.st.matrices[driver.MatrixModelView])
	clip := f32.Transform4(mvp, obj)
	ndcX, ndcY := clip[0]/clip[3], clip[1]/clip[3]
	vp := d.st.viewport
	x := float32(vp.Min.X) + (ndcX+1)/2*float32(vp.Dx())
	var y float32
	if d.opts.BottomLeft {
		y = float32(vp.Min.Y) + (ndcY+1)/2*float32(vp.Dy())
	} else {
		y = float32(vp.Min.Y) + (1-ndcY)/2*float32(vp.Dy())
	}
	col := f32color.FromStraight(d.st.color)
	if a := d.st.attribs[attribColor]; a.Enabled {
		c := d.fetch(a, n)
		col = f32color.FromStraight(c)
	}
	return vertex{pos: f32.Pt(x, y), clip: clip, color: col}
}

// fetch reads attribute a of vertex n. Missing components default to
// (0, 0, 0, 1).
func (d *Device) fetch(a driver.Attrib, n int) [4]float32 {
	v := [4]float32{0, 0, 0, 1}
	stride := a.Stride
	if stride == 0 {
		stride = a.Size * 4
	}
	off := a.Offset + n*stride
	switch {
	case a.Buffer != nil:
		data := a.Buffer.(*buffer).data
		for i := 0; i < a.Size; i++ {
			o := off + i*4
			if o+4 > len(data) {
				panic(fmt.Sprintf("headless: vertex %d out of buffer range", n))
			}
			v[i] = math.Float32frombits(binary.NativeEndian.Uint32(data[o:]))
		}
	case a.Data != nil:
		data := *a.Data
		for i := 0; i < a.Size; i++ {
			o := off/4 + i
			if o >= len(data) {
				panic(fmt.Sprintf("headless: vertex %d out of array range", n))
			}
			v[i] = data[o]
		}
	}
	return v
}

// insideClip reports whether a clip space position lies in the view
// volume, in x and y.
func insideClip(c f32.Vec4) bool {
	return c[0] >= -c[3] && c[0] <= c[3] && c[1] >= -c[3] && c[1] <= c[3]
}

// point draws a square point. Points whose center is outside the view
// volume are discarded entirely, even when they would overlap it.
func (d *Device) point(v vertex) {
	if !insideClip(v.clip) {
		return
	}
	// Pixel centers in [pos-h, pos+h).
	h := d.st.pointSize/2 + .5
	r := image.Rect(
		int(math32.Ceil(v.pos.X-h)), int(math32.Ceil(v.pos.Y-h)),
		int(math32.Ceil(v.pos.X+h-1)), int(math32.Ceil(v.pos.Y+h-1)),
	)
	r = r.Intersect(d.writeBounds())
	dst := d.target()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d.blendPixel(dst, x, y, v.color)
		}
	}
}

// line draws a segment widened to the line width. The segment is
// clipped to the view volume before widening so that wide lines may
// extend outside the viewport.
func (d *Device) line(a, b vertex) {
	p0, p1, ok := d.clipSegment(a.pos, b.pos)
	if !ok {
		return
	}
	dir := p1.Sub(p0)
	l := math32.Hypot(dir.X, dir.Y)
	if l == 0 {
		return
	}
	w := d.st.lineWidth / 2
	n := f32.Pt(-dir.Y/l*w, dir.X/l*w)
	q0, q1, q2, q3 := p0.Add(n), p1.Add(n), p1.Sub(n), p0.Sub(n)
	bounds := d.target().Rect
	d.triangle(vertex{pos: q0}, vertex{pos: q1}, vertex{pos: q2}, a.color, bounds)
	d.triangle(vertex{pos: q0}, vertex{pos: q2}, vertex{pos: q3}, a.color, bounds)
}

// clipSegment clips p0-p1 to the viewport rectangle with the
// Liang-Barsky algorithm.
func (d *Device) clipSegment(p0, p1 f32.Point) (f32.Point, f32.Point, bool) {
	vp := f32.FRect(d.st.viewport)
	t0, t1 := float32(0), float32(1)
	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	edges := [4][2]float32{
		{-dx, p0.X - vp.Min.X},
		{dx, vp.Max.X - p0.X},
		{-dy, p0.Y - vp.Min.Y},
		{dy, vp.Max.Y - p0.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return p0, p1, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = max(t0, t)
		} else {
			t1 = min(t1, t)
		}
		if t0 > t1 {
			return p0, p1, false
		}
	}
	return f32.Pt(p0.X+t0*dx, p0.Y+t0*dy), f32.Pt(p0.X+t1*dx, p0.Y+t1*dy), true
}

// triangle fills the pixels whose centers are covered by the triangle
// and lie within bounds and the write bounds. Edges shared by two
// triangles are drawn once by a top-left fill rule.
func (d *Device) triangle(a, b, c vertex, col f32color.RGBA, bounds image.Rectangle) {
	p0, p1, p2 := a.pos, b.pos, c.pos
	area := edge(p0, p1, p2)
	if area == 0 {
		return
	}
	if area < 0 {
		p1, p2 = p2, p1
	}
	minX := math32.Floor(min(p0.X, p1.X, p2.X))
	minY := math32.Floor(min(p0.Y, p1.Y, p2.Y))
	maxX := math32.Ceil(max(p0.X, p1.X, p2.X))
	maxY := math32.Ceil(max(p0.Y, p1.Y, p2.Y))
	r := image.Rect(int(minX), int(minY), int(maxX), int(maxY))
	r = r.Intersect(bounds).Intersect(d.writeBounds())
	dst := d.target()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			p := f32.Pt(float32(x)+.5, float32(y)+.5)
			if covers(p1, p2, p) && covers(p2, p0, p) && covers(p0, p1, p) {
				d.blendPixel(dst, x, y, col)
			}
		}
	}
}

func edge(a, b, p f32.Point) float32 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// covers applies the fill rule to the edge a-b of a positively wound
// triangle.
func covers(a, b, p f32.Point) bool {
	e := edge(a, b, p)
	if e != 0 {
		return e > 0
	}
	dy := b.Y - a.Y
	return dy > 0 || (dy == 0 && b.X < a.X)
}

func colorPixel(c [4]float32) color.RGBA {
	return f32color.FromStraight(c).RGBA()
}

func (d *Device) writePixel(dst *image.RGBA, x, y int, c color.RGBA) {
	old := dst.RGBAAt(x, y)
	m := d.st.colorMask
	if !m[0] {
		c.R = old.R
	}
	if !m[1] {
		c.G = old.G
	}
	if !m[2] {
		c.B = old.B
	}
	if !m[3] {
		c.A = old.A
	}
	dst.SetRGBA(x, y, c)
}

func (d *Device) blendPixel(dst *image.RGBA, x, y int, src f32color.RGBA) {
	if !d.st.enabled[driver.CapBlend] {
		d.writePixel(dst, x, y, src.RGBA())
		return
	}
	old := f32color.FromRGBA(dst.RGBAAt(x, y))
	res := src.Scale(factor(d.st.blendSrc, src, old)).Add(old.Scale(factor(d.st.blendDst, src, old)))
	d.writePixel(dst, x, y, res.RGBA())
}

func factor(f gputypes.BlendFactor, src, dst f32color.RGBA) float32 {
	switch f {
	case gputypes.BlendFactorZero:
		return 0
	case gputypes.BlendFactorOne:
		return 1
	case gputypes.BlendFactorSrcAlpha:
		return src.A
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return 1 - src.A
	case gputypes.BlendFactorDstAlpha:
		return dst.A
	case gputypes.BlendFactorOneMinusDstAlpha:
		return 1 - dst.A
	default:
		panic(fmt.Sprintf("headless: unsupported blend factor %v", f))
	}
}
