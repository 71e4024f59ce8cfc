// SPDX-License-Identifier: Unlicense OR MIT

package f32

import "math"

// Affine2D represents an affine 2D transformation. The zero value
// is the identity transform.
//
// The matrix
//
//	[sx hx ox]
//	[hy sy oy]
//	[ 0  0  1]
//
// is stored with 1 subtracted from sx and sy.
type Affine2D struct {
	a, b, c float32
	d, e, f float32
}

// NewAffine2D creates a transformation matrix from its elements.
func NewAffine2D(sx, hx, ox, hy, sy, oy float32) Affine2D {
	return Affine2D{
		a: sx - 1, b: hx, c: ox,
		d: hy, e: sy - 1, f: oy,
	}
}

// Elems returns the matrix elements of the transform in row-major order.
func (a Affine2D) Elems() (sx, hx, ox, hy, sy, oy float32) {
	return a.a + 1, a.b, a.c, a.d, a.e + 1, a.f
}

// Offset the transformation.
func (a Affine2D) Offset(offset Point) Affine2D {
	a.c += offset.X
	a.f += offset.Y
	return a
}

// Scale the transformation around the given origin.
func (a Affine2D) Scale(origin, factor Point) Affine2D {
	return a.around(origin, func(a Affine2D) Affine2D {
		return NewAffine2D(factor.X, 0, 0, 0, factor.Y, 0).Mul(a)
	})
}

// Rotate the transformation by the given angle (in radians) counter
// clockwise around the given origin.
func (a Affine2D) Rotate(origin Point, radians float32) Affine2D {
	sin, cos := math.Sincos(float64(radians))
	s, c := float32(sin), float32(cos)
	return a.around(origin, func(a Affine2D) Affine2D {
		return NewAffine2D(c, -s, 0, s, c, 0).Mul(a)
	})
}

// Shear the transformation by the given angle (in radians) around the
// given origin.
func (a Affine2D) Shear(origin Point, radiansX, radiansY float32) Affine2D {
	tx := float32(math.Tan(float64(radiansX)))
	ty := float32(math.Tan(float64(radiansY)))
	return a.around(origin, func(a Affine2D) Affine2D {
		return NewAffine2D(1, tx, 0, ty, 1, 0).Mul(a)
	})
}

func (a Affine2D) around(origin Point, f func(Affine2D) Affine2D) Affine2D {
	if origin == (Point{}) {
		return f(a)
	}
	return f(a.Offset(origin.Mul(-1))).Offset(origin)
}

// Mul returns A*B, the transform that applies B first and then A.
func (A Affine2D) Mul(B Affine2D) Affine2D {
	asx, ahx, aox, ahy, asy, aoy := A.Elems()
	bsx, bhx, box, bhy, bsy, boy := B.Elems()
	return NewAffine2D(
		asx*bsx+ahx*bhy, asx*bhx+ahx*bsy, asx*box+ahx*boy+aox,
		ahy*bsx+asy*bhy, ahy*bhx+asy*bsy, ahy*box+asy*boy+aoy,
	)
}

// Invert the transformation. Note that if the matrix is close to
// singular numerical errors may become large or infinity.
func (a Affine2D) Invert() Affine2D {
	if a.a == 0 && a.b == 0 && a.d == 0 && a.e == 0 {
		return Affine2D{c: -a.c, f: -a.f}
	}
	sx, hx, ox, hy, sy, oy := a.Elems()
	det := sx*sy - hx*hy
	isx, isy := sy/det, sx/det
	ihx, ihy := -hx/det, -hy/det
	return NewAffine2D(
		isx, ihx, -isx*ox-ihx*oy,
		ihy, isy, -ihy*ox-isy*oy,
	)
}

// Transform p by returning a*p.
func (a Affine2D) Transform(p Point) Point {
	sx, hx, ox, hy, sy, oy := a.Elems()
	return Point{
		X: p.X*sx + p.Y*hx + ox,
		Y: p.X*hy + p.Y*sy + oy,
	}
}
