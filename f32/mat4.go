// SPDX-License-Identifier: Unlicense OR MIT

package f32

import (
	xf32 "golang.org/x/image/math/f32"
)

// Mat4 is a 4x4 matrix in row major order; m[4*r+c] is the element
// in row r and column c. Vectors are column vectors multiplied on the
// right.
type Mat4 = xf32.Mat4

// Vec4 is a homogeneous coordinate.
type Vec4 = xf32.Vec4

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul4 returns the product a*b. Applied to a vector, b acts first.
func Mul4(a, b Mat4) Mat4 {
	var m Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += a[4*r+k] * b[4*k+c]
			}
			m[4*r+c] = s
		}
	}
	return m
}

// Transform4 returns m*v.
func Transform4(m Mat4, v Vec4) Vec4 {
	var o Vec4
	for r := 0; r < 4; r++ {
		o[r] = m[4*r]*v[0] + m[4*r+1]*v[1] + m[4*r+2]*v[2] + m[4*r+3]*v[3]
	}
	return o
}

// Ortho returns an orthographic projection mapping the box
// [left,right]x[bottom,top]x[-near,-far] to normalized device
// coordinates.
func Ortho(left, right, bottom, top, near, far float32) Mat4 {
	return Mat4{
		2 / (right - left), 0, 0, -(right + left) / (right - left),
		0, 2 / (top - bottom), 0, -(top + bottom) / (top - bottom),
		0, 0, -2 / (far - near), -(far + near) / (far - near),
		0, 0, 0, 1,
	}
}

// ScaleTranslate returns the matrix scaling x and y by sx and sy and
// then translating by tx and ty. Z and w are left untouched.
func ScaleTranslate(sx, sy, tx, ty float32) Mat4 {
	return Mat4{
		sx, 0, 0, tx,
		0, sy, 0, ty,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// AffineMat4 embeds a 2D affine transform in the xy plane.
func AffineMat4(a Affine2D) Mat4 {
	sx, hx, ox, hy, sy, oy := a.Elems()
	return Mat4{
		sx, hx, 0, ox,
		hy, sy, 0, oy,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
