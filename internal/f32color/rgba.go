// SPDX-License-Identifier: Unlicense OR MIT

// Package f32color converts between the float colors carried in device
// state and the 8-bit premultiplied pixels stored in images.
package f32color

import (
	"image/color"

	"github.com/chewxy/math32"
)

// RGBA is a 32 bit floating point linear premultiplied color space.
type RGBA struct {
	R, G, B, A float32
}

// FromStraight converts a non-premultiplied color, as stored in the
// current color state, clamping each channel to [0, 1].
func FromStraight(c [4]float32) RGBA {
	a := clamp1(c[3])
	return RGBA{R: clamp1(c[0]) * a, G: clamp1(c[1]) * a, B: clamp1(c[2]) * a, A: a}
}

// FromRGBA converts an 8-bit premultiplied pixel.
func FromRGBA(c color.RGBA) RGBA {
	return RGBA{
		R: float32(c.R) / 0xff,
		G: float32(c.G) / 0xff,
		B: float32(c.B) / 0xff,
		A: float32(c.A) / 0xff,
	}
}

// RGBA rounds col to an 8-bit premultiplied pixel.
func (col RGBA) RGBA() color.RGBA {
	return color.RGBA{
		R: to8(col.R),
		G: to8(col.G),
		B: to8(col.B),
		A: to8(col.A),
	}
}

// Scale returns col with every channel multiplied by s.
func (col RGBA) Scale(s float32) RGBA {
	return RGBA{R: col.R * s, G: col.G * s, B: col.B * s, A: col.A * s}
}

// Add returns the channel-wise sum of col and c.
func (col RGBA) Add(c RGBA) RGBA {
	return RGBA{R: col.R + c.R, G: col.G + c.G, B: col.B + c.B, A: col.A + c.A}
}

// NRGBAToRGBA converts from non-premultiplied sRGB color to premultiplied
// sRGB color, rounding the same way the device does.
func NRGBAToRGBA(col color.NRGBA) color.RGBA {
	return FromStraight([4]float32{
		float32(col.R) / 0xff,
		float32(col.G) / 0xff,
		float32(col.B) / 0xff,
		float32(col.A) / 0xff,
	}).RGBA()
}

func to8(v float32) uint8 {
	return uint8(math32.Round(clamp1(v) * 0xff))
}

func clamp1(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}
