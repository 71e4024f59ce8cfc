// SPDX-License-Identifier: Unlicense OR MIT

package rendertest

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/colornames"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu"
	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/headless"
	"geoviz.org/render/gpu/resource"
	"geoviz.org/render/gpu/state"
)

var dumpImages = flag.Bool("saveimages", false, "save test images")

var (
	red     = straight(colornames.Red)
	green   = straight(colornames.Green)
	blue    = straight(colornames.Blue)
	magenta = straight(colornames.Magenta)
	white   = straight(colornames.White)
)

// straight converts an opaque named color to the state representation.
func straight(c color.RGBA) [4]float32 {
	return [4]float32{float32(c.R) / 0xff, float32(c.G) / 0xff, float32(c.B) / 0xff, float32(c.A) / 0xff}
}

type fixture struct {
	t   *testing.T
	dev *headless.Device
	l   *gpu.Layer
}

func newFixture(t *testing.T, opts headless.Options, lopts ...gpu.Option) *fixture {
	t.Helper()
	dev := headless.New(opts)
	l, err := gpu.New(dev, lopts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		l.Release()
		dev.Release()
	})
	return &fixture{t: t, dev: dev, l: l}
}

func (f *fixture) newTexture(sz image.Point) *resource.Handle {
	f.t.Helper()
	tex, err := f.l.Resources().NewTexture("target", gputypes.TextureFormatRGBA8Unorm, sz.X, sz.Y, 1)
	require.NoError(f.t, err)
	f.t.Cleanup(tex.Release)
	return tex
}

// renderTarget renders scene into t, tile by tile, and returns the
// content of the target texture.
func (f *fixture) renderTarget(t gpu.Target, scene func(l *gpu.Layer, adj f32.Mat4)) *image.RGBA {
	f.t.Helper()
	sc := f.l.BeginRender(nil)
	defer sc.Release()
	tr, err := f.l.BeginTarget(t)
	require.NoError(f.t, err)
	for {
		scene(f.l, tr.BeginTile())
		if !tr.EndTile() {
			break
		}
	}
	tr.End()
	sc.End()
	return f.dev.TextureImage(t.Texture.Texture(), t.Level)
}

func setVertices(l *gpu.Layer, v ...float32) {
	l.SetVertexAttrib(0, state.Attrib{Enabled: true, Data: &v, Size: 2})
}

// pixels sets a projection mapping a w x h destination in pixels, top
// row first, pre-multiplied by the tile adjustment.
func pixels(l *gpu.Layer, adj f32.Mat4, sz image.Point) {
	l.SetMatrix(driver.MatrixProjection, f32.Mul4(adj, f32.Ortho(0, float32(sz.X), float32(sz.Y), 0, -1, 1)))
}

// compareImages fails the test at the first pixel that differs.
func compareImages(t *testing.T, exp, got *image.RGBA) {
	t.Helper()
	if exp.Bounds() != got.Bounds() {
		t.Fatalf("image is %v, expected %v", got.Bounds(), exp.Bounds())
	}
	bnd := exp.Bounds()
	for y := bnd.Min.Y; y < bnd.Max.Y; y++ {
		for x := bnd.Min.X; x < bnd.Max.X; x++ {
			if e, g := exp.RGBAAt(x, y), got.RGBAAt(x, y); e != g {
				t.Errorf("images differ at (%d,%d): got %v, expected %v", x, y, g, e)
				name := strings.ReplaceAll(t.Name(), "/", "_")
				saveImage(t, fmt.Sprintf("%s-exp.png", name), exp)
				saveImage(t, fmt.Sprintf("%s-got.png", name), got)
				return
			}
		}
	}
}

func expect(t *testing.T, img *image.RGBA, x, y int, col color.RGBA) {
	t.Helper()
	if c := img.RGBAAt(x, y); !colorsClose(c, col) {
		t.Error("expected ", col, " at ", "(", x, ",", y, ") but got ", c)
	}
}

func colorsClose(c1, c2 color.RGBA) bool {
	const delta = 0.01 // magic value obtained from experimentation.
	return yiqEqApprox(c1, c2, delta) && alphaClose(c1, c2)
}

func alphaClose(c1, c2 color.RGBA) bool {
	d := int(c1.A) - int(c2.A)
	return d > -8 && d < 8
}

// yiqEqApprox compares the colors of 2 pixels, in the NTSC YIQ color space,
// as described in:
//
//	Measuring perceived color difference using YIQ NTSC
//	transmission color space in mobile applications.
//	Yuriy Kotsarenko, Fernando Ramos.
//
// An electronic version is available at:
//
// - http://www.progmat.uaem.mx:8080/artVol2Num2/Articulo3Vol2Num2.pdf
func yiqEqApprox(c1, c2 color.RGBA, d2 float64) bool {
	const max = 35215.0 // difference between 2 maximally different pixels.

	var (
		r1 = float64(c1.R)
		g1 = float64(c1.G)
		b1 = float64(c1.B)

		r2 = float64(c2.R)
		g2 = float64(c2.G)
		b2 = float64(c2.B)

		y1 = r1*0.29889531 + g1*0.58662247 + b1*0.11448223
		i1 = r1*0.59597799 - g1*0.27417610 - b1*0.32180189
		q1 = r1*0.21147017 - g1*0.52261711 + b1*0.31114694

		y2 = r2*0.29889531 + g2*0.58662247 + b2*0.11448223
		i2 = r2*0.59597799 - g2*0.27417610 - b2*0.32180189
		q2 = r2*0.21147017 - g2*0.52261711 + b2*0.31114694

		y = y1 - y2
		i = i1 - i2
		q = q1 - q2

		diff = 0.5053*y*y + 0.299*i*i + 0.1957*q*q
	)
	return diff <= max*d2
}

func saveImage(t testing.TB, file string, img *image.RGBA) {
	if !*dumpImages {
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Error(err)
		return
	}
	if err := os.WriteFile(file, buf.Bytes(), 0666); err != nil {
		t.Error(err)
		return
	}
}
