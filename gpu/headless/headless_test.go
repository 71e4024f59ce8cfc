// SPDX-License-Identifier: Unlicense OR MIT

package headless

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/f32"
	"geoviz.org/render/gpu/driver"
)

var (
	red   = [4]float32{1, 0, 0, 1}
	green = [4]float32{0, 1, 0, 1}
)

// pixelProjection maps window pixels of a w x h top-left surface.
func pixelProjection(w, h int) f32.Mat4 {
	return f32.Ortho(0, float32(w), float32(h), 0, -1, 1)
}

func setVertices(d *Device, v ...float32) {
	d.SetVertexAttrib(0, driver.Attrib{Enabled: true, Data: &v, Size: 2})
}

func TestClear(t *testing.T) {
	d := New(Options{Size: image.Pt(16, 16)})
	d.SetClearColor(red)
	d.Clear(driver.ClearColor)
	img := d.Surface()
	if got, exp := img.RGBAAt(5, 5), (color.RGBA{R: 0xff, A: 0xff}); got != exp {
		t.Errorf("got %v, expected %v", got, exp)
	}
}

func TestScissoredClear(t *testing.T) {
	d := New(Options{Size: image.Pt(16, 16)})
	d.SetEnabled(driver.CapScissorTest, true)
	d.SetScissor(image.Rect(4, 4, 8, 8))
	d.SetClearColor(red)
	d.Clear(driver.ClearColor)
	img := d.Surface()
	if got := img.RGBAAt(5, 5); got.R != 0xff {
		t.Errorf("inside scissor: got %v", got)
	}
	if got := img.RGBAAt(2, 2); got != (color.RGBA{}) {
		t.Errorf("outside scissor: got %v", got)
	}
}

func TestTriangle(t *testing.T) {
	d := New(Options{Size: image.Pt(32, 32)})
	d.SetMatrix(driver.MatrixProjection, pixelProjection(32, 32))
	d.SetColor(green)
	setVertices(d, 0, 0, 32, 0, 0, 32)
	d.DrawArrays(gputypes.PrimitiveTopologyTriangleList, 0, 3)
	img := d.Surface()
	if got := img.RGBAAt(2, 2); got.G != 0xff {
		t.Errorf("inside triangle: got %v", got)
	}
	if got := img.RGBAAt(30, 30); got != (color.RGBA{}) {
		t.Errorf("outside triangle: got %v", got)
	}
}

func TestBottomLeftOrigin(t *testing.T) {
	d := New(Options{Size: image.Pt(32, 32), BottomLeft: true})
	// y up.
	d.SetMatrix(driver.MatrixProjection, f32.Ortho(0, 32, 0, 32, -1, 1))
	d.SetColor(green)
	setVertices(d, 0, 0, 8, 0, 8, 8, 0, 0, 8, 8, 0, 8)
	d.DrawArrays(gputypes.PrimitiveTopologyTriangleList, 0, 6)
	img := d.Surface()
	// The square at the window origin is displayed in the lower left
	// corner.
	if got := img.RGBAAt(2, 29); got.G != 0xff {
		t.Errorf("lower left: got %v", got)
	}
	if got := img.RGBAAt(2, 2); got != (color.RGBA{}) {
		t.Errorf("upper left: got %v", got)
	}
}

func TestPointCenterClipping(t *testing.T) {
	d := New(Options{Size: image.Pt(32, 32)})
	d.SetMatrix(driver.MatrixProjection, pixelProjection(32, 32))
	d.SetViewport(image.Rect(0, 0, 16, 32))
	d.SetMatrix(driver.MatrixProjection, pixelProjection(16, 32))
	d.SetPointSize(8)
	d.SetColor(red)
	// The first point is inside the viewport and overlaps its edge, the
	// second is centered outside of it.
	setVertices(d, 14, 8, 18, 24)
	d.DrawArrays(gputypes.PrimitiveTopologyPointList, 0, 2)
	img := d.Surface()
	if got := img.RGBAAt(17, 8); got.R != 0xff {
		t.Errorf("overlap outside viewport: got %v", got)
	}
	if got := img.RGBAAt(15, 24); got != (color.RGBA{}) {
		t.Errorf("point centered outside viewport drawn: got %v", got)
	}
	// 8x8 pixels.
	n := 0
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if img.RGBAAt(x, y).R == 0xff {
				n++
			}
		}
	}
	if n != 64 {
		t.Errorf("point covers %d pixels, expected 64", n)
	}
}

func TestBlend(t *testing.T) {
	d := New(Options{Size: image.Pt(8, 8)})
	d.SetMatrix(driver.MatrixProjection, pixelProjection(8, 8))
	d.SetClearColor([4]float32{0, 0, 1, 1})
	d.Clear(driver.ClearColor)
	d.SetEnabled(driver.CapBlend, true)
	d.SetBlendFunc(gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha)
	d.SetColor([4]float32{1, 0, 0, .5})
	setVertices(d, 0, 0, 8, 0, 0, 8, 8, 0, 8, 8, 0, 8)
	d.DrawArrays(gputypes.PrimitiveTopologyTriangleList, 0, 6)
	got := d.Surface().RGBAAt(4, 4)
	if got.R != 0x80 || got.B != 0x80 || got.A != 0xff {
		t.Errorf("got %v, expected half red over blue", got)
	}
}

func TestRenderToTexture(t *testing.T) {
	d := New(Options{Size: image.Pt(8, 8), Offscreen: true})
	tex, err := d.NewTexture(gputypes.TextureFormatRGBA8Unorm, 4, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()
	fb, err := d.NewFramebuffer(tex, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fb.Release()
	d.BindFramebuffer(fb)
	d.SetClearColor(green)
	d.Clear(driver.ClearColor)
	if got := d.TextureImage(tex, 0).RGBAAt(3, 3); got.G != 0xff {
		t.Errorf("texture: got %v", got)
	}
	if got := d.Surface().RGBAAt(3, 3); got != (color.RGBA{}) {
		t.Errorf("surface modified: got %v", got)
	}
}

func TestIncompleteFramebuffer(t *testing.T) {
	d := New(Options{IncompleteFramebuffers: true})
	if !d.Caps().Features.Has(driver.FeatureOffscreenTargets) {
		t.Fatal("off-screen targets not advertised")
	}
	tex, err := d.NewTexture(gputypes.TextureFormatRGBA8Unorm, 4, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()
	if _, err := d.NewFramebuffer(tex, 0); !errors.Is(err, driver.ErrIncompleteFramebuffer) {
		t.Errorf("got error %v, expected %v", err, driver.ErrIncompleteFramebuffer)
	}
}

func TestCopyTexSubImage(t *testing.T) {
	d := New(Options{Size: image.Pt(8, 8)})
	d.SetEnabled(driver.CapScissorTest, true)
	d.SetScissor(image.Rect(2, 2, 4, 4))
	d.SetClearColor(red)
	d.Clear(driver.ClearColor)
	tex, err := d.NewTexture(gputypes.TextureFormatRGBA8Unorm, 4, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()
	d.CopyTexSubImage(tex, 0, image.Pt(1, 1), image.Rect(2, 2, 4, 4))
	img := d.TextureImage(tex, 0)
	if got := img.RGBAAt(1, 1); got.R != 0xff {
		t.Errorf("copied pixel: got %v", got)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Errorf("untouched pixel: got %v", got)
	}
}

func TestReadWritePixels(t *testing.T) {
	d := New(Options{Size: image.Pt(8, 8)})
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(1, 1, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	d.WritePixels(image.Pt(3, 3), src)
	r := image.Rect(3, 3, 5, 5)
	pix := make([]byte, r.Dx()*r.Dy()*4)
	if err := d.ReadPixels(r, pix); err != nil {
		t.Fatal(err)
	}
	if got := pix[len(pix)-4:]; got[0] != 1 || got[3] != 4 {
		t.Errorf("got %v", got)
	}
	if err := d.ReadPixels(r, pix[:4]); err == nil {
		t.Error("short buffer accepted")
	}
}

func TestFeedback(t *testing.T) {
	d := New(Options{Size: image.Pt(32, 32), Feedback: true})
	d.SetMatrix(driver.MatrixProjection, pixelProjection(32, 32))
	setVertices(d, 1, 2, 3, 4, 5, 6)
	d.BeginFeedback(8)
	d.DrawArrays(gputypes.PrimitiveTopologyPointList, 0, 3)
	pts, err := d.EndFeedback()
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 3 || pts[1] != f32.Pt(3, 4) {
		t.Errorf("got %v", pts)
	}
	if got := d.Surface().RGBAAt(1, 2); got != (color.RGBA{}) {
		t.Errorf("feedback mode rasterized: %v", got)
	}

	d.BeginFeedback(2)
	d.DrawArrays(gputypes.PrimitiveTopologyPointList, 0, 3)
	pts, err = d.EndFeedback()
	if !errors.Is(err, driver.ErrFeedbackOverflow) {
		t.Errorf("got error %v, expected overflow", err)
	}
	if len(pts) != 2 {
		t.Errorf("got %d truncated vertices, expected 2", len(pts))
	}
}

func TestCallsAndLive(t *testing.T) {
	d := New(Options{BufferObjects: true})
	b, err := d.NewBuffer(driver.BufferArray, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	d.BindBuffer(driver.BufferArray, b)
	d.SetColor(red)
	d.SetColor(red)
	if got := d.Calls()["SetColor"]; got != 2 {
		t.Errorf("got %d SetColor calls, expected 2", got)
	}
	if got := d.TotalCalls(); got != 4 {
		t.Errorf("got %d calls, expected 4", got)
	}
	if d.Live() != 1 {
		t.Errorf("got %d live objects, expected 1", d.Live())
	}
	b.Release()
	if d.Live() != 0 {
		t.Errorf("got %d live objects after release, expected 0", d.Live())
	}
	d.ResetCalls()
	if d.TotalCalls() != 0 {
		t.Error("calls not reset")
	}
}
