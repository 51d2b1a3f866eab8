package cursorstream

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func pixelAt(r *Raster, x, y int) [4]byte {
	o := (y*r.Width + x) * 4
	return [4]byte{r.Pix[o], r.Pix[o+1], r.Pix[o+2], r.Pix[o+3]}
}

func TestNormalizeMono(t *testing.T) {
	// 8x1 cursor. AND 0x0F, XOR 0x50 covers all four plane
	// combinations: black, white, black, white, then transparent.
	fixture := MonoBitmap{
		Width:   8,
		Height:  1,
		Pix:     []byte{0x0F, 0x50},
		Stride:  1,
		TopDown: true,
		HotX:    2,
		HotY:    0,
	}

	r, err := NormalizeMono(fixture)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Width, test.ShouldEqual, 8)
	test.That(t, r.Height, test.ShouldEqual, 1)
	test.That(t, r.HotX, test.ShouldEqual, 2)

	black := [4]byte{0, 0, 0, 0xff}
	white := [4]byte{0xff, 0xff, 0xff, 0xff}
	clear := [4]byte{0, 0, 0, 0}
	want := [][4]byte{black, white, black, white, clear, clear, clear, clear}
	for x, px := range want {
		test.That(t, pixelAt(r, x, 0), test.ShouldResemble, px)
	}

	t.Run("bottom-up matches top-down", func(t *testing.T) {
		// The same cursor with the double-height buffer stored
		// bottom-up: XOR row first, then AND row.
		flipped := fixture
		flipped.Pix = []byte{0x50, 0x0F}
		flipped.TopDown = false

		r2, err := NormalizeMono(flipped)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, r2.Pix, test.ShouldResemble, r.Pix)
	})
}

func TestNormalizeMonoInversion(t *testing.T) {
	// Pixel 0 has both planes set: a screen-inversion pixel. The
	// raster expands and gets a white outline so the cursor stays
	// visible without real inversion support.
	r, err := NormalizeMono(MonoBitmap{
		Width:   8,
		Height:  1,
		Pix:     []byte{0xFF, 0x80},
		Stride:  1,
		TopDown: true,
		HotX:    1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Width, test.ShouldEqual, 8+2*invertOutlinePad)
	test.That(t, r.Height, test.ShouldEqual, 1+2*invertOutlinePad)
	test.That(t, r.HotX, test.ShouldEqual, 1+invertOutlinePad)
	test.That(t, r.HotY, test.ShouldEqual, invertOutlinePad)

	// The inversion pixel itself renders dark and semi-opaque.
	test.That(t, pixelAt(r, invertOutlinePad, invertOutlinePad),
		test.ShouldResemble, [4]byte{0, 0, 0, invertAlpha})

	// A direct neighbor picks up a faded white outline.
	neighbor := pixelAt(r, invertOutlinePad-1, invertOutlinePad)
	test.That(t, neighbor[0], test.ShouldEqual, 0xff)
	test.That(t, neighbor[1], test.ShouldEqual, 0xff)
	test.That(t, neighbor[2], test.ShouldEqual, 0xff)
	test.That(t, neighbor[3], test.ShouldBeGreaterThan, 0)

	// Corners sit outside the outline radius.
	test.That(t, pixelAt(r, 0, 0), test.ShouldResemble, [4]byte{0, 0, 0, 0})
}

func TestNormalizeMonoErrors(t *testing.T) {
	_, err := NormalizeMono(MonoBitmap{Width: 0, Height: 1, Stride: 1})
	test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)

	_, err = NormalizeMono(MonoBitmap{Width: 8, Height: 2, Pix: []byte{0x00}, Stride: 1})
	test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)
}

func TestNormalizeColor(t *testing.T) {
	t.Run("alpha channel present", func(t *testing.T) {
		// 2x2 BGRA stored bottom-up with 4 bytes of row padding.
		pix := []byte{
			// bottom row of the image: blue, green
			0xff, 0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0, 0, 0, 0,
			// top row of the image: red, half-transparent white
			0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0x80, 0, 0, 0, 0,
		}
		r, err := NormalizeColor(ColorBitmap{
			Width:  2,
			Height: 2,
			Pix:    pix,
			Stride: 12,
			HotX:   1,
			HotY:   1,
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pixelAt(r, 0, 0), test.ShouldResemble, [4]byte{0xff, 0x00, 0x00, 0xff})
		test.That(t, pixelAt(r, 1, 0), test.ShouldResemble, [4]byte{0xff, 0xff, 0xff, 0x80})
		test.That(t, pixelAt(r, 0, 1), test.ShouldResemble, [4]byte{0x00, 0x00, 0xff, 0xff})
		test.That(t, pixelAt(r, 1, 1), test.ShouldResemble, [4]byte{0x00, 0xff, 0x00, 0xff})
	})

	t.Run("no alpha uses AND mask", func(t *testing.T) {
		pix := []byte{
			0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0x00, 0x00,
		}
		r, err := NormalizeColor(ColorBitmap{
			Width:       2,
			Height:      1,
			Pix:         pix,
			Stride:      8,
			TopDown:     true,
			Mask:        []byte{0x40}, // second pixel transparent
			MaskStride:  1,
			MaskTopDown: true,
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pixelAt(r, 0, 0), test.ShouldResemble, [4]byte{0xff, 0x00, 0x00, 0xff})
		test.That(t, pixelAt(r, 1, 0)[3], test.ShouldEqual, 0)
	})

	t.Run("no alpha and no mask is opaque", func(t *testing.T) {
		r, err := NormalizeColor(ColorBitmap{
			Width:   1,
			Height:  1,
			Pix:     []byte{0x10, 0x20, 0x30, 0x00},
			Stride:  4,
			TopDown: true,
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pixelAt(r, 0, 0), test.ShouldResemble, [4]byte{0x30, 0x20, 0x10, 0xff})
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := NormalizeColor(ColorBitmap{Width: 4, Height: 4, Pix: []byte{0}, Stride: 16})
		test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)
	})
}

func TestRasterScale(t *testing.T) {
	r := solidRaster(4, 4, 10, 20, 30, 255)
	r.HotX, r.HotY = 2, 3

	scaled := r.Scale(2)
	test.That(t, scaled.Width, test.ShouldEqual, 8)
	test.That(t, scaled.Height, test.ShouldEqual, 8)
	test.That(t, scaled.HotX, test.ShouldEqual, 4)
	test.That(t, scaled.HotY, test.ShouldEqual, 6)
	test.That(t, len(scaled.Pix), test.ShouldEqual, 8*8*4)
	// Bilinear over a solid fill stays solid.
	test.That(t, pixelAt(scaled, 4, 4), test.ShouldResemble, [4]byte{10, 20, 30, 255})

	// Near-identity factors are a no-op.
	test.That(t, r.Scale(1), test.ShouldEqual, r)
	test.That(t, r.Scale(1.005), test.ShouldEqual, r)
	test.That(t, r.Scale(0), test.ShouldEqual, r)

	down := r.Scale(0.5)
	test.That(t, down.Width, test.ShouldEqual, 2)
	test.That(t, down.HotX, test.ShouldEqual, 1)
}
