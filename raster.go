package cursorstream

import (
	"image"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrUnsupportedFormat is returned by the raster normalizers when a
// native bitmap's bit depth or plane layout is unrecognized. Callers
// treat it as a skip-this-tick condition, not fatal.
var ErrUnsupportedFormat = errors.New("unsupported cursor bitmap format")

// A Raster is a normalized cursor image: straight (non-premultiplied)
// RGBA pixels in row-major top-down order, plus the hotspot.
type Raster struct {
	Width  int
	Height int
	Pix    []byte // 4*Width*Height bytes
	HotX   int
	HotY   int
}

// Image returns a copy of the raster as an image. NRGBA matches the
// raster's straight alpha.
func (r *Raster) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	copy(img.Pix, r.Pix)
	return img
}

// Scale returns the raster resized by factor with the hotspot scaled
// to match. Factors within 1% of one return the raster unchanged.
func (r *Raster) Scale(factor float32) *Raster {
	if factor <= 0 || math.Abs(float64(factor)-1) < 0.01 {
		return r
	}
	w := scaleDim(r.Width, factor)
	h := scaleDim(r.Height, factor)
	scaled := resize.Resize(uint(w), uint(h), r.Image(), resize.Bilinear)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return &Raster{
		Width:  w,
		Height: h,
		Pix:    img.Pix,
		HotX:   int(math.Round(float64(r.HotX) * float64(factor))),
		HotY:   int(math.Round(float64(r.HotY) * float64(factor))),
	}
}

func scaleDim(d int, factor float32) int {
	scaled := int(math.Round(float64(d) * float64(factor)))
	if scaled < 1 {
		return 1
	}
	return scaled
}

// A ColorBitmap is a 32-bit color plane read from a native cursor
// resource, together with its optional AND mask.
type ColorBitmap struct {
	Width  int
	Height int

	// Pix holds BGRA rows, Stride bytes each. Rows are stored
	// bottom-up unless TopDown is set, matching native DIB
	// conventions.
	Pix     []byte
	Stride  int
	TopDown bool

	// Mask optionally holds the AND mask: one bit per pixel, most
	// significant bit first, rows padded to MaskStride bytes. A set
	// bit marks a transparent pixel. Consulted only when the color
	// plane carries no live alpha channel.
	Mask        []byte
	MaskStride  int
	MaskTopDown bool

	HotX int
	HotY int
}

// NormalizeColor converts a color bitmap and mask pair into a
// normalized raster. A color plane whose alpha channel is entirely
// zero has no alpha information; transparency then comes from the
// AND mask, or the plane is treated as fully opaque when no mask was
// supplied.
func NormalizeColor(bm ColorBitmap) (*Raster, error) {
	if bm.Width <= 0 || bm.Height <= 0 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "bad dimensions %dx%d", bm.Width, bm.Height)
	}
	if bm.Stride < bm.Width*4 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "stride %d too small for width %d", bm.Stride, bm.Width)
	}
	if len(bm.Pix) < bm.Stride*bm.Height {
		return nil, errors.Wrap(ErrUnsupportedFormat, "color plane too short")
	}
	if bm.Mask != nil {
		if bm.MaskStride < (bm.Width+7)/8 {
			return nil, errors.Wrapf(ErrUnsupportedFormat, "mask stride %d too small for width %d", bm.MaskStride, bm.Width)
		}
		if len(bm.Mask) < bm.MaskStride*bm.Height {
			return nil, errors.Wrap(ErrUnsupportedFormat, "mask plane too short")
		}
	}

	hasAlpha := false
scan:
	for y := 0; y < bm.Height; y++ {
		row := bm.Pix[y*bm.Stride:]
		for x := 0; x < bm.Width; x++ {
			if row[x*4+3] != 0 {
				hasAlpha = true
				break scan
			}
		}
	}

	out := make([]byte, bm.Width*bm.Height*4)
	for y := 0; y < bm.Height; y++ {
		srcY := y
		if !bm.TopDown {
			srcY = bm.Height - 1 - y
		}
		row := bm.Pix[srcY*bm.Stride:]
		for x := 0; x < bm.Width; x++ {
			b, g, r, a := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]
			if !hasAlpha {
				a = 0xff
				if bm.Mask != nil && maskBit(bm.Mask, bm.MaskStride, bm.MaskTopDown, bm.Height, x, y) {
					a = 0
				}
			}
			o := (y*bm.Width + x) * 4
			out[o], out[o+1], out[o+2], out[o+3] = r, g, b, a
		}
	}
	return &Raster{Width: bm.Width, Height: bm.Height, Pix: out, HotX: bm.HotX, HotY: bm.HotY}, nil
}

func maskBit(mask []byte, stride int, topDown bool, height, x, y int) bool {
	row := y
	if !topDown {
		row = height - 1 - y
	}
	return mask[row*stride+x/8]&(0x80>>uint(x%8)) != 0
}

// A MonoBitmap is a monochrome cursor resource: a single one-bit
// buffer stacking the AND mask above the XOR mask, each Height rows
// tall.
type MonoBitmap struct {
	Width  int
	Height int // visible cursor height; Pix holds 2*Height rows

	// Pix holds one-bit rows, most significant bit first, Stride
	// bytes each. Rows are stored bottom-up across the full
	// double-height buffer unless TopDown is set.
	Pix     []byte
	Stride  int
	TopDown bool

	HotX int
	HotY int
}

// Alpha assigned to screen-inversion pixels. They cannot be
// reproduced remotely, so they render dark and get a white outline
// for visibility on dark backgrounds.
const (
	invertAlpha      = 200
	invertOutlinePad = 4
)

// NormalizeMono reconstructs full pixel semantics from a monochrome
// cursor's AND/XOR planes: transparent, opaque black, opaque white,
// or screen inversion.
func NormalizeMono(bm MonoBitmap) (*Raster, error) {
	if bm.Width <= 0 || bm.Height <= 0 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "bad dimensions %dx%d", bm.Width, bm.Height)
	}
	if bm.Stride < (bm.Width+7)/8 {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "stride %d too small for width %d", bm.Stride, bm.Width)
	}
	fullHeight := 2 * bm.Height
	if len(bm.Pix) < bm.Stride*fullHeight {
		return nil, errors.Wrap(ErrUnsupportedFormat, "mask buffer too short for AND/XOR planes")
	}

	bit := func(x, logicalRow int) bool {
		row := logicalRow
		if !bm.TopDown {
			row = fullHeight - 1 - logicalRow
		}
		return bm.Pix[row*bm.Stride+x/8]&(0x80>>uint(x%8)) != 0
	}

	out := make([]byte, bm.Width*bm.Height*4)
	inverted := false
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			and := bit(x, y)
			xor := bit(x, y+bm.Height)
			o := (y*bm.Width + x) * 4
			switch {
			case !and && !xor: // opaque black
				out[o+3] = 0xff
			case !and && xor: // opaque white
				out[o], out[o+1], out[o+2], out[o+3] = 0xff, 0xff, 0xff, 0xff
			case and && !xor: // transparent
			default: // screen inversion
				inverted = true
				out[o+3] = invertAlpha
			}
		}
	}

	raster := &Raster{Width: bm.Width, Height: bm.Height, Pix: out, HotX: bm.HotX, HotY: bm.HotY}
	if inverted {
		raster = outlineRaster(raster, invertOutlinePad)
	}
	return raster, nil
}

// outlineRaster expands the canvas by pad pixels on each side and
// draws a white, distance-faded outline around near-opaque pixels.
func outlineRaster(r *Raster, pad int) *Raster {
	w := r.Width + 2*pad
	h := r.Height + 2*pad
	pix := make([]byte, w*h*4)
	for y := 0; y < r.Height; y++ {
		src := r.Pix[y*r.Width*4 : (y+1)*r.Width*4]
		dst := ((y+pad)*w + pad) * 4
		copy(pix[dst:dst+len(src)], src)
	}

	radius := pad
	maxDist2 := float64(radius * radius)
	type outlinePx struct {
		idx   int
		alpha uint8
	}
	var outline []outlinePx
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * 4
			if pix[idx+3] > 0 {
				continue
			}
			minDist2 := math.MaxFloat64
			for ny := max(0, y-radius); ny <= min(h-1, y+radius); ny++ {
				for nx := max(0, x-radius); nx <= min(w-1, x+radius); nx++ {
					if pix[(ny*w+nx)*4+3] < invertAlpha {
						continue
					}
					dx := float64(x - nx)
					dy := float64(y - ny)
					if d2 := dx*dx + dy*dy; d2 < minDist2 {
						minDist2 = d2
					}
				}
			}
			if minDist2 > maxDist2 {
				continue
			}
			alpha := (1 - math.Sqrt(minDist2)/float64(radius)) * 255
			if alpha <= 0 {
				continue
			}
			outline = append(outline, outlinePx{idx, uint8(alpha)})
		}
	}
	for _, px := range outline {
		pix[px.idx], pix[px.idx+1], pix[px.idx+2] = 0xff, 0xff, 0xff
		pix[px.idx+3] = px.alpha
	}
	return &Raster{Width: w, Height: h, Pix: pix, HotX: r.HotX + pad, HotY: r.HotY + pad}
}
