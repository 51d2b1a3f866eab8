//go:build windows

package platform

import (
	"context"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/edaniels/cursorstream"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	gdi32  = windows.NewLazySystemDLL("gdi32.dll")

	procGetCursorInfo      = user32.NewProc("GetCursorInfo")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procCopyIcon           = user32.NewProc("CopyIcon")
	procDestroyIcon        = user32.NewProc("DestroyIcon")
	procGetIconInfo        = user32.NewProc("GetIconInfo")
	procGetObjectW         = gdi32.NewProc("GetObjectW")
	procGetDIBits          = gdi32.NewProc("GetDIBits")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

const (
	cursorShowing = 0x1

	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79

	// Pixels of slack when testing whether a hidden cursor sits on a
	// virtual screen edge. Some fullscreen applications park the
	// cursor at an edge and report it hidden even though the user
	// still sees one; those hides are suppressed.
	screenEdgeMargin = 2

	biRGB        = 0
	dibRGBColors = 0
)

type point struct {
	x int32
	y int32
}

type cursorInfo struct {
	cbSize      uint32
	flags       uint32
	hCursor     windows.Handle
	ptScreenPos point
}

type iconInfo struct {
	fIcon    int32
	xHotspot uint32
	yHotspot uint32
	hbmMask  windows.Handle
	hbmColor windows.Handle
}

type bitmapStruct struct {
	bmType       int32
	bmWidth      int32
	bmHeight     int32
	bmWidthBytes int32
	bmPlanes     uint16
	bmBitsPixel  uint16
	bmBits       uintptr
}

type bitmapInfoHeader struct {
	biSize          uint32
	biWidth         int32
	biHeight        int32
	biPlanes        uint16
	biBitCount      uint16
	biCompression   uint32
	biSizeImage     uint32
	biXPelsPerMeter int32
	biYPelsPerMeter int32
	biClrUsed       uint32
	biClrImportant  uint32
}

type querier struct{}

// NewQuerier returns the native windows cursor querier.
func NewQuerier() (cursorstream.CursorQuerier, error) {
	if err := user32.Load(); err != nil {
		return nil, errors.Wrap(err, "loading user32")
	}
	if err := gdi32.Load(); err != nil {
		return nil, errors.Wrap(err, "loading gdi32")
	}
	return &querier{}, nil
}

func (q *querier) Query(ctx context.Context) (cursorstream.CursorState, error) {
	if err := ctx.Err(); err != nil {
		return cursorstream.CursorState{}, err
	}
	var ci cursorInfo
	ci.cbSize = uint32(unsafe.Sizeof(ci))
	ret, _, callErr := procGetCursorInfo.Call(uintptr(unsafe.Pointer(&ci)))
	if ret == 0 {
		return cursorstream.CursorState{}, errors.Wrap(callErr, "GetCursorInfo")
	}
	if ci.flags&cursorShowing == 0 {
		if onVirtualScreenEdge(ci.ptScreenPos) {
			return cursorstream.CursorState{}, errors.New("cursor hidden at screen edge")
		}
		return cursorstream.CursorState{Visible: false}, nil
	}
	return cursorstream.CursorState{
		Visible: true,
		Handle:  cursorstream.HandleToken(ci.hCursor),
	}, nil
}

func onVirtualScreenEdge(pt point) bool {
	metric := func(index int) int32 {
		ret, _, _ := procGetSystemMetrics.Call(uintptr(index))
		return int32(ret)
	}
	left := metric(smXVirtualScreen)
	top := metric(smYVirtualScreen)
	right := left + metric(smCXVirtualScreen)
	bottom := top + metric(smCYVirtualScreen)
	return pt.x <= left+screenEdgeMargin || pt.x >= right-screenEdgeMargin ||
		pt.y <= top+screenEdgeMargin || pt.y >= bottom-screenEdgeMargin
}

func (q *querier) Capture(ctx context.Context, handle cursorstream.HandleToken) (*cursorstream.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The live cursor handle is shared; copy it so the icon data
	// cannot change mid-read.
	copied, _, callErr := procCopyIcon.Call(uintptr(handle))
	if copied == 0 {
		return nil, errors.Wrap(callErr, "CopyIcon")
	}
	defer procDestroyIcon.Call(copied)

	var ii iconInfo
	ret, _, callErr := procGetIconInfo.Call(copied, uintptr(unsafe.Pointer(&ii)))
	if ret == 0 {
		return nil, errors.Wrap(callErr, "GetIconInfo")
	}
	if ii.hbmColor != 0 {
		defer procDeleteObject.Call(uintptr(ii.hbmColor))
	}
	if ii.hbmMask != 0 {
		defer procDeleteObject.Call(uintptr(ii.hbmMask))
	}

	dc, _, callErr := procCreateCompatibleDC.Call(0)
	if dc == 0 {
		return nil, errors.Wrap(callErr, "CreateCompatibleDC")
	}
	defer procDeleteDC.Call(dc)

	hotX := int(ii.xHotspot)
	hotY := int(ii.yHotspot)
	if ii.hbmColor != 0 {
		return captureColor(dc, ii, hotX, hotY)
	}
	return captureMono(dc, ii, hotX, hotY)
}

func captureColor(dc uintptr, ii iconInfo, hotX, hotY int) (*cursorstream.Raster, error) {
	var bm bitmapStruct
	ret, _, callErr := procGetObjectW.Call(
		uintptr(ii.hbmColor),
		unsafe.Sizeof(bm),
		uintptr(unsafe.Pointer(&bm)),
	)
	if ret == 0 {
		return nil, errors.Wrap(callErr, "GetObject color bitmap")
	}
	width := int(bm.bmWidth)
	height := int(bm.bmHeight)
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(cursorstream.ErrUnsupportedFormat, "color bitmap %dx%d", width, height)
	}

	// Negative height requests a top-down DIB.
	hdr := bitmapInfoHeader{
		biWidth:       int32(width),
		biHeight:      -int32(height),
		biPlanes:      1,
		biBitCount:    32,
		biCompression: biRGB,
	}
	hdr.biSize = uint32(unsafe.Sizeof(hdr))
	pix := make([]byte, width*height*4)
	ret, _, callErr = procGetDIBits.Call(
		dc,
		uintptr(ii.hbmColor),
		0,
		uintptr(height),
		uintptr(unsafe.Pointer(&pix[0])),
		uintptr(unsafe.Pointer(&hdr)),
		dibRGBColors,
	)
	if ret == 0 {
		return nil, errors.Wrap(callErr, "GetDIBits color plane")
	}

	mask, maskStride, err := readMaskBits(dc, ii.hbmMask, width, height)
	if err != nil {
		// Transparency then falls back to the color plane's own
		// alpha, or fully opaque.
		mask = nil
	}
	return cursorstream.NormalizeColor(cursorstream.ColorBitmap{
		Width:       width,
		Height:      height,
		Pix:         pix,
		Stride:      width * 4,
		TopDown:     true,
		Mask:        mask,
		MaskStride:  maskStride,
		MaskTopDown: true,
		HotX:        hotX,
		HotY:        hotY,
	})
}

func captureMono(dc uintptr, ii iconInfo, hotX, hotY int) (*cursorstream.Raster, error) {
	var bm bitmapStruct
	ret, _, callErr := procGetObjectW.Call(
		uintptr(ii.hbmMask),
		unsafe.Sizeof(bm),
		uintptr(unsafe.Pointer(&bm)),
	)
	if ret == 0 {
		return nil, errors.Wrap(callErr, "GetObject mono bitmap")
	}
	width := int(bm.bmWidth)
	fullHeight := int(bm.bmHeight) // AND plane stacked above XOR plane
	if width <= 0 || fullHeight <= 0 || fullHeight%2 != 0 {
		return nil, errors.Wrapf(cursorstream.ErrUnsupportedFormat, "mono bitmap %dx%d", width, fullHeight)
	}

	bits, stride, err := readMaskBits(dc, ii.hbmMask, width, fullHeight)
	if err != nil {
		return nil, err
	}
	return cursorstream.NormalizeMono(cursorstream.MonoBitmap{
		Width:   width,
		Height:  fullHeight / 2,
		Pix:     bits,
		Stride:  stride,
		TopDown: true,
		HotX:    hotX,
		HotY:    hotY,
	})
}

// readMaskBits reads a 1bpp bitmap top-down. The BITMAPINFO passed to
// GetDIBits for a 1bpp read needs room for a two-entry color table
// after the header.
func readMaskBits(dc uintptr, hbm windows.Handle, width, height int) ([]byte, int, error) {
	if hbm == 0 {
		return nil, 0, errors.New("no mask bitmap")
	}
	stride := ((width + 31) / 32) * 4
	bits := make([]byte, stride*height)

	var hdr bitmapInfoHeader
	hdr.biSize = uint32(unsafe.Sizeof(hdr))
	hdr.biWidth = int32(width)
	hdr.biHeight = -int32(height)
	hdr.biPlanes = 1
	hdr.biBitCount = 1
	hdr.biCompression = biRGB
	info := make([]byte, unsafe.Sizeof(hdr)+8) // header + 2 RGBQUAD entries
	copy(info, (*[unsafe.Sizeof(hdr)]byte)(unsafe.Pointer(&hdr))[:])

	ret, _, callErr := procGetDIBits.Call(
		dc,
		uintptr(hbm),
		0,
		uintptr(height),
		uintptr(unsafe.Pointer(&bits[0])),
		uintptr(unsafe.Pointer(&info[0])),
		dibRGBColors,
	)
	if ret == 0 {
		return nil, 0, errors.Wrap(callErr, "GetDIBits mask")
	}
	return bits, stride, nil
}

func (q *querier) Close() error {
	return nil
}
