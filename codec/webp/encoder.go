// Package webp encodes cursor images as WebP, lossless or lossy.
package webp

import (
	"context"
	"image"

	"github.com/chai2010/webp"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/edaniels/cursorstream/codec"
)

type encoder struct {
	format  codec.Format
	quality float32
	logger  golog.Logger
}

// NewEncoder returns a WebP encoder. A quality of zero selects
// lossless encoding regardless of the requested format; otherwise
// quality must be in 1..100.
func NewEncoder(format codec.Format, quality int, logger golog.Logger) (codec.Encoder, error) {
	if quality < 0 || quality > 100 {
		return nil, errors.Errorf("quality %d out of range [0, 100]", quality)
	}
	if quality == 0 {
		format = codec.FormatLossless
	}
	switch format {
	case codec.FormatLossless, codec.FormatLossy:
	default:
		return nil, errors.Errorf("unknown format %d", format)
	}
	return &encoder{format: format, quality: float32(quality), logger: logger}, nil
}

func (e *encoder) Encode(ctx context.Context, img image.Image) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	var err error
	if e.format == codec.FormatLossless {
		data, err = webp.EncodeLosslessRGBA(img)
	} else {
		data, err = webp.EncodeRGBA(img, e.quality)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encoding webp")
	}
	return data, nil
}

func (e *encoder) Format() codec.Format {
	return e.format
}
