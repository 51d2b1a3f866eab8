// Package codec defines the encoder interface and payload formats
// used for cursor images.
package codec

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// A Format identifies how a payload's bytes are encoded.
type Format uint8

// The supported payload formats.
const (
	FormatLossless Format = iota + 1
	FormatLossy
)

func (f Format) String() string {
	switch f {
	case FormatLossless:
		return "lossless"
	case FormatLossy:
		return "lossy"
	}
	return "unknown"
}

// ParseFormat parses a format name as found in flags and config.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "lossless", "LOSSLESS":
		return FormatLossless, nil
	case "lossy", "LOSSY":
		return FormatLossy, nil
	}
	return 0, errors.Errorf("unknown format %q", name)
}

// An Encoder turns a cursor image into payload bytes.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]byte, error)
	Format() Format
}
