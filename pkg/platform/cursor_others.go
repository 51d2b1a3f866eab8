//go:build !windows

package platform

import "github.com/edaniels/cursorstream"

// NewQuerier fails on platforms without a native cursor
// implementation.
func NewQuerier() (cursorstream.CursorQuerier, error) {
	return nil, ErrUnsupported
}
