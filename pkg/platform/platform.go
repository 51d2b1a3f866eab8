// Package platform provides the native cursor querier for the host
// operating system. Only windows has a real implementation; other
// platforms get a stub that fails at construction.
package platform

import "github.com/pkg/errors"

// ErrUnsupported is returned by NewQuerier on platforms without a
// native cursor implementation.
var ErrUnsupported = errors.New("cursor capture not supported on this platform")
