// Package cursorstream implements a server that observes the host
// desktop cursor at high frequency and synchronizes it to remote
// observers over persistent connections.
//
// The pipeline is capture -> identity -> cache -> decision ->
// broadcast: a polling loop samples the native cursor state, distinct
// cursor images are content-addressed and cached in encoded form, and
// a per-tick decision chooses between silence, a lightweight signal
// referencing an already-known cursor, and a full payload. Decided
// messages are fanned out to every connected observer independently.
package cursorstream

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// ErrAlreadyStarted is returned by Start methods called more than
// once.
var ErrAlreadyStarted = errors.New("already started")

// Debug is whether to log debug information from the pipeline.
var Debug = false

// Logger is the global logger used in the absence of one supplied
// via configuration.
var Logger = golog.Global()
