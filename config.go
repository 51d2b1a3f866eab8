package cursorstream

import (
	"time"

	"github.com/edaniels/golog"

	"github.com/edaniels/cursorstream/codec"
)

// Default protocol constants. ForceRefreshInterval is a tick count;
// the rest are durations.
const (
	DefaultBindAddress          = "127.0.0.1:5555"
	DefaultTickInterval         = 16 * time.Millisecond
	DefaultForceRefreshInterval = 20
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultQuality              = 80
)

// A Config configures a cursor streaming session and its server.
type Config struct {
	// BindAddress is the listen target for observer connections.
	BindAddress string

	// Format selects the payload encoding for Data messages.
	Format codec.Format

	// Quality is the lossy quality in 1..100; 0 selects lossless
	// encoding regardless of Format.
	Quality int

	// TickInterval is the capture poll cadence.
	TickInterval time.Duration

	// ForceRefreshInterval is the number of unchanged ticks after
	// which the current cursor is re-captured, re-encoded, and
	// re-sent. This is the only mechanism by which animated cursors
	// are observed; handle equality alone would suppress them.
	ForceRefreshInterval int

	// HeartbeatInterval is how often a liveness message is sent to
	// every observer regardless of cursor activity.
	HeartbeatInterval time.Duration

	// CaptureScale scales captured rasters before encoding. Zero or
	// one leaves them untouched.
	CaptureScale float32

	Logger golog.Logger
}

func (c Config) withDefaults() Config {
	if c.BindAddress == "" {
		c.BindAddress = DefaultBindAddress
	}
	if c.Format == 0 {
		c.Format = codec.FormatLossy
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ForceRefreshInterval == 0 {
		c.ForceRefreshInterval = DefaultForceRefreshInterval
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.CaptureScale == 0 {
		c.CaptureScale = 1
	}
	if c.Logger == nil {
		c.Logger = Logger
	}
	return c
}
