package cursorstream

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/edaniels/cursorstream/codec"
)

// A HandleToken is an opaque token identifying the platform's current
// cursor resource. Equal tokens across consecutive polls mean the
// platform has not switched cursors; they say nothing about pixel
// content beyond that.
type HandleToken uintptr

// A CursorState is the result of a cheap visibility poll.
type CursorState struct {
	Visible bool
	Handle  HandleToken
}

// A CursorSample is one tick's observation. Raster is nil when the
// handle matched the previous tick and no pixels were captured.
type CursorSample struct {
	Hidden bool
	Handle HandleToken
	Raster *Raster
}

// A CursorQuerier reads cursor state from the platform. Query must be
// cheap since it runs every tick; Capture reads and normalizes pixel
// data and runs only on transitions and forced refreshes.
type CursorQuerier interface {
	Query(ctx context.Context) (CursorState, error)
	Capture(ctx context.Context, handle HandleToken) (*Raster, error)
	Close() error
}

// A CaptureSource polls the platform cursor on a fixed cadence, runs
// each sample through the decision engine, and publishes decided
// messages with latest-wins semantics: a slow consumer observes the
// newest decision, never a backlog.
type CaptureSource struct {
	querier  CursorQuerier
	sess     *session
	interval time.Duration
	scale    float32
	logger   golog.Logger

	out chan *Message

	mu                      sync.Mutex
	started                 bool
	stopped                 bool
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewCaptureSource wires a querier, cache, and encoder into a capture
// pipeline configured by cfg.
func NewCaptureSource(querier CursorQuerier, cache *Cache, enc codec.Encoder, cfg Config) *CaptureSource {
	cfg = cfg.withDefaults()
	cs := &CaptureSource{
		querier:  querier,
		interval: cfg.TickInterval,
		scale:    cfg.CaptureScale,
		logger:   cfg.Logger,
		out:      make(chan *Message, 1),
	}
	cs.sess = newSession(cfg.Logger, cache, enc, cs.captureRaster, cfg.ForceRefreshInterval)
	cs.cancelCtx, cs.cancelFunc = context.WithCancel(context.Background())
	return cs
}

// Messages returns the decided message stream. The channel is closed
// by Stop.
func (cs *CaptureSource) Messages() <-chan *Message {
	return cs.out
}

// Start begins polling. It is an error to start twice.
func (cs *CaptureSource) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.started {
		return ErrAlreadyStarted
	}
	cs.started = true
	cs.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(cs.pollLoop, cs.activeBackgroundWorkers.Done)
	return nil
}

func (cs *CaptureSource) pollLoop() {
	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()
	var prevHandle HandleToken
	for {
		select {
		case <-cs.cancelCtx.Done():
			return
		case <-ticker.C:
		}

		state, err := cs.querier.Query(cs.cancelCtx)
		if err != nil {
			if cs.cancelCtx.Err() != nil {
				return
			}
			cs.logger.Debugw("cursor query failed", "error", err)
			continue
		}

		var sample CursorSample
		if !state.Visible {
			sample.Hidden = true
			prevHandle = 0
		} else {
			sample.Handle = state.Handle
			if state.Handle != prevHandle {
				raster, err := cs.captureRaster(cs.cancelCtx, state.Handle)
				if err != nil {
					if cs.cancelCtx.Err() != nil {
						return
					}
					cs.logger.Debugw("cursor capture failed", "handle", state.Handle, "error", err)
					continue
				}
				sample.Raster = raster
			}
			prevHandle = state.Handle
		}

		if msg := cs.sess.advance(cs.cancelCtx, sample); msg != nil {
			cs.publish(msg)
		}
	}
}

// captureRaster reads pixels for handle and applies the configured
// capture scale.
func (cs *CaptureSource) captureRaster(ctx context.Context, handle HandleToken) (*Raster, error) {
	raster, err := cs.querier.Capture(ctx, handle)
	if err != nil {
		return nil, err
	}
	return raster.Scale(cs.scale), nil
}

// publish hands msg off with latest-wins semantics: if the slot is
// occupied the stale message is dropped in favor of this one.
func (cs *CaptureSource) publish(msg *Message) {
	for {
		select {
		case cs.out <- msg:
			return
		default:
		}
		select {
		case <-cs.out:
		default:
		}
	}
}

// Stop halts polling, waits for the loop to exit, and closes the
// message channel.
func (cs *CaptureSource) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.started || cs.stopped {
		return
	}
	cs.stopped = true
	cs.cancelFunc()
	cs.activeBackgroundWorkers.Wait()
	close(cs.out)
}
