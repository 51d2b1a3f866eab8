package cursorstream

import (
	"context"

	"github.com/edaniels/golog"

	"github.com/edaniels/cursorstream/codec"
)

// A RefreshFunc re-captures the raster for the given cursor handle.
// The decision engine calls it on forced refreshes and when it needs
// a raster it was not handed this tick.
type RefreshFunc func(ctx context.Context, handle HandleToken) (*Raster, error)

// session is the per-tick decision engine. Given the latest cursor
// sample it decides between emitting nothing, a hide, a signal
// referencing a cached image, or a full payload. It is driven from a
// single goroutine and needs no locking of its own.
type session struct {
	logger  golog.Logger
	cache   *Cache
	enc     codec.Encoder
	refresh RefreshFunc

	// forceInterval is the number of unchanged ticks tolerated before
	// the current cursor is re-captured and re-sent. Animated cursors
	// keep their handle while their pixels change, so without this
	// the handle fast path would freeze them remotely.
	forceInterval int

	visible       bool
	lastHandle    HandleToken
	lastContentID ContentID
	sinceFresh    int
}

func newSession(logger golog.Logger, cache *Cache, enc codec.Encoder, refresh RefreshFunc, forceInterval int) *session {
	return &session{
		logger:        logger,
		cache:         cache,
		enc:           enc,
		refresh:       refresh,
		forceInterval: forceInterval,
	}
}

// advance consumes one capture sample and returns the message to
// broadcast, or nil for silence.
func (s *session) advance(ctx context.Context, sample CursorSample) *Message {
	if sample.Hidden {
		if !s.visible {
			return nil
		}
		s.visible = false
		s.lastHandle = 0
		s.lastContentID = ""
		s.sinceFresh = 0
		return NewHideMessage()
	}

	if s.visible && sample.Handle == s.lastHandle {
		s.sinceFresh++
		if s.forceInterval > 0 && s.sinceFresh >= s.forceInterval {
			return s.forceRefresh(ctx, sample.Handle)
		}
		return nil
	}

	raster := sample.Raster
	if raster == nil {
		var err error
		raster, err = s.refresh(ctx, sample.Handle)
		if err != nil {
			s.logger.Debugw("cursor capture failed", "error", err)
			return nil
		}
	}
	return s.transition(ctx, sample.Handle, raster)
}

// transition handles a cursor change: the raster is digested and
// either found in the cache (signal) or encoded and inserted (data).
func (s *session) transition(ctx context.Context, handle HandleToken, raster *Raster) *Message {
	id := DigestRaster(raster)
	s.visible = true
	s.lastHandle = handle
	s.sinceFresh = 0

	if entry, ok := s.cache.lookup(id); ok {
		s.cache.touch(id)
		s.lastContentID = id
		if Debug {
			s.logger.Debugw("cursor known", "content_id", id, "touches", entry.touches)
		}
		return NewSignalMessage(id, 0)
	}

	payload, err := s.enc.Encode(ctx, raster.Image())
	if err != nil {
		// The previous identifier must not survive here: a later
		// forced refresh would otherwise store this cursor's bytes
		// under the old identifier.
		s.lastContentID = ""
		s.logger.Errorw("cursor encode failed", "content_id", id, "error", err)
		return nil
	}
	entry := cacheEntry{
		id:      id,
		payload: payload,
		format:  s.enc.Format(),
		hotX:    int32(raster.HotX),
		hotY:    int32(raster.HotY),
		width:   int32(raster.Width),
		height:  int32(raster.Height),
	}
	s.cache.insert(entry)
	s.lastContentID = id
	if Debug {
		s.logger.Debugw("cursor encoded", "content_id", id, "bytes", len(payload))
	}
	return dataMessageFromEntry(entry)
}

// forceRefresh re-captures and re-encodes the current cursor without
// changing its identity, so observers of an animated cursor see fresh
// pixels under the same identifier.
func (s *session) forceRefresh(ctx context.Context, handle HandleToken) *Message {
	s.sinceFresh = 0
	raster, err := s.refresh(ctx, handle)
	if err != nil {
		s.logger.Debugw("forced refresh capture failed", "error", err)
		return nil
	}

	if s.lastContentID == "" {
		return s.transition(ctx, handle, raster)
	}

	payload, err := s.enc.Encode(ctx, raster.Image())
	if err != nil {
		s.logger.Errorw("forced refresh encode failed", "content_id", s.lastContentID, "error", err)
		return nil
	}
	s.cache.updatePayload(s.lastContentID, payload)
	s.cache.touch(s.lastContentID)
	return NewDataMessage(DataPayload{
		ContentID: s.lastContentID,
		Payload:   payload,
		Format:    s.enc.Format(),
		HotspotX:  int32(raster.HotX),
		HotspotY:  int32(raster.HotY),
		Width:     int32(raster.Width),
		Height:    int32(raster.Height),
	})
}
