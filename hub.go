package cursorstream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// observerSendBuffer bounds each observer's pending message queue.
// An observer that cannot drain it is disconnected rather than
// allowed to stall the broadcast.
const observerSendBuffer = 16

// An ObserverConn is a transport-level connection to one observer.
// WebSocket and WebRTC data channel transports both satisfy it.
type ObserverConn interface {
	WriteBinary(data []byte) error
	Close() error
}

type observer struct {
	id     uuid.UUID
	conn   ObserverConn
	sendCh chan *Message

	mu   sync.Mutex
	dpr  float32
	seen map[ContentID]bool

	cancel    chan struct{}
	closeOnce sync.Once

	joined time.Time
}

func (o *observer) close() error {
	o.closeOnce.Do(func() {
		close(o.cancel)
	})
	return o.conn.Close()
}

// A Hub fans decided messages out to every connected observer. Each
// observer gets an isolated write loop so one slow or broken
// connection never affects the rest, plus per-observer state: which
// content identifiers it has received bytes for, and its device pixel
// ratio.
type Hub struct {
	mu        sync.Mutex
	observers map[uuid.UUID]*observer

	cache   *Cache
	current ContentID
	logger  golog.Logger

	heartbeat time.Duration

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	startOnce               sync.Once
	closeOnce               sync.Once
}

// NewHub returns a hub drawing signal upgrades from cache.
func NewHub(cache *Cache, cfg Config) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		observers: map[uuid.UUID]*observer{},
		cache:     cache,
		logger:    cfg.Logger,
		heartbeat: cfg.HeartbeatInterval,
	}
	h.cancelCtx, h.cancelFunc = context.WithCancel(context.Background())
	return h
}

// Run consumes the decided message stream until it is closed or the
// hub is closed. The heartbeat loop starts on first call.
func (h *Hub) Run(msgs <-chan *Message) {
	h.startOnce.Do(func() {
		h.activeBackgroundWorkers.Add(1)
		utils.ManagedGo(h.heartbeatLoop, h.activeBackgroundWorkers.Done)
	})
	for {
		select {
		case <-h.cancelCtx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			h.broadcast(msg)
		}
	}
}

func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-h.cancelCtx.Done():
			return
		case <-ticker.C:
			h.broadcast(NewHeartbeatMessage())
		}
	}
}

// broadcast updates the current-cursor tracking and enqueues msg to
// every observer.
func (h *Hub) broadcast(msg *Message) {
	h.mu.Lock()
	switch msg.Type {
	case MessageTypeData:
		h.current = msg.Data.ContentID
	case MessageTypeSignal:
		h.current = msg.Signal.ContentID
	case MessageTypeHide:
		h.current = ""
	}
	targets := make([]*observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.Unlock()

	for _, obs := range targets {
		h.enqueue(obs, msg)
	}
}

// enqueue delivers msg to one observer's queue, dropping the observer
// entirely if its queue is full.
func (h *Hub) enqueue(obs *observer, msg *Message) {
	select {
	case <-obs.cancel:
	case obs.sendCh <- msg:
	default:
		h.logger.Infow("observer not keeping up; dropping", "observer", obs.id)
		h.dropObserver(obs)
	}
}

// AddObserver registers a connection, starts its write loop, and
// replays the current cursor so a late joiner renders immediately.
func (h *Hub) AddObserver(conn ObserverConn) uuid.UUID {
	obs := &observer{
		id:     uuid.New(),
		conn:   conn,
		sendCh: make(chan *Message, observerSendBuffer),
		dpr:    1,
		seen:   map[ContentID]bool{},
		cancel: make(chan struct{}),
		joined: time.Now(),
	}
	h.mu.Lock()
	h.observers[obs.id] = obs
	h.mu.Unlock()

	h.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		h.writeLoop(obs)
	}, h.activeBackgroundWorkers.Done)

	h.logger.Infow("observer connected", "observer", obs.id)
	h.replayCurrent(obs)
	return obs.id
}

// replayCurrent enqueues the current cursor, as full data, to a newly
// joined or reconfigured observer.
func (h *Hub) replayCurrent(obs *observer) {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current == "" {
		return
	}
	entry, ok := h.cache.lookup(current)
	if !ok {
		return
	}
	h.enqueue(obs, dataMessageFromEntry(entry))
}

func (h *Hub) writeLoop(obs *observer) {
	for {
		select {
		case <-h.cancelCtx.Done():
			return
		case <-obs.cancel:
			return
		case msg := <-obs.sendCh:
			frame, err := h.frameFor(obs, msg)
			if err != nil {
				h.logger.Errorw("encoding frame for observer", "observer", obs.id, "error", err)
				continue
			}
			if frame == nil {
				continue
			}
			if err := obs.conn.WriteBinary(frame); err != nil {
				h.logger.Debugw("observer write failed; dropping", "observer", obs.id, "error", err)
				h.dropObserver(obs)
				return
			}
		}
	}
}

// frameFor adapts a broadcast message to one observer: signals for
// identifiers the observer has never received bytes for are upgraded
// to full data from the cache, and data dimensions are scaled by the
// observer's device pixel ratio.
func (h *Hub) frameFor(obs *observer, msg *Message) ([]byte, error) {
	obs.mu.Lock()
	dpr := obs.dpr
	if msg.Type == MessageTypeSignal && !obs.seen[msg.Signal.ContentID] {
		if entry, ok := h.cache.lookup(msg.Signal.ContentID); ok {
			msg = dataMessageFromEntry(entry)
		}
	}
	if msg.Type == MessageTypeData {
		obs.seen[msg.Data.ContentID] = true
	}
	obs.mu.Unlock()

	if msg.Type == MessageTypeData && dpr != 1 {
		msg = scaleDataMessage(msg, dpr)
	}
	return msg.MarshalBinary()
}

// scaleDataMessage rewrites display dimensions and hotspot for an
// observer's device pixel ratio. Payload bytes are untouched; the
// observer decodes at native resolution and renders at the scaled
// size.
func scaleDataMessage(msg *Message, dpr float32) *Message {
	d := *msg.Data
	scale := 1 / float64(dpr)
	d.Width = int32(math.Round(float64(d.Width) * scale))
	d.Height = int32(math.Round(float64(d.Height) * scale))
	d.HotspotX = int32(math.Round(float64(d.HotspotX) * scale))
	d.HotspotY = int32(math.Round(float64(d.HotspotY) * scale))
	out := *msg
	out.Data = &d
	return &out
}

// SetObserverDPR records the device pixel ratio reported by an
// observer and resends the current cursor at the new scale. Ratios
// outside (0, 10] are rejected.
func (h *Hub) SetObserverDPR(id uuid.UUID, dpr float32) {
	if dpr <= 0 || dpr > 10 {
		h.logger.Infow("ignoring implausible device pixel ratio", "observer", id, "dpr", dpr)
		return
	}
	h.mu.Lock()
	obs, ok := h.observers[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	obs.mu.Lock()
	if math.Abs(float64(obs.dpr)-float64(dpr)) < 0.001 {
		obs.mu.Unlock()
		return
	}
	obs.dpr = dpr
	obs.seen = map[ContentID]bool{}
	obs.mu.Unlock()
	h.logger.Debugw("observer scale changed", "observer", id, "dpr", dpr)
	h.replayCurrent(obs)
}

// RemoveObserver disconnects and forgets an observer.
func (h *Hub) RemoveObserver(id uuid.UUID) {
	h.mu.Lock()
	obs, ok := h.observers[id]
	h.mu.Unlock()
	if ok {
		h.dropObserver(obs)
	}
}

func (h *Hub) dropObserver(obs *observer) {
	h.mu.Lock()
	_, present := h.observers[obs.id]
	delete(h.observers, obs.id)
	h.mu.Unlock()
	if err := obs.close(); err != nil && present {
		h.logger.Debugw("closing observer connection", "observer", obs.id, "error", err)
	}
	if present {
		h.logger.Infow("observer disconnected", "observer", obs.id, "connected_for", time.Since(obs.joined))
	}
}

// NumObservers returns the number of connected observers.
func (h *Hub) NumObservers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects all observers and stops the heartbeat.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancelFunc()
		h.mu.Lock()
		observers := make([]*observer, 0, len(h.observers))
		for _, obs := range h.observers {
			observers = append(observers, obs)
		}
		h.observers = map[uuid.UUID]*observer{}
		h.mu.Unlock()
		for _, obs := range observers {
			err = multierr.Combine(err, obs.close())
		}
		h.activeBackgroundWorkers.Wait()
	})
	return err
}
