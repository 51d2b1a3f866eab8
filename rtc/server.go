// Package rtc provides WebRTC transport for cursor observers: an
// HTTP offer/answer signaling endpoint and a data channel adapter
// feeding the broadcast hub.
package rtc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/edaniels/cursorstream"
)

// cursorChannelLabel is the data channel label observers must open to
// receive cursor updates.
const cursorChannelLabel = "cursor"

var errServerClosed = errors.New("rtc server closed")

// A Server answers WebRTC offers and bridges each peer's cursor data
// channel into the hub as an observer.
type Server struct {
	api    *webrtc.API
	hub    *cursorstream.Hub
	logger golog.Logger

	mu     sync.Mutex
	peers  map[*webrtc.PeerConnection]struct{}
	closed bool
}

// NewServer returns a WebRTC observer server feeding hub.
func NewServer(hub *cursorstream.Hub, logger golog.Logger) *Server {
	var se webrtc.SettingEngine
	se.LoggerFactory = loggerFactory{logger.Named("pion")}
	return &Server{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		hub:    hub,
		logger: logger,
		peers:  map[*webrtc.PeerConnection]struct{}{},
	}
}

type sessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// HandleOffer is the signaling endpoint: it accepts a JSON offer and
// responds with a JSON answer once ICE gathering completes.
func (s *Server) HandleOffer(w http.ResponseWriter, r *http.Request) {
	var desc sessionDescription
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		http.Error(w, "bad offer", http.StatusBadRequest)
		return
	}
	offer := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}
	answer, err := s.connect(offer)
	if err != nil {
		s.logger.Errorw("answering offer", "error", err)
		http.Error(w, "failed to answer", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessionDescription{
		SDP:  answer.SDP,
		Type: answer.Type.String(),
	}); err != nil {
		s.logger.Debugw("writing answer", "error", err)
	}
}

func (s *Server) connect(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, multierr.Combine(pc.Close(), errServerClosed)
	}
	s.peers[pc] = struct{}{}
	s.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != cursorChannelLabel {
			return
		}
		s.registerChannel(pc, dc)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.forgetPeer(pc)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.forgetPeer(pc)
		return nil, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.forgetPeer(pc)
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		s.forgetPeer(pc)
		return nil, err
	}
	<-gathered
	return pc.LocalDescription(), nil
}

// registerChannel ties a cursor data channel's lifecycle to hub
// observer registration.
func (s *Server) registerChannel(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) {
	var mu sync.Mutex
	var observerID uuid.UUID
	var registered bool

	dc.OnOpen(func() {
		id := s.hub.AddObserver(&dataChannelConn{pc: pc, dc: dc})
		mu.Lock()
		observerID = id
		registered = true
		mu.Unlock()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		var cfg struct {
			DevicePixelRatio float32 `json:"device_pixel_ratio"`
		}
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			s.logger.Debugw("bad observer config", "error", err)
			return
		}
		mu.Lock()
		id, ok := observerID, registered
		mu.Unlock()
		if ok {
			s.hub.SetObserverDPR(id, cfg.DevicePixelRatio)
		}
	})
	dc.OnClose(func() {
		mu.Lock()
		id, ok := observerID, registered
		mu.Unlock()
		if ok {
			s.hub.RemoveObserver(id)
		}
	})
}

func (s *Server) forgetPeer(pc *webrtc.PeerConnection) {
	s.mu.Lock()
	_, present := s.peers[pc]
	delete(s.peers, pc)
	s.mu.Unlock()
	if present {
		if err := pc.Close(); err != nil {
			s.logger.Debugw("closing peer", "error", err)
		}
	}
}

// Close tears down every peer connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	peers := make([]*webrtc.PeerConnection, 0, len(s.peers))
	for pc := range s.peers {
		peers = append(peers, pc)
	}
	s.peers = map[*webrtc.PeerConnection]struct{}{}
	s.mu.Unlock()
	var err error
	for _, pc := range peers {
		err = multierr.Combine(err, pc.Close())
	}
	return err
}

// dataChannelConn adapts a peer's data channel to the hub's observer
// transport. Closing it closes the whole peer connection since the
// cursor channel is the peer's only purpose.
type dataChannelConn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel
}

func (c *dataChannelConn) WriteBinary(data []byte) error {
	return c.dc.Send(data)
}

func (c *dataChannelConn) Close() error {
	return multierr.Combine(c.dc.Close(), c.pc.Close())
}
