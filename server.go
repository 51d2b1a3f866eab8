package cursorstream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"
)

// observerWriteTimeout bounds a single frame write to one observer.
const observerWriteTimeout = 10 * time.Second

// A Server accepts observer WebSocket connections and registers them
// with a hub. Additional handlers (such as WebRTC signaling) can be
// mounted on the same mux via Handle.
type Server struct {
	hub      *Hub
	logger   golog.Logger
	mux      *goji.Mux
	upgrader websocket.Upgrader

	httpServer              *http.Server
	mu                      sync.Mutex
	started                 bool
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer returns a server bound per cfg that feeds observers into
// hub.
func NewServer(hub *Hub, cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		hub:    hub,
		logger: cfg.Logger,
		mux:    goji.NewMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc(pat.Get("/ws"), s.handleObserver)
	s.httpServer = &http.Server{
		Addr:           cfg.BindAddress,
		Handler:        s.mux,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Handle mounts an additional handler on the server's mux.
func (s *Server) Handle(p goji.Pattern, h http.Handler) {
	s.mux.Handle(p, h)
}

// Start begins accepting connections. It returns once the listener is
// running; serve errors are logged from a background worker.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.logger.Infow("listening", "address", s.httpServer.Addr)
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorw("error serving", "error", err)
		}
	}, s.activeBackgroundWorkers.Done)
	return nil
}

// Stop shuts the listener down and waits for in-flight handlers.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.activeBackgroundWorkers.Wait()
	return err
}

// observerConfig is the JSON an observer may send as a text message
// at any point after connecting.
type observerConfig struct {
	DevicePixelRatio float32 `json:"device_pixel_ratio"`
}

func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	wsConn := &websocketConn{conn: conn}
	id := s.hub.AddObserver(wsConn)

	s.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer s.activeBackgroundWorkers.Done()
		defer s.hub.RemoveObserver(id)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var cfg observerConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				s.logger.Debugw("bad observer config", "observer", id, "error", err)
				continue
			}
			s.hub.SetObserverDPR(id, cfg.DevicePixelRatio)
		}
	})
}

// websocketConn adapts a gorilla connection to the hub's observer
// transport.
type websocketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *websocketConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(observerWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
