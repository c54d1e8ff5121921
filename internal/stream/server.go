package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Garsondee/Grid-Sense/internal/grid"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	eventBuffer         = 256
)

// Server streams a grid's occupancy to websocket clients. Clients never
// mutate the grid; anything they send other than a close is ignored.
type Server struct {
	grid     *grid.Grid
	upgrader websocket.Upgrader
	ping     time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithPingInterval overrides how often idle connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.ping = d
		}
	}
}

// NewServer creates a stream server for g.
func NewServer(g *grid.Grid, opts ...Option) *Server {
	s := &Server{
		grid: g,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only feed, any origin may watch
			},
		},
		ping:    defaultPingInterval,
		clients: make(map[*websocket.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns a mux serving the feed at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	return mux
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
}

// ServeWS upgrades the request and streams until the client goes away.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	slog.Info("stream client connected", "remote", conn.RemoteAddr().String())

	// Subscribe before the snapshot so nothing between the two is lost.
	events, cancel := s.grid.Events().Channel(eventBuffer)
	done := make(chan struct{})
	go s.readLoop(conn, done)
	s.writeLoop(conn, events, done)

	cancel()
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	slog.Info("stream client disconnected", "remote", conn.RemoteAddr().String())
}

// readLoop drains client messages so control frames are processed, and
// closes done when the connection ends.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, events <-chan grid.Event, done <-chan struct{}) {
	if err := s.send(conn, SnapshotFrame(s.grid)); err != nil {
		return
	}
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f := EventFrame(ev)
			if ev.Kind == grid.EventRebuilt {
				f = SnapshotFrame(s.grid)
				f.Seq = ev.Seq
			}
			if err := s.send(conn, f); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("stream ping failed", "remote", conn.RemoteAddr().String(), "error", err)
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, f Frame) error {
	data, err := Encode(f)
	if err != nil {
		slog.Error("stream encode failed", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Debug("stream write failed", "remote", conn.RemoteAddr().String(), "error", err)
		return err
	}
	return nil
}
