package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"faycoin_go/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxFrameSize = 4096
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second

	// DefaultMaxChannels bounds live rooms, and with them the channel label set.
	DefaultMaxChannels = 256
)

var errTooManyChannels = errors.New("too many channels")

// Server relays text frames between websocket clients joined to the same
// channel name. Frames are opaque: the relay never decodes them, and a frame
// is never sent back to the client it came from.
type Server struct {
	router    chi.Router
	upgrader  websocket.Upgrader
	queueSize int
	metrics   *Metrics

	// MaxChannels caps distinct live channels. Set before serving.
	MaxChannels int

	mu     sync.Mutex
	rooms  map[string]map[*client]struct{}
	closed bool
}

type client struct {
	conn    *websocket.Conn
	channel string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewServer builds a relay whose clients each buffer queueSize outbound frames.
func NewServer(queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are CLI processes, not browser pages.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		queueSize:   queueSize,
		metrics:     newMetrics(),
		MaxChannels: DefaultMaxChannels,
		rooms:       make(map[string]map[*client]struct{}),
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/channels/{name}", s.handleChannel)
	s.router = r
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Members returns the number of clients joined to channel.
func (s *Server) Members(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[channel])
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Relay listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Relay shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	s.Close()
	return srv.Shutdown(shutdownCtx)
}

// Close disconnects every client and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	var all []*client
	for _, room := range s.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	for _, c := range all {
		s.drop(c)
	}
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !domain.ValidChannelName(name) {
		http.Error(w, "invalid channel name", http.StatusBadRequest)
		return
	}
	if !s.admits(name) {
		http.Error(w, errTooManyChannels.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Relay upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		conn:    conn,
		channel: name,
		send:    make(chan []byte, s.queueSize),
		done:    make(chan struct{}),
	}
	if err := s.join(c); err != nil {
		code, reason := websocket.CloseGoingAway, "relay shutting down"
		if errors.Is(err, errTooManyChannels) {
			code, reason = websocket.CloseTryAgainLater, err.Error()
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	slog.Debug("Relay client joined", slog.String("channel", name), slog.String("remote", r.RemoteAddr))

	go s.writePump(c)
	s.readPump(c)
}

// admits reports whether a client may join name without exceeding MaxChannels.
func (s *Server) admits(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admitsLocked(name)
}

func (s *Server) admitsLocked(name string) bool {
	if _, ok := s.rooms[name]; ok {
		return true
	}
	return s.MaxChannels <= 0 || len(s.rooms) < s.MaxChannels
}

func (s *Server) join(c *client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return http.ErrServerClosed
	}
	if !s.admitsLocked(c.channel) {
		return errTooManyChannels
	}
	if s.rooms[c.channel] == nil {
		s.rooms[c.channel] = make(map[*client]struct{})
	}
	s.rooms[c.channel][c] = struct{}{}
	s.metrics.Clients.Inc()
	return nil
}

// drop removes c from its room and closes it. Safe to call repeatedly.
func (s *Server) drop(c *client) {
	c.once.Do(func() {
		s.mu.Lock()
		if room := s.rooms[c.channel]; room != nil {
			delete(room, c)
			if len(room) == 0 {
				delete(s.rooms, c.channel)
				s.metrics.forget(c.channel)
			}
		}
		s.mu.Unlock()
		s.metrics.Clients.Dec()
		close(c.done)
		c.conn.Close()
	})
}

func (s *Server) readPump(c *client) {
	defer s.drop(c)

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	// Client pings must also extend the deadline.
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Relay client read failed", slog.String("channel", c.channel), slog.Any("error", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.fanOut(c, msg)
	}
}

// fanOut queues msg for every other member of the sender's channel. A peer
// whose queue is full is disconnected rather than allowed to stall the room.
func (s *Server) fanOut(from *client, msg []byte) {
	s.mu.Lock()
	peers := make([]*client, 0, len(s.rooms[from.channel]))
	for c := range s.rooms[from.channel] {
		if c != from {
			peers = append(peers, c)
		}
	}
	s.mu.Unlock()

	var slow []*client
	for _, p := range peers {
		select {
		case <-p.done:
		case p.send <- msg:
			s.metrics.FramesRelayed.WithLabelValues(from.channel).Inc()
		default:
			s.metrics.FramesDropped.WithLabelValues(from.channel).Inc()
			slow = append(slow, p)
		}
	}
	for _, p := range slow {
		slog.Warn("Relay client too slow, disconnecting", slog.String("channel", p.channel))
		s.metrics.SlowClients.Inc()
		s.drop(p)
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.drop(c)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
