package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"faycoin_go/internal/domain"
	"faycoin_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries       = 10
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// ChannelURL builds the relay endpoint for a channel name.
func ChannelURL(relayURL, channel string) string {
	return strings.TrimRight(relayURL, "/") + "/channels/" + url.PathEscape(channel)
}

// WSTransport joins a channel on the relay server. It reconnects with
// backoff for as long as it is open; frames sent while disconnected fail with
// a retriable NetworkError rather than being queued.
type WSTransport struct {
	url       string
	inbox     chan []byte
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	closed    atomic.Bool
	dropped   atomic.Uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// WebSocketOpener returns a domain.TransportOpener dialing relayURL. Each
// open waits up to connectWait for the first connect; a relay that is still
// down is not an error, the transport keeps retrying in the background.
func WebSocketOpener(relayURL string, inboxSize int, connectWait time.Duration) domain.TransportOpener {
	return func(ctx context.Context, channel string) (domain.Transport, error) {
		t, err := DialWebSocket(ctx, relayURL, channel, inboxSize)
		if err != nil {
			return nil, err
		}
		if connectWait > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, connectWait)
			defer cancel()
			if err := t.WaitConnected(waitCtx); err != nil {
				slog.Warn("Relay not reachable yet, retrying in background", slog.String("url", t.url))
			}
		}
		return t, nil
	}
}

// DialWebSocket starts the connection loop and returns without waiting for the first connect.
func DialWebSocket(ctx context.Context, relayURL, channel string, inboxSize int) (*WSTransport, error) {
	u, err := url.Parse(relayURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, &domain.ConfigError{Field: "channel.relay_url", Err: fmt.Errorf("invalid relay URL: %q", relayURL)}
	}
	if inboxSize <= 0 {
		inboxSize = 256
	}

	t := &WSTransport{
		url:   ChannelURL(relayURL, channel),
		inbox: make(chan []byte, inboxSize),
	}

	// The loop outlives the dial context; Close stops it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.wg.Add(1)
	go t.connectionLoop(loopCtx)
	return t, nil
}

func (t *WSTransport) connectionLoop(ctx context.Context) {
	defer t.wg.Done()
	defer t.closeConnection()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := t.connect(ctx); err != nil {
			delay := infra.CalculateBackoff(retryCount)
			slog.Warn("Relay connection failed", slog.String("url", t.url), slog.Any("error", err), slog.Int("retry", retryCount), slog.Duration("delay", delay))
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			t.readLoop(ctx)
		}
	}
}

func (t *WSTransport) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.url, make(http.Header))
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	slog.Info("Relay connected", slog.String("url", t.url))
	return nil
}

func (t *WSTransport) threadSafeWrite(msgType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return domain.NewNetworkError("send", domain.ErrNotConnected)
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(msgType, data); err != nil {
		return domain.NewNetworkError("send", err)
	}
	return nil
}

func (t *WSTransport) readLoop(ctx context.Context) {
	pingDone := make(chan struct{})
	defer close(pingDone)
	t.wg.Add(1)
	go t.pingLoop(ctx, pingDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.mu.RLock()
		conn := t.conn
		if conn == nil {
			t.mu.RUnlock()
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		t.mu.RUnlock()

		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() {
				slog.Warn("Relay read failed", slog.String("url", t.url), slog.Any("error", err))
			}
			t.closeConnection()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case t.inbox <- msg:
		default: // DROP
			t.dropped.Add(1)
		}
	}
}

func (t *WSTransport) pingLoop(ctx context.Context, done <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := t.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				slog.Debug("Relay ping failed", slog.Any("error", err))
			}
		}
	}
}

// Send writes one text frame to the relay.
func (t *WSTransport) Send(ctx context.Context, frame []byte) error {
	if t.closed.Load() {
		return domain.NewFatalNetworkError("send", domain.ErrTransportClosed)
	}
	if err := ctx.Err(); err != nil {
		return domain.NewNetworkError("send", err)
	}
	return t.threadSafeWrite(websocket.TextMessage, frame)
}

// Messages yields frames relayed from other endpoints. It is closed by Close.
func (t *WSTransport) Messages() <-chan []byte { return t.inbox }

// IsConnected reports whether a relay connection is live.
func (t *WSTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// WaitConnected blocks until the transport is connected or ctx ends.
func (t *WSTransport) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !t.IsConnected() {
		select {
		case <-ctx.Done():
			return domain.NewNetworkError("connect", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Dropped returns how many inbound frames were discarded because the inbox was full.
func (t *WSTransport) Dropped() uint64 { return t.dropped.Load() }

func (t *WSTransport) closeConnection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.connected = false
}

// Close stops reconnecting, closes the connection and then the inbox.
func (t *WSTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.writeMu.Lock()
	t.mu.RLock()
	if t.conn != nil {
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	t.mu.RUnlock()
	t.writeMu.Unlock()

	t.closeConnection()
	t.wg.Wait()
	close(t.inbox)
	return nil
}
