package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"faycoin_go/internal/domain"
)

// Hub is an in-process broadcast medium: every endpoint opened on the same
// name receives what the others send, never its own frames.
type Hub struct {
	mu        sync.Mutex
	channels  map[string]map[*endpoint]struct{}
	inboxSize int
	dropped   atomic.Uint64
}

// NewHub creates a hub whose endpoints buffer inboxSize frames each.
func NewHub(inboxSize int) *Hub {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Hub{
		channels:  make(map[string]map[*endpoint]struct{}),
		inboxSize: inboxSize,
	}
}

// Open joins the named channel. It has the domain.TransportOpener signature.
func (h *Hub) Open(_ context.Context, name string) (domain.Transport, error) {
	ep := &endpoint{hub: h, name: name, inbox: make(chan []byte, h.inboxSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[name] == nil {
		h.channels[name] = make(map[*endpoint]struct{})
	}
	h.channels[name][ep] = struct{}{}
	return ep, nil
}

// Members returns the number of open endpoints on name.
func (h *Hub) Members(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[name])
}

// Dropped returns how many frames were discarded because an inbox was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

type endpoint struct {
	hub    *Hub
	name   string
	inbox  chan []byte
	closed bool // guarded by hub.mu
}

// Send fans frame out while holding the hub lock, so frames from one sender
// arrive in send order at every receiver.
func (e *endpoint) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return domain.NewNetworkError("send", err)
	}

	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	if e.closed {
		return domain.NewFatalNetworkError("send", domain.ErrTransportClosed)
	}

	for peer := range e.hub.channels[e.name] {
		if peer == e {
			continue
		}
		buf := make([]byte, len(frame))
		copy(buf, frame)
		select {
		case peer.inbox <- buf:
		default: // DROP
			e.hub.dropped.Add(1)
		}
	}
	return nil
}

func (e *endpoint) Messages() <-chan []byte { return e.inbox }

func (e *endpoint) Close() error {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	delete(e.hub.channels[e.name], e)
	if len(e.hub.channels[e.name]) == 0 {
		delete(e.hub.channels, e.name)
	}
	close(e.inbox)
	return nil
}
