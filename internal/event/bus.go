package event

import (
	"log/slog"
	"sort"
	"sync"
)

// Event is anything published on a Bus.
type Event interface {
	Name() string
}

// NameCoinChanged is the event fired on every local balance mutation.
const NameCoinChanged = "fayCoinChanged"

// CoinChanged carries the detail of a local mutation.
type CoinChanged struct {
	NewBalance int64 `json:"newBalance"`
	OldBalance int64 `json:"oldBalance"`
	Change     int64 `json:"change"`
}

func (CoinChanged) Name() string { return NameCoinChanged }

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous in-process event dispatcher keyed by event name.
// UI-style consumers subscribe here instead of registering an Observer.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	// OnPanic, if set, is called after a handler panic has been recovered.
	OnPanic func(name string, recovered any)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[uint64]Handler)}
}

// Subscribe registers h for events named name. The returned func removes it and is safe to call twice.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[uint64]Handler)
	}
	b.handlers[name][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[name], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every handler subscribed to its name, in subscription order.
// A panicking handler is recovered and logged; the rest still run.
func (b *Bus) Publish(ev Event) {
	name := ev.Name()

	b.mu.RLock()
	subs := b.handlers[name]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, subs[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(name, h, ev)
	}
}

func (b *Bus) dispatch(name string, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panic recovered", slog.String("event", name), slog.Any("panic", r))
			if b.OnPanic != nil {
				b.OnPanic(name, r)
			}
		}
	}()
	h(ev)
}
