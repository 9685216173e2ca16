package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"faycoin_go/internal/domain"
	"faycoin_go/internal/event"
	"faycoin_go/internal/infra"
	"faycoin_go/internal/worker"

	"github.com/google/uuid"
)

const storageTimeout = 5 * time.Second

// Options configures a Synchronizer. Only Store is required.
type Options struct {
	Store      domain.KVStore
	StorageKey string // default domain.DefaultBalanceKey

	// Opener joins the broadcast channel. Nil, or an opener that fails,
	// leaves the synchronizer local-only.
	Opener  domain.TransportOpener
	Channel string // default domain.DefaultChannelName

	Bus     *event.Bus
	Metrics *infra.Metrics
	Origin  string // default: a fresh UUID
	Now     func() time.Time

	// OutboxSize bounds broadcasts waiting behind a slow send; the oldest is
	// dropped when it overflows. Durable writes always coalesce to the latest value.
	OutboxSize int
}

// Synchronizer owns one context's balance. It keeps the value durable,
// notifies observers and the event bus, and replicates every local change to
// the other contexts on the channel. Replicated changes are applied but never
// re-broadcast.
type Synchronizer struct {
	mu        sync.Mutex
	balance   int64
	observers []domain.Observer

	store     domain.KVStore
	key       string
	transport domain.Transport
	bus       *event.Bus
	metrics   *infra.Metrics
	origin    string
	now       func() time.Time

	// Pending side effects, guarded by mu. Mutators only record them here and
	// never wait on the worker.
	dirty      bool
	latest     int64
	outbox     []domain.ReplicationMessage
	outboxSize int

	// effects drains the pending side effects on a single goroutine.
	effects *worker.Pool

	stopListen context.CancelFunc
	listenDone chan struct{}
	closeOnce  sync.Once
}

// NewSynchronizer reads the stored balance (absent or unparseable reads as 0),
// joins the channel if an opener is given and starts listening for replicated
// changes. It never fails: the returned instance is ready to use.
func NewSynchronizer(ctx context.Context, opts Options) *Synchronizer {
	s := &Synchronizer{
		store:      opts.Store,
		key:        opts.StorageKey,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		origin:     opts.Origin,
		now:        opts.Now,
		outboxSize: opts.OutboxSize,
		effects:    worker.NewPool(1, 1),
		listenDone: make(chan struct{}),
	}
	if s.key == "" {
		s.key = domain.DefaultBalanceKey
	}
	if s.bus == nil {
		s.bus = event.NewBus()
	}
	if s.metrics == nil {
		s.metrics = infra.GlobalMetrics
	}
	if s.origin == "" {
		s.origin = uuid.NewString()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.outboxSize <= 0 {
		s.outboxSize = 256
	}

	s.balance = s.load(ctx)

	channel := opts.Channel
	if channel == "" {
		channel = domain.DefaultChannelName
	}
	s.transport = s.openTransport(ctx, opts.Opener, channel)
	if s.transport != nil {
		s.metrics.TransportOpened()
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.stopListen = cancel
	if s.transport != nil {
		go s.listen(listenCtx, s.transport.Messages())
	} else {
		close(s.listenDone)
	}

	slog.Info("Balance synchronizer ready",
		slog.String("origin", s.origin),
		slog.String("channel", channel),
		slog.Bool("replicating", s.transport != nil),
		slog.Int64("balance", s.balance))
	return s
}

func (s *Synchronizer) load(ctx context.Context) int64 {
	if s.store == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	raw, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		slog.Warn("Failed to read stored balance, starting at 0", slog.String("key", s.key), slog.Any("error", err))
		s.metrics.RecordStorageError()
		return 0
	}
	if !ok {
		return 0
	}
	return domain.ParseBalance(raw)
}

func (s *Synchronizer) openTransport(ctx context.Context, open domain.TransportOpener, channel string) (t domain.Transport) {
	if open == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Broadcast channel setup panicked, running local-only", slog.Any("panic", r))
			t = nil
		}
	}()

	t, err := open(ctx, channel)
	if err != nil {
		slog.Warn("Broadcast channel unavailable, running local-only", slog.String("channel", channel), slog.Any("error", err))
		return nil
	}
	return t
}

// Origin identifies this context on the channel.
func (s *Synchronizer) Origin() string { return s.origin }

// Bus is where fayCoinChanged events are published.
func (s *Synchronizer) Bus() *event.Bus { return s.bus }

// Replicating reports whether a broadcast transport is attached.
func (s *Synchronizer) Replicating() bool { return s.transport != nil }

// Balance returns the in-memory balance.
func (s *Synchronizer) Balance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// SetBalance replaces the balance. Negative values clamp to zero.
func (s *Synchronizer) SetBalance(v int64) {
	s.mutate(func(int64) int64 { return v })
}

// AddCoins adds amount, saturating at math.MaxInt64. A negative amount is
// logged and ignored.
func (s *Synchronizer) AddCoins(amount int64) {
	if amount < 0 {
		slog.Warn("AddCoins called with negative amount, ignored", slog.Int64("amount", amount))
		return
	}
	s.mutate(func(old int64) int64 { return domain.SaturatingAdd(old, amount) })
}

// SubtractCoins subtracts amount; the balance never goes below zero. A
// negative amount is logged and ignored.
func (s *Synchronizer) SubtractCoins(amount int64) {
	if amount < 0 {
		slog.Warn("SubtractCoins called with negative amount, ignored", slog.Int64("amount", amount))
		return
	}
	s.mutate(func(old int64) int64 { return domain.SaturatingSub(old, amount) })
}

// mutate applies next under the lock so concurrent AddCoins calls never lose
// an update. Side effects are recorded before unlocking so they keep the
// order the values were applied in.
func (s *Synchronizer) mutate(next func(old int64) int64) {
	s.mu.Lock()
	old := s.balance
	nv := domain.ClampBalance(next(old))
	s.balance = nv
	observers := s.snapshotObservers()
	change := domain.BalanceChange{NewBalance: nv, OldBalance: old}
	s.markDirty(nv)
	if s.transport != nil {
		s.enqueue(domain.NewBalanceUpdated(s.origin, change, s.now().UnixMilli()))
	}
	s.kick()
	s.mu.Unlock()

	s.metrics.RecordLocalMutation()
	s.notify(observers, change)
	s.bus.Publish(event.CoinChanged{
		NewBalance: change.NewBalance,
		OldBalance: change.OldBalance,
		Change:     change.Delta(),
	})
}

// applyRemote ingests a change made by another context: memory and storage
// take the new value and local observers hear about it, but nothing is sent
// back out and no fayCoinChanged event fires.
func (s *Synchronizer) applyRemote(msg domain.ReplicationMessage) {
	s.mu.Lock()
	s.balance = msg.NewBalance
	observers := s.snapshotObservers()
	s.markDirty(msg.NewBalance)
	s.kick()
	s.mu.Unlock()

	s.metrics.RecordRemoteApplied()
	s.notify(observers, msg.Change())
}

// handleFrame decodes one inbound frame. Unknown types are ignored so newer
// peers can share the channel.
func (s *Synchronizer) handleFrame(frame []byte) {
	msg, err := domain.DecodeMessage(frame)
	switch {
	case errors.Is(err, domain.ErrUnknownMessageType):
		slog.Debug("Ignoring sync message", slog.Any("error", err))
		return
	case err != nil:
		slog.Warn("Rejected sync message", slog.Any("error", err))
		s.metrics.RecordFrameRejected()
		return
	}

	if msg.Origin != "" && msg.Origin == s.origin {
		s.metrics.RecordSelfEcho()
		return
	}
	s.applyRemote(msg)
}

func (s *Synchronizer) listen(ctx context.Context, frames <-chan []byte) {
	defer close(s.listenDone)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(frame)
		}
	}
}

// markDirty, enqueue and kick must be called with s.mu held.
func (s *Synchronizer) markDirty(v int64) {
	s.dirty = true
	s.latest = v
}

func (s *Synchronizer) enqueue(msg domain.ReplicationMessage) {
	if len(s.outbox) >= s.outboxSize {
		s.outbox = s.outbox[1:]
		s.metrics.RecordBroadcastDropped()
	}
	s.outbox = append(s.outbox, msg)
}

// kick wakes the drain worker. A full queue already holds a drain that has
// not started yet, and that drain will see what was just recorded.
func (s *Synchronizer) kick() {
	s.effects.TrySubmit(s.drain)
}

// drain takes everything pending and runs it: the latest value is written
// once, then the queued broadcasts go out in order.
func (s *Synchronizer) drain() {
	s.mu.Lock()
	dirty, value := s.dirty, s.latest
	s.dirty = false
	sends := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	if dirty {
		s.persist(value)
	}
	for _, msg := range sends {
		s.broadcast(msg)
	}
}

func (s *Synchronizer) persist(v int64) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.store.Set(ctx, s.key, domain.FormatBalance(v)); err != nil {
		slog.Warn("Failed to persist balance", slog.String("key", s.key), slog.Int64("balance", v), slog.Any("error", err))
		s.metrics.RecordStorageError()
	}
}

func (s *Synchronizer) broadcast(msg domain.ReplicationMessage) {
	if s.transport == nil {
		return
	}
	frame, err := msg.Encode()
	if err != nil {
		slog.Error("Failed to encode sync message", slog.Any("error", err))
		s.metrics.RecordBroadcast(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	err = s.transport.Send(ctx, frame)
	if err != nil {
		slog.Warn("Cross-context broadcast failed", slog.Bool("retriable", domain.IsRetriable(err)), slog.Any("error", err))
	}
	s.metrics.RecordBroadcast(err)
}

// AddListener registers o. Registering the same observer twice has no extra
// effect. Observers must be comparable; register pointers.
func (s *Synchronizer) AddListener(o domain.Observer) {
	if o == nil {
		return
	}
	if !reflect.TypeOf(o).Comparable() {
		slog.Warn("Observer is not comparable, register a pointer", slog.String("type", fmt.Sprintf("%T", o)))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// RemoveListener unregisters o. Unknown observers are ignored.
func (s *Synchronizer) RemoveListener(o domain.Observer) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// snapshotObservers must be called with s.mu held.
func (s *Synchronizer) snapshotObservers() []domain.Observer {
	out := make([]domain.Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Synchronizer) notify(observers []domain.Observer, change domain.BalanceChange) {
	for _, o := range observers {
		s.invoke(o, change)
	}
}

func (s *Synchronizer) invoke(o domain.Observer, change domain.BalanceChange) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Balance observer panic recovered", slog.String("observer", fmt.Sprintf("%T", o)), slog.Any("panic", r))
			s.metrics.RecordObserverPanic()
		}
	}()
	o.OnBalanceChanged(change.NewBalance, change.OldBalance)
}

// Flush waits until every durable write and broadcast recorded so far has been attempted.
func (s *Synchronizer) Flush(ctx context.Context) error {
	return s.effects.Flush(ctx)
}

// Close stops listening, drains pending side effects and leaves the channel.
// The balance stays readable; later mutations apply in memory only.
func (s *Synchronizer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopListen()
		<-s.listenDone
		s.effects.Stop()
		if s.transport != nil {
			err = s.transport.Close()
			s.metrics.TransportClosed()
		}
	})
	return err
}
