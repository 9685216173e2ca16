package domain

import "context"

// Observer is notified of every applied balance change, local or replicated.
// Observers are identified by interface equality, so register pointers.
type Observer interface {
	OnBalanceChanged(newBalance, oldBalance int64)
}

// FuncObserver adapts a plain function to Observer.
type FuncObserver struct {
	fn func(newBalance, oldBalance int64)
}

// NewObserver wraps fn. Keep the returned pointer to remove it later.
func NewObserver(fn func(newBalance, oldBalance int64)) *FuncObserver {
	return &FuncObserver{fn: fn}
}

func (o *FuncObserver) OnBalanceChanged(newBalance, oldBalance int64) {
	if o.fn != nil {
		o.fn(newBalance, oldBalance)
	}
}

// KVStore is durable key/value storage shared by every context on the host.
type KVStore interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Transport is one endpoint of a named broadcast channel.
// Send reaches the other endpoints; Messages yields frames sent by them.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Messages() <-chan []byte
	Close() error
}

// TransportOpener joins the named channel.
type TransportOpener func(ctx context.Context, channel string) (Transport, error)
