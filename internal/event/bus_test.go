package event

import (
	"testing"
)

type otherEvent struct{}

func (otherEvent) Name() string { return "other" }

func TestBus_PublishCoinChanged(t *testing.T) {
	bus := NewBus()

	var got []CoinChanged
	bus.Subscribe(NameCoinChanged, func(ev Event) {
		got = append(got, ev.(CoinChanged))
	})

	bus.Publish(CoinChanged{NewBalance: 50, OldBalance: 0, Change: 50})
	bus.Publish(otherEvent{})

	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Change != 50 || got[0].NewBalance != 50 {
		t.Errorf("Unexpected event %+v", got[0])
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(NameCoinChanged, func(Event) { calls++ })

	bus.Publish(CoinChanged{})
	unsubscribe()
	unsubscribe()
	bus.Publish(CoinChanged{})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestBus_PanicIsolation(t *testing.T) {
	bus := NewBus()

	panics := 0
	bus.OnPanic = func(string, any) { panics++ }

	var order []string
	bus.Subscribe(NameCoinChanged, func(Event) {
		order = append(order, "first")
		panic("boom")
	})
	bus.Subscribe(NameCoinChanged, func(Event) {
		order = append(order, "second")
	})

	bus.Publish(CoinChanged{NewBalance: 1, Change: 1})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected both handlers in order, got %v", order)
	}
	if panics != 1 {
		t.Errorf("Expected 1 recovered panic, got %d", panics)
	}
}
