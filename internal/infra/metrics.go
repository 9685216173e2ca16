package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability for one synchronizer.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	localMutations   atomic.Uint64
	remoteApplied    atomic.Uint64
	broadcastsSent   atomic.Uint64
	broadcastErrors  atomic.Uint64
	broadcastDropped atomic.Uint64
	storageErrors    atomic.Uint64
	observerPanics   atomic.Uint64
	framesRejected   atomic.Uint64
	framesSelfEchoed atomic.Uint64

	// Gauges
	transportsUp atomic.Int32 // open transports across every context sharing this instance
}

// GlobalMetrics is the process-wide instance used when none is injected.
var GlobalMetrics = &Metrics{}

// RecordLocalMutation counts a SetBalance/AddCoins/SubtractCoins.
func (m *Metrics) RecordLocalMutation() { m.localMutations.Add(1) }

// RecordRemoteApplied counts an ingested replication message.
func (m *Metrics) RecordRemoteApplied() { m.remoteApplied.Add(1) }

// RecordBroadcast records the outcome of one send.
func (m *Metrics) RecordBroadcast(err error) {
	if err != nil {
		m.broadcastErrors.Add(1)
		return
	}
	m.broadcastsSent.Add(1)
}

// RecordStorageError records a failed durable write.
func (m *Metrics) RecordStorageError() { m.storageErrors.Add(1) }

// RecordObserverPanic records a recovered observer or event handler panic.
func (m *Metrics) RecordObserverPanic() { m.observerPanics.Add(1) }

// RecordFrameRejected records an inbound frame that failed validation.
func (m *Metrics) RecordFrameRejected() { m.framesRejected.Add(1) }

// RecordSelfEcho records an inbound frame that carried our own origin.
func (m *Metrics) RecordSelfEcho() { m.framesSelfEchoed.Add(1) }

// RecordBroadcastDropped records an outbound message discarded because the outbox was full.
func (m *Metrics) RecordBroadcastDropped() { m.broadcastDropped.Add(1) }

// TransportOpened counts a context that joined its broadcast channel.
func (m *Metrics) TransportOpened() { m.transportsUp.Add(1) }

// TransportClosed undoes one TransportOpened.
func (m *Metrics) TransportClosed() {
	for {
		n := m.transportsUp.Load()
		if n <= 0 || m.transportsUp.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	LocalMutations   uint64
	RemoteApplied    uint64
	BroadcastsSent   uint64
	BroadcastErrors  uint64
	BroadcastDropped uint64
	StorageErrors    uint64
	ObserverPanics   uint64
	FramesRejected   uint64
	FramesSelfEchoed uint64
	TransportsUp     int32
	TransportUp      bool // at least one transport open
	Timestamp        time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		LocalMutations:   m.localMutations.Load(),
		RemoteApplied:    m.remoteApplied.Load(),
		BroadcastsSent:   m.broadcastsSent.Load(),
		BroadcastErrors:  m.broadcastErrors.Load(),
		BroadcastDropped: m.broadcastDropped.Load(),
		StorageErrors:    m.storageErrors.Load(),
		ObserverPanics:   m.observerPanics.Load(),
		FramesRejected:   m.framesRejected.Load(),
		FramesSelfEchoed: m.framesSelfEchoed.Load(),
		TransportsUp:     m.transportsUp.Load(),
		TransportUp:      m.transportsUp.Load() > 0,
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.localMutations.Store(0)
	m.remoteApplied.Store(0)
	m.broadcastsSent.Store(0)
	m.broadcastErrors.Store(0)
	m.broadcastDropped.Store(0)
	m.storageErrors.Store(0)
	m.observerPanics.Store(0)
	m.framesRejected.Store(0)
	m.framesSelfEchoed.Store(0)
	m.transportsUp.Store(0)
}
