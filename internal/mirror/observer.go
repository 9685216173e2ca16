package mirror

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"faycoin_go/internal/domain"
	"faycoin_go/internal/worker"
)

const writeTimeout = 5 * time.Second

// Observer copies every balance change for one user into Balances. Writes
// run on a worker pool; failures are logged and counted, never returned.
type Observer struct {
	repo   Balances
	userID string
	origin string
	now    func() time.Time
	pool   *worker.Pool

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewObserver mirrors changes for userID. origin tags rows with the writing context.
func NewObserver(repo Balances, userID, origin string, workers int) *Observer {
	return &Observer{
		repo:   repo,
		userID: userID,
		origin: origin,
		now:    time.Now,
		pool:   worker.NewPool(workers, 256),
	}
}

func (o *Observer) OnBalanceChanged(newBalance, _ int64) {
	rec := domain.BalanceRecord{
		UserID:    o.userID,
		Balance:   newBalance,
		Origin:    o.origin,
		UpdatedAt: o.now(),
	}
	o.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := o.repo.Upsert(ctx, rec); err != nil {
			o.failed.Add(1)
			slog.Warn("Balance mirror write failed", slog.String("user", o.userID), slog.Any("error", err))
			return
		}
		o.written.Add(1)
	})
}

// Stats returns how many mirror writes succeeded and failed.
func (o *Observer) Stats() (written, failed uint64) {
	return o.written.Load(), o.failed.Load()
}

// Close waits for queued writes.
func (o *Observer) Close() {
	o.pool.Stop()
}
