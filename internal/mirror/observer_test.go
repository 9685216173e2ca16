package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faycoin_go/internal/domain"

	"github.com/google/go-cmp/cmp"
)

type fakeBalances struct {
	mu   sync.Mutex
	rows map[string]domain.BalanceRecord
	err  error
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{rows: make(map[string]domain.BalanceRecord)}
}

func (f *fakeBalances) Upsert(_ context.Context, rec domain.BalanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if cur, ok := f.rows[rec.UserID]; ok && cur.UpdatedAt.After(rec.UpdatedAt) {
		return nil
	}
	f.rows[rec.UserID] = rec
	return nil
}

func (f *fakeBalances) Get(_ context.Context, userID string) (domain.BalanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[userID]
	if !ok {
		return domain.BalanceRecord{}, ErrNoBalance
	}
	return rec, nil
}

func TestObserver_MirrorsLatestBalance(t *testing.T) {
	repo := newFakeBalances()
	obs := NewObserver(repo, "ada@example.com", "ctx-1", 1)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	obs.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	obs.OnBalanceChanged(50, 0)
	obs.OnBalanceChanged(20, 50)
	obs.Close()

	got, err := repo.Get(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	want := domain.BalanceRecord{
		UserID:    "ada@example.com",
		Balance:   20,
		Origin:    "ctx-1",
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mirrored row mismatch (-want +got):\n%s", diff)
	}
	if written, failed := obs.Stats(); written != 2 || failed != 0 {
		t.Errorf("Stats = %d/%d, want 2/0", written, failed)
	}
}

func TestObserver_FailuresAreCounted(t *testing.T) {
	repo := newFakeBalances()
	repo.err = errors.New("connection refused")
	obs := NewObserver(repo, "ada@example.com", "ctx-1", 2)

	obs.OnBalanceChanged(1, 0)
	obs.OnBalanceChanged(2, 1)
	obs.Close()

	if written, failed := obs.Stats(); written != 0 || failed != 2 {
		t.Errorf("Stats = %d/%d, want 0/2", written, failed)
	}
	if _, err := repo.Get(context.Background(), "ada@example.com"); !errors.Is(err, ErrNoBalance) {
		t.Errorf("Get = %v, want ErrNoBalance", err)
	}
}

func TestObserver_IgnoresChangesAfterClose(t *testing.T) {
	repo := newFakeBalances()
	obs := NewObserver(repo, "u", "o", 1)
	obs.Close()

	obs.OnBalanceChanged(9, 0)

	if written, failed := obs.Stats(); written+failed != 0 {
		t.Errorf("write attempted after Close: %d/%d", written, failed)
	}
}
