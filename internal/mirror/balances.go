package mirror

import (
	"context"
	"errors"
	"fmt"

	"faycoin_go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoBalance is returned by Get when the user has no mirrored row.
var ErrNoBalance = errors.New("no mirrored balance")

// Balances stores the denormalised per-user copy.
type Balances interface {
	// Upsert keeps the newest record by UpdatedAt; older writes are ignored.
	Upsert(ctx context.Context, rec domain.BalanceRecord) error
	Get(ctx context.Context, userID string) (domain.BalanceRecord, error)
}

type pgBalances struct{ pool *pgxpool.Pool }

// NewBalances returns the Postgres-backed repository.
func NewBalances(pool *pgxpool.Pool) Balances {
	return &pgBalances{pool: pool}
}

func (r *pgBalances) Upsert(ctx context.Context, rec domain.BalanceRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_balances(user_id, balance, origin, updated_at)
		 VALUES($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		    SET balance = EXCLUDED.balance,
		        origin = EXCLUDED.origin,
		        updated_at = EXCLUDED.updated_at
		  WHERE user_balances.updated_at <= EXCLUDED.updated_at`,
		rec.UserID, rec.Balance, rec.Origin, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert balance for %s: %w", rec.UserID, err)
	}
	return nil
}

func (r *pgBalances) Get(ctx context.Context, userID string) (domain.BalanceRecord, error) {
	var rec domain.BalanceRecord
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, origin, updated_at
		   FROM user_balances
		  WHERE user_id=$1`,
		userID,
	).Scan(&rec.UserID, &rec.Balance, &rec.Origin, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BalanceRecord{}, ErrNoBalance
	}
	return rec, err
}
