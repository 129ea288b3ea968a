package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/marketd/internal/domain"
)

// BalanceStore persists per-account balance vectors.
type BalanceStore struct {
	pool *pgxpool.Pool
}

var _ domain.BalanceStore = (*BalanceStore)(nil)

func NewBalanceStore(client *Client) *BalanceStore {
	return &BalanceStore{pool: client.Pool()}
}

// Upsert writes one account's full balance vector for a market.
func (s *BalanceStore) Upsert(ctx context.Context, marketID uint64, account string, balances domain.OutcomeBalance) error {
	const q = `
		INSERT INTO balances (market_id, account, shares, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (market_id, account) DO UPDATE SET
			shares = EXCLUDED.shares,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, q, int64(marketID), account, toInt64s(balances))
	if err != nil {
		return fmt.Errorf("postgres: upsert balance %d/%s: %w", marketID, account, err)
	}
	return nil
}

// ListByMarket loads every account's vector for one market.
func (s *BalanceStore) ListByMarket(ctx context.Context, marketID uint64) (map[string]domain.OutcomeBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, shares FROM balances WHERE market_id = $1`, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances for market %d: %w", marketID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.OutcomeBalance)
	for rows.Next() {
		var (
			account string
			shares  []int64
		)
		if err := rows.Scan(&account, &shares); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		out[account] = domain.OutcomeBalance(toUint64s(shares))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate balances: %w", err)
	}
	return out, nil
}
