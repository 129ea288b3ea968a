package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/marketd/internal/domain"
)

// TradeStore is the append-only trade log.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

func NewTradeStore(client *Client) *TradeStore {
	return &TradeStore{pool: client.Pool()}
}

const tradeColumns = `id, market_id, account, outcome_id, side, num_shares, base_price, fee, executed_at`

func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const q = `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := s.pool.Exec(ctx, q,
		t.ID, int64(t.MarketID), t.Account, int32(t.OutcomeID), string(t.Side),
		int64(t.NumShares), int64(t.BasePrice), int64(t.Fee), t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns a market's trades, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE market_id = $1 ORDER BY executed_at DESC LIMIT $2 OFFSET $3`,
		int64(marketID), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for market %d: %w", marketID, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListBefore returns trades older than the cutoff, oldest first, for
// archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE executed_at < $1 ORDER BY executed_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// DeleteBefore removes archived trades and reports how many went.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func collectTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var out []domain.Trade
	for rows.Next() {
		var (
			t         domain.Trade
			marketID  int64
			outcomeID int32
			side      string
			numShares int64
			basePrice int64
			fee       int64
		)
		err := rows.Scan(&t.ID, &marketID, &t.Account, &outcomeID, &side,
			&numShares, &basePrice, &fee, &t.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.MarketID = uint64(marketID)
		t.OutcomeID = int(outcomeID)
		t.Side = domain.Side(side)
		t.NumShares = uint64(numShares)
		t.BasePrice = uint64(basePrice)
		t.Fee = uint64(fee)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return out, nil
}
