package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/marketd/internal/domain"
)

// MarketStore persists market snapshots.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

func NewMarketStore(client *Client) *MarketStore {
	return &MarketStore{pool: client.Pool()}
}

const marketColumns = `
	id, title, description, collateral_token, collateral_decimals,
	deposited_collateral, minimum_deposit, end_time, resolution_time,
	outcomes, liquidity_b, shares, payouts, oracle, operator, fee_owner,
	stage, trade_fee_bps, fees_accrued, volume, created_at, updated_at`

// Upsert writes the full snapshot, replacing any previous row.
func (s *MarketStore) Upsert(ctx context.Context, m *domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}

	var payouts []int64
	if m.Payouts != nil {
		payouts = toInt64s(m.Payouts)
	}

	const q = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (id) DO UPDATE SET
			deposited_collateral = EXCLUDED.deposited_collateral,
			shares = EXCLUDED.shares,
			payouts = EXCLUDED.payouts,
			stage = EXCLUDED.stage,
			fees_accrued = EXCLUDED.fees_accrued,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, q,
		int64(m.ID), m.Title, m.Description, m.CollateralToken, int32(m.CollateralDecimals),
		int64(m.DepositedCollateral), int64(m.MinimumDeposit), m.EndTime, m.ResolutionTime,
		outcomes, m.LiquidityB, m.Shares, payouts, m.Oracle, m.Operator, m.FeeOwner,
		string(m.Stage), int32(m.TradeFeeBps), int64(m.FeesAccrued), int64(m.Volume),
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

// GetByID loads one snapshot. Balances are loaded separately.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (*domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns a page of snapshots in id order.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY id LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// All returns every snapshot in id order, for arena restore.
func (s *MarketStore) All(ctx context.Context) ([]*domain.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

func collectMarkets(rows pgx.Rows) ([]*domain.Market, error) {
	var out []*domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return out, nil
}

func scanMarket(row pgx.Row) (*domain.Market, error) {
	var (
		m            domain.Market
		id           int64
		decimals     int32
		deposited    int64
		minDeposit   int64
		outcomesJSON []byte
		payouts      []int64
		stage        string
		feeBps       int32
		feesAccrued  int64
		volume       int64
	)
	err := row.Scan(
		&id, &m.Title, &m.Description, &m.CollateralToken, &decimals,
		&deposited, &minDeposit, &m.EndTime, &m.ResolutionTime,
		&outcomesJSON, &m.LiquidityB, &m.Shares, &payouts, &m.Oracle, &m.Operator, &m.FeeOwner,
		&stage, &feeBps, &feesAccrued, &volume, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(outcomesJSON, &m.Outcomes); err != nil {
		return nil, fmt.Errorf("unmarshal outcomes: %w", err)
	}

	m.ID = uint64(id)
	m.CollateralDecimals = uint32(decimals)
	m.DepositedCollateral = uint64(deposited)
	m.MinimumDeposit = uint64(minDeposit)
	m.Stage = domain.Stage(stage)
	m.TradeFeeBps = uint16(feeBps)
	m.FeesAccrued = uint64(feesAccrued)
	m.Volume = uint64(volume)
	if payouts != nil {
		m.Payouts = toUint64s(payouts)
	}
	m.Accounts = make(map[string]domain.OutcomeBalance)
	return &m, nil
}

func toInt64s(v []uint64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func toUint64s(v []int64) []uint64 {
	out := make([]uint64, len(v))
	for i, x := range v {
		out[i] = uint64(x)
	}
	return out
}
