package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/marketd/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memMarketStore struct {
	mu      sync.Mutex
	markets map[uint64]*domain.Market
}

func (s *memMarketStore) Upsert(_ context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id uint64) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) List(ctx context.Context, _ domain.ListOpts) ([]*domain.Market, error) {
	return s.All(ctx)
}

func (s *memMarketStore) All(context.Context) ([]*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memBalanceStore struct {
	mu       sync.Mutex
	balances map[uint64]map[string]domain.OutcomeBalance
}

func (s *memBalanceStore) Upsert(_ context.Context, marketID uint64, account string, bal domain.OutcomeBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[marketID] == nil {
		s.balances[marketID] = make(map[string]domain.OutcomeBalance)
	}
	s.balances[marketID][account] = bal.Clone()
	return nil
}

func (s *memBalanceStore) ListByMarket(_ context.Context, marketID uint64) (map[string]domain.OutcomeBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.OutcomeBalance, len(s.balances[marketID]))
	for account, bal := range s.balances[marketID] {
		out[account] = bal.Clone()
	}
	return out, nil
}

type memTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *memTradeStore) Insert(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *memTradeStore) ListByMarket(_ context.Context, marketID uint64, _ domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTradeStore) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return nil, nil
}

func (s *memTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *memAuditStore) Insert(_ context.Context, e domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memAuditStore) ListByMarket(_ context.Context, marketID uint64, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAuditStore) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}

type memSettlement struct {
	mu       sync.Mutex
	enqueued []domain.TransferRequest
}

func (s *memSettlement) Enqueue(_ context.Context, t domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, t)
	return nil
}

func (s *memSettlement) all() []domain.TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TransferRequest(nil), s.enqueued...)
}

type testEnv struct {
	exchange   *Exchange
	markets    *memMarketStore
	balances   *memBalanceStore
	trades     *memTradeStore
	audit      *memAuditStore
	settlement *memSettlement
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		markets:    &memMarketStore{markets: make(map[uint64]*domain.Market)},
		balances:   &memBalanceStore{balances: make(map[uint64]map[string]domain.OutcomeBalance)},
		trades:     &memTradeStore{},
		audit:      &memAuditStore{},
		settlement: &memSettlement{},
	}
	x, err := NewExchange(Deps{
		Markets:    env.markets,
		Balances:   env.balances,
		Trades:     env.trades,
		Audit:      env.audit,
		Settlement: env.settlement,
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	env.exchange = x
	return env
}

func createArgs() domain.CreateMarketArgs {
	return domain.CreateMarketArgs{
		Title:              "Will it rain on Sunday?",
		CollateralToken:    "usdc.token.local",
		CollateralDecimals: 9,
		EndTime:            testNow.Add(72 * time.Hour),
		ResolutionTime:     testNow.Add(96 * time.Hour),
		Outcomes: []domain.Outcome{
			{ShortName: "yes"},
			{ShortName: "no"},
		},
		LiquidityB:      50,
		TradeFeeBps:     2,
		Oracle:          "oracle.local",
		Operator:        "operator.local",
		FeeOwner:        "fees.local",
		MinDepositUnits: 100,
	}
}

// openMarket creates, funds, and opens a market through the exchange.
func (env *testEnv) openMarket(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := env.exchange.CreateMarket(ctx, createArgs())
	require.NoError(t, err)
	require.NoError(t, env.exchange.DepositCollateral(ctx, id, 100_000_000_000))
	require.NoError(t, env.exchange.OpenMarket(ctx, id))
	return id
}

func TestCreateMarketAssignsSequentialIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.exchange.CreateMarket(ctx, createArgs())
	require.NoError(t, err)
	second, err := env.exchange.CreateMarket(ctx, createArgs())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(1), second)

	// Snapshots are mirrored to the store.
	m, err := env.markets.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.StagePending, m.Stage)
}

func TestUnknownMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.exchange.OpenMarket(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.exchange.MarketView(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuyRecordsTrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)

	receipt, err := env.exchange.Buy(ctx, id, "alice.local", 0, 10, 6_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(594_000_000), receipt.Change)

	trades, err := env.exchange.ListTrades(ctx, id, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, uint64(10), trades[0].NumShares)
	assert.NotEmpty(t, trades[0].ID)

	// Buys settle synchronously via change, nothing is enqueued.
	assert.Empty(t, env.settlement.all())

	// Balance mirror reflects the purchase.
	persisted, err := env.balances.ListByMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), persisted["alice.local"][0])
}

func TestSellEnqueuesProceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)

	_, err := env.exchange.Buy(ctx, id, "alice.local", 0, 10, 6_000_000_000)
	require.NoError(t, err)
	receipt, err := env.exchange.Sell(ctx, id, "alice.local", 0, 10, 0)
	require.NoError(t, err)

	enqueued := env.settlement.all()
	require.Len(t, enqueued, 1)
	assert.Equal(t, "alice.local", enqueued[0].To)
	assert.Equal(t, receipt.Proceeds, enqueued[0].Amount)
	assert.Equal(t, "sale proceeds", enqueued[0].Memo)
	assert.Equal(t, domain.TransferPending, enqueued[0].Status)
}

func TestWithdrawFeesEnqueuesToFeeOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)

	_, err := env.exchange.Buy(ctx, id, "alice.local", 0, 10, 6_000_000_000)
	require.NoError(t, err)

	amount, err := env.exchange.WithdrawFees(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(106_000_000), amount)

	enqueued := env.settlement.all()
	require.Len(t, enqueued, 1)
	assert.Equal(t, "fees.local", enqueued[0].To)
	assert.Equal(t, amount, enqueued[0].Amount)
}

func TestResolveAndRedeemFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)

	_, err := env.exchange.Buy(ctx, id, "alice.local", 0, 10, 6_000_000_000)
	require.NoError(t, err)
	require.NoError(t, env.exchange.ResolveMarket(ctx, id, []uint64{1_000_000_000, 0}))

	payout, err := env.exchange.Redeem(ctx, id, "alice.local")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000), payout)

	enqueued := env.settlement.all()
	require.Len(t, enqueued, 1)
	assert.Equal(t, "redemption", enqueued[0].Memo)
	assert.Equal(t, payout, enqueued[0].Amount)

	events := env.audit.events()
	assert.Contains(t, events, "market_resolved")
	assert.Contains(t, events, "redeemed")
}

func TestHandleTransferBuy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)
	require.Equal(t, uint64(0), id)

	payload := []byte(`{"type":"buy","args":{"market_id":0,"outcome_id":0,"num_shares":10}}`)
	refund, err := env.exchange.HandleTransfer(ctx, "alice.local", 6_000_000_000, payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(594_000_000), refund)

	got, traded, err := env.exchange.OutcomeBalance(ctx, id, "alice.local", 0)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Equal(t, uint64(10), got)
}

func TestHandleTransferDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.exchange.CreateMarket(ctx, createArgs())
	require.NoError(t, err)

	payload := []byte(`{"type":"initial_deposit","args":{"market_id":0}}`)
	refund, err := env.exchange.HandleTransfer(ctx, "operator.local", 100_000_000_000, payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), refund)

	view, err := env.exchange.MarketView(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000_000), view.DepositedCollateral)
}

func TestHandleTransferUnknownInstructionRefundsAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.openMarket(t)

	refund, err := env.exchange.HandleTransfer(ctx, "alice.local", 1_000, []byte(`{"type":"stake","args":{}}`))
	assert.ErrorIs(t, err, domain.ErrUnknownInstruction)
	assert.Equal(t, uint64(1_000), refund)
}

func TestHandleTransferFailedBuyRefundsAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.openMarket(t)

	payload := []byte(`{"type":"buy","args":{"market_id":0,"outcome_id":0,"num_shares":10}}`)
	refund, err := env.exchange.HandleTransfer(ctx, "alice.local", 5, payload)
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Equal(t, uint64(5), refund)
}

func TestGetPricesFallsBackToArena(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)

	prices, at, err := env.exchange.GetPrices(ctx, id)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.InDelta(t, 0.5, prices[0], 1e-15)
	assert.Equal(t, testNow, at)
}

func TestListMarketsPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := env.exchange.CreateMarket(ctx, createArgs())
		require.NoError(t, err)
	}

	views, err := env.exchange.ListMarkets(ctx, domain.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, uint64(1), views[0].ID)

	views, err = env.exchange.ListMarkets(ctx, domain.ListOpts{Offset: 9})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRestoreRebuildsArena(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.openMarket(t)
	_, err := env.exchange.Buy(ctx, id, "alice.local", 0, 10, 6_000_000_000)
	require.NoError(t, err)

	restored, err := NewExchange(Deps{
		Markets:  env.markets,
		Balances: env.balances,
		Trades:   env.trades,
		Audit:    env.audit,
		Clock:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	got, traded, err := restored.OutcomeBalance(ctx, id, "alice.local", 0)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Equal(t, uint64(10), got)

	view, err := restored.MarketView(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageOpen, view.Stage)
	assert.Equal(t, []float64{10, 0}, view.Shares)
}
