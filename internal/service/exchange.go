package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/notify"
)

// Event channels published on the signal bus.
const (
	ChannelPrices  = "prices"
	ChannelTrades  = "trades"
	ChannelMarkets = "markets"
)

// Deps wires the Exchange. Markets, Balances, Trades and Audit are required;
// Prices, Bus, Settlement and Notifier are optional and skipped when nil.
type Deps struct {
	Logger     *slog.Logger
	Markets    domain.MarketStore
	Balances   domain.BalanceStore
	Trades     domain.TradeStore
	Audit      domain.AuditStore
	Prices     domain.PriceCache
	Bus        domain.SignalBus
	Settlement domain.Settlement
	Notifier   *notify.Notifier
	Clock      func() time.Time
}

// Exchange hosts the market engine. Every exposed operation runs to
// completion under a single-writer lock, mutating the arena first and then
// mirroring the result to storage, cache, bus, settlement, and notifications.
// The in-memory arena is the source of truth; the mirrors are best-effort
// and their failures are logged, never propagated back into the engine.
type Exchange struct {
	log   *slog.Logger
	arena *Arena
	deps  Deps
	clock func() time.Time

	mu chan struct{} // buffered size 1, acts as the writer lock
}

func NewExchange(deps Deps) (*Exchange, error) {
	if deps.Markets == nil || deps.Balances == nil || deps.Trades == nil || deps.Audit == nil {
		return nil, fmt.Errorf("service: exchange requires market, balance, trade and audit stores")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &Exchange{
		log:   log.With(slog.String("component", "exchange")),
		arena: NewArena(),
		deps:  deps,
		clock: clock,
		mu:    mu,
	}, nil
}

// lock acquires the writer lock, honoring context cancellation while waiting.
func (x *Exchange) lock(ctx context.Context) error {
	select {
	case <-x.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (x *Exchange) unlock() {
	x.mu <- struct{}{}
}

// Restore loads persisted markets and balances into the arena. Called once
// before serving.
func (x *Exchange) Restore(ctx context.Context) error {
	if err := x.lock(ctx); err != nil {
		return err
	}
	defer x.unlock()

	markets, err := x.deps.Markets.All(ctx)
	if err != nil {
		return fmt.Errorf("service: restore markets: %w", err)
	}
	for _, m := range markets {
		balances, err := x.deps.Balances.ListByMarket(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("service: restore balances for market %d: %w", m.ID, err)
		}
		m.Accounts = balances
		if m.Accounts == nil {
			m.Accounts = make(map[string]domain.OutcomeBalance)
		}
	}
	if err := x.arena.Restore(markets); err != nil {
		return err
	}
	x.log.Info("arena restored", slog.Int("markets", x.arena.Len()))
	return nil
}

// CreateMarket appends a new Pending market and returns its id.
func (x *Exchange) CreateMarket(ctx context.Context, args domain.CreateMarketArgs) (uint64, error) {
	if err := x.lock(ctx); err != nil {
		return 0, err
	}
	defer x.unlock()

	now := x.clock()
	m, err := domain.NewMarket(x.arena.NextID(), args, now)
	if err != nil {
		return 0, err
	}
	if err := x.arena.Append(m); err != nil {
		return 0, err
	}

	x.persistMarket(ctx, m)
	x.audit(ctx, m.ID, "market_created", args.Operator, map[string]any{
		"title":    m.Title,
		"outcomes": len(m.Outcomes),
	})
	x.log.Info("market created",
		slog.Uint64("market_id", m.ID),
		slog.String("title", m.Title),
		slog.Float64("liquidity_b", m.LiquidityB))
	return m.ID, nil
}

// DepositCollateral funds a pending market.
func (x *Exchange) DepositCollateral(ctx context.Context, marketID, amount uint64) error {
	if err := x.lock(ctx); err != nil {
		return err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return err
	}
	if err := m.DepositCollateral(amount, x.clock()); err != nil {
		return err
	}

	x.persistMarket(ctx, m)
	x.audit(ctx, m.ID, "collateral_deposited", "", map[string]any{"amount": amount})
	return nil
}

// OpenMarket validates and opens a market for trading.
func (x *Exchange) OpenMarket(ctx context.Context, marketID uint64) error {
	if err := x.lock(ctx); err != nil {
		return err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return err
	}
	if err := m.Open(x.clock()); err != nil {
		return err
	}

	x.persistMarket(ctx, m)
	x.refreshPrices(ctx, m)
	x.publish(ctx, ChannelMarkets, m.View())
	x.audit(ctx, m.ID, "market_opened", m.Operator, nil)
	x.notify(ctx, notify.Event{
		Kind:  notify.EventMarketOpened,
		Title: fmt.Sprintf("Market %d opened: %s", m.ID, m.Title),
		Fields: map[string]string{
			"end_time": m.EndTime.Format(time.RFC3339),
		},
	})
	x.log.Info("market opened", slog.Uint64("market_id", m.ID))
	return nil
}

// PauseMarket suspends trading.
func (x *Exchange) PauseMarket(ctx context.Context, marketID uint64) error {
	if err := x.lock(ctx); err != nil {
		return err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return err
	}
	if err := m.Pause(x.clock()); err != nil {
		return err
	}

	x.persistMarket(ctx, m)
	x.publish(ctx, ChannelMarkets, m.View())
	x.audit(ctx, m.ID, "market_paused", m.Operator, nil)
	x.log.Info("market paused", slog.Uint64("market_id", m.ID))
	return nil
}

// ResolveMarket finalizes a market with the oracle's payout vector.
func (x *Exchange) ResolveMarket(ctx context.Context, marketID uint64, payouts []uint64) error {
	if err := x.lock(ctx); err != nil {
		return err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return err
	}
	if err := m.Resolve(payouts, x.clock()); err != nil {
		return err
	}

	x.persistMarket(ctx, m)
	x.publish(ctx, ChannelMarkets, m.View())
	x.audit(ctx, m.ID, "market_resolved", m.Oracle, map[string]any{
		"stage":   string(m.Stage),
		"payouts": payouts,
	})
	x.notify(ctx, notify.Event{
		Kind:  notify.EventMarketResolved,
		Title: fmt.Sprintf("Market %d finalized as %s: %s", m.ID, m.Stage, m.Title),
	})
	x.log.Info("market resolved",
		slog.Uint64("market_id", m.ID),
		slog.String("stage", string(m.Stage)))
	return nil
}

// Buy executes a purchase. The excess payment comes back to the caller as
// Change in the receipt; it is reported, not settled asynchronously.
func (x *Exchange) Buy(ctx context.Context, marketID uint64, account string, outcome int, numShares, payment uint64) (domain.TradeReceipt, error) {
	if err := x.lock(ctx); err != nil {
		return domain.TradeReceipt{}, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	now := x.clock()
	receipt, err := m.Buy(account, outcome, numShares, payment, now)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	x.afterTrade(ctx, m, domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   m.ID,
		Account:    account,
		OutcomeID:  outcome,
		Side:       domain.SideBuy,
		NumShares:  numShares,
		BasePrice:  receipt.BasePrice,
		Fee:        receipt.Fee,
		ExecutedAt: now,
	})
	return receipt, nil
}

// Sell executes a sale and enqueues the proceeds for settlement.
func (x *Exchange) Sell(ctx context.Context, marketID uint64, account string, outcome int, numShares, minAcceptable uint64) (domain.TradeReceipt, error) {
	if err := x.lock(ctx); err != nil {
		return domain.TradeReceipt{}, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	now := x.clock()
	receipt, err := m.Sell(account, outcome, numShares, minAcceptable, now)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	x.afterTrade(ctx, m, domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   m.ID,
		Account:    account,
		OutcomeID:  outcome,
		Side:       domain.SideSell,
		NumShares:  numShares,
		BasePrice:  receipt.BasePrice,
		Fee:        receipt.Fee,
		ExecutedAt: now,
	})
	x.enqueueTransfer(ctx, m.ID, account, receipt.Proceeds, "sale proceeds")
	return receipt, nil
}

// WithdrawFees resets accrued fees and enqueues the payout to the fee owner.
func (x *Exchange) WithdrawFees(ctx context.Context, marketID uint64) (uint64, error) {
	if err := x.lock(ctx); err != nil {
		return 0, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return 0, err
	}
	amount, err := m.WithdrawFees(x.clock())
	if err != nil {
		return 0, err
	}

	x.persistMarket(ctx, m)
	x.audit(ctx, m.ID, "fees_withdrawn", m.FeeOwner, map[string]any{"amount": amount})
	x.enqueueTransfer(ctx, m.ID, m.FeeOwner, amount, "fee withdrawal")
	return amount, nil
}

// Redeem pays out a finalized position and enqueues the transfer.
func (x *Exchange) Redeem(ctx context.Context, marketID uint64, account string) (uint64, error) {
	if err := x.lock(ctx); err != nil {
		return 0, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return 0, err
	}
	payout, err := m.Redeem(account, x.clock())
	if err != nil {
		return 0, err
	}

	x.persistMarket(ctx, m)
	x.audit(ctx, m.ID, "redeemed", account, map[string]any{"payout": payout})
	x.enqueueTransfer(ctx, m.ID, account, payout, "redemption")
	return payout, nil
}

// HandleTransfer is the collateral-transfer boundary: a payment from an
// account with an attached instruction. The unspent part of the attached
// amount is returned for refunding; an unknown instruction refunds it all.
func (x *Exchange) HandleTransfer(ctx context.Context, from string, amount uint64, payload []byte) (refund uint64, err error) {
	instruction, err := domain.DecodeInstruction(payload)
	if err != nil {
		return amount, err
	}

	switch in := instruction.(type) {
	case domain.BuyInstruction:
		receipt, err := x.Buy(ctx, in.MarketID, from, in.OutcomeID, in.NumShares, amount)
		if err != nil {
			return amount, err
		}
		return receipt.Change, nil
	case domain.DepositInstruction:
		if err := x.DepositCollateral(ctx, in.MarketID, amount); err != nil {
			return amount, err
		}
		return 0, nil
	default:
		return amount, fmt.Errorf("service: unhandled instruction %T: %w", in, domain.ErrUnknownInstruction)
	}
}

// GetPrices serves the current price vector, preferring the cache.
func (x *Exchange) GetPrices(ctx context.Context, marketID uint64) ([]float64, time.Time, error) {
	if x.deps.Prices != nil {
		prices, at, err := x.deps.Prices.GetPrices(ctx, marketID)
		if err == nil {
			return prices, at, nil
		}
	}

	if err := x.lock(ctx); err != nil {
		return nil, time.Time{}, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return nil, time.Time{}, err
	}
	prices := m.CurrentPrices()
	at := x.clock()
	x.refreshPrices(ctx, m)
	return prices, at, nil
}

// Quote prices a prospective trade without executing it.
func (x *Exchange) Quote(ctx context.Context, marketID uint64, outcome int, numShares uint64, side domain.Side) (uint64, error) {
	if err := x.lock(ctx); err != nil {
		return 0, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return 0, err
	}
	return m.QuotePrice(outcome, numShares, side)
}

// MarketView returns the read model for one market.
func (x *Exchange) MarketView(ctx context.Context, marketID uint64) (domain.MarketView, error) {
	if err := x.lock(ctx); err != nil {
		return domain.MarketView{}, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return domain.MarketView{}, err
	}
	return m.View(), nil
}

// ListMarkets returns read models for a page of markets in id order.
func (x *Exchange) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketView, error) {
	if err := x.lock(ctx); err != nil {
		return nil, err
	}
	defer x.unlock()

	all := x.arena.All()
	if opts.Offset > len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	views := make([]domain.MarketView, len(all))
	for i, m := range all {
		views[i] = m.View()
	}
	return views, nil
}

// OutcomeBalance queries one account's holding of one outcome. The bool
// reports whether the account has ever traded the market.
func (x *Exchange) OutcomeBalance(ctx context.Context, marketID uint64, account string, outcome int) (uint64, bool, error) {
	if err := x.lock(ctx); err != nil {
		return 0, false, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return 0, false, err
	}
	return m.OutcomeBalanceOf(account, outcome)
}

// AccountBalances lists an account's nonzero holdings in one market.
func (x *Exchange) AccountBalances(ctx context.Context, marketID uint64, account string) ([]domain.BalanceView, error) {
	if err := x.lock(ctx); err != nil {
		return nil, err
	}
	defer x.unlock()

	m, err := x.arena.Get(marketID)
	if err != nil {
		return nil, err
	}
	return m.AccountBalances(account), nil
}

// ListTrades pages the trade history of one market.
func (x *Exchange) ListTrades(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	return x.deps.Trades.ListByMarket(ctx, marketID, opts)
}

// afterTrade mirrors a committed trade everywhere interested: snapshot,
// balances, trade log, price cache, bus, notifications.
func (x *Exchange) afterTrade(ctx context.Context, m *domain.Market, trade domain.Trade) {
	x.persistMarket(ctx, m)
	if err := x.deps.Trades.Insert(ctx, trade); err != nil {
		x.log.Error("trade insert failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()))
	}
	x.refreshPrices(ctx, m)
	x.publish(ctx, ChannelTrades, trade)
	x.publish(ctx, ChannelPrices, pricesEvent(m, trade.ExecutedAt))
	x.notify(ctx, notify.Event{
		Kind:  notify.EventTradeExecuted,
		Title: fmt.Sprintf("%s %d shares of market %d outcome %d", trade.Side, trade.NumShares, trade.MarketID, trade.OutcomeID),
		Fields: map[string]string{
			"account":    trade.Account,
			"base_price": strconv.FormatUint(trade.BasePrice, 10),
		},
	})
}

// persistMarket mirrors the snapshot and every balance vector to storage.
// The arena already holds the committed state, so failures are logged and
// not propagated.
func (x *Exchange) persistMarket(ctx context.Context, m *domain.Market) {
	if err := x.deps.Markets.Upsert(ctx, m); err != nil {
		x.log.Error("market upsert failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()))
	}
	for account, balances := range m.Accounts {
		if err := x.deps.Balances.Upsert(ctx, m.ID, account, balances); err != nil {
			x.log.Error("balance upsert failed",
				slog.Uint64("market_id", m.ID),
				slog.String("account", account),
				slog.String("error", err.Error()))
		}
	}
}

func (x *Exchange) refreshPrices(ctx context.Context, m *domain.Market) {
	if x.deps.Prices == nil {
		return
	}
	if err := x.deps.Prices.SetPrices(ctx, m.ID, m.CurrentPrices(), x.clock()); err != nil {
		x.log.Warn("price cache refresh failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()))
	}
}

func (x *Exchange) publish(ctx context.Context, channel string, payload any) {
	if x.deps.Bus == nil {
		return
	}
	if err := x.deps.Bus.Publish(ctx, channel, payload); err != nil {
		x.log.Warn("bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

func (x *Exchange) enqueueTransfer(ctx context.Context, marketID uint64, to string, amount uint64, memo string) {
	if x.deps.Settlement == nil {
		x.log.Warn("no settlement configured, transfer dropped",
			slog.String("to", to),
			slog.Uint64("amount", amount))
		return
	}
	now := x.clock()
	t := domain.TransferRequest{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		To:        to,
		Amount:    amount,
		Memo:      memo,
		Status:    domain.TransferPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := x.deps.Settlement.Enqueue(ctx, t); err != nil {
		x.log.Error("settlement enqueue failed",
			slog.String("transfer_id", t.ID),
			slog.String("to", to),
			slog.Uint64("amount", amount),
			slog.String("error", err.Error()))
	}
}

func (x *Exchange) audit(ctx context.Context, marketID uint64, event, actor string, detail map[string]any) {
	entry := domain.AuditEntry{
		MarketID:  marketID,
		Event:     event,
		Actor:     actor,
		Detail:    detail,
		CreatedAt: x.clock(),
	}
	if err := x.deps.Audit.Insert(ctx, entry); err != nil {
		x.log.Warn("audit insert failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

func (x *Exchange) notify(ctx context.Context, ev notify.Event) {
	if x.deps.Notifier == nil {
		return
	}
	x.deps.Notifier.Notify(ctx, ev)
}

// PricesEvent is the payload published on the prices channel.
type PricesEvent struct {
	MarketID uint64    `json:"market_id"`
	Prices   []float64 `json:"prices"`
	At       time.Time `json:"at"`
}

func pricesEvent(m *domain.Market, at time.Time) PricesEvent {
	return PricesEvent{MarketID: m.ID, Prices: m.CurrentPrices(), At: at}
}
