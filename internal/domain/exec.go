package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/outcomefi/marketd/internal/lmsr"
)

// TradeReceipt reports the priced parts of an executed trade. BasePrice and
// Fee are always set; Change only for buys, Proceeds only for sells.
type TradeReceipt struct {
	BasePrice uint64 `json:"base_price"`
	Fee       uint64 `json:"fee"`
	Change    uint64 `json:"change,omitempty"`
	Proceeds  uint64 `json:"proceeds,omitempty"`
}

// basePrice evaluates the LMSR cost delta for the trade and converts it to
// collateral units. Buys round the absolute estimate up to one decimal, sells
// round down, then the result scales by 10^(decimals-1). Rounding always
// favors the market so it never loses value to rounding error.
func (m *Market) basePrice(outcome int, numShares uint64, side Side) (uint64, error) {
	amount := float64(numShares)
	if side == SideSell {
		amount = -amount
	}
	est := math.Abs(lmsr.Estimate(m.LiquidityB, m.Shares, outcome, amount))

	var rounded float64
	if side == SideBuy {
		rounded = math.Ceil(est * 10)
	} else {
		rounded = math.Floor(est * 10)
	}
	if rounded >= float64(math.MaxUint64) {
		return 0, fmt.Errorf("domain: base price out of range: %w", ErrOverflow)
	}

	price, err := checkedMul(uint64(rounded), pow10(m.CollateralDecimals-roundingDecimals))
	if err != nil {
		return 0, fmt.Errorf("domain: base price: %w", err)
	}
	return price, nil
}

// tradeFee computes the fee on a base price: (base/100) * TradeFeeBps. The
// rate scales as a percent of price, see the TradeFeeBps field comment.
func (m *Market) tradeFee(base uint64) (uint64, error) {
	fee, err := checkedMul(base/100, uint64(m.TradeFeeBps))
	if err != nil {
		return 0, fmt.Errorf("domain: trade fee: %w", err)
	}
	return fee, nil
}

// QuotePrice returns the all-in amount for a prospective trade: base plus fee
// for a buy, base minus fee for a sell. Read-only.
func (m *Market) QuotePrice(outcome int, numShares uint64, side Side) (uint64, error) {
	if err := m.assertOutcome(outcome); err != nil {
		return 0, err
	}
	base, err := m.basePrice(outcome, numShares, side)
	if err != nil {
		return 0, err
	}
	fee, err := m.tradeFee(base)
	if err != nil {
		return 0, err
	}
	if side == SideBuy {
		return checkedAdd(base, fee)
	}
	return checkedSub(base, fee)
}

// Buy purchases numShares of an outcome against an attached payment. The
// payment must cover base price plus fee in full; otherwise the buy is
// rejected outright with InsufficientPayment and nothing is mutated. There
// are no partial fills. The excess payment comes back as Change.
func (m *Market) Buy(account string, outcome int, numShares, payment uint64, now time.Time) (TradeReceipt, error) {
	if err := m.assertTradable(now); err != nil {
		return TradeReceipt{}, err
	}
	if err := m.assertOutcome(outcome); err != nil {
		return TradeReceipt{}, err
	}

	base, err := m.basePrice(outcome, numShares, SideBuy)
	if err != nil {
		return TradeReceipt{}, err
	}
	fee, err := m.tradeFee(base)
	if err != nil {
		return TradeReceipt{}, err
	}
	cost, err := checkedAdd(base, fee)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: buy cost: %w", err)
	}
	if payment < cost {
		return TradeReceipt{}, fmt.Errorf("domain: payment %d below cost %d: %w", payment, cost, ErrInsufficientPayment)
	}

	newFees, err := checkedAdd(m.FeesAccrued, fee)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: fees accrued: %w", err)
	}
	newVolume, err := checkedAdd(m.Volume, base)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: volume: %w", err)
	}

	if err := m.Credit(account, outcome, numShares, now); err != nil {
		return TradeReceipt{}, err
	}
	m.FeesAccrued = newFees
	m.Volume = newVolume

	return TradeReceipt{BasePrice: base, Fee: fee, Change: payment - cost}, nil
}

// Sell disposes numShares of an outcome. Proceeds are base price minus fee;
// if they fall below minAcceptable the sale is rejected with
// SlippageExceeded and nothing is mutated. The caller owes the seller the
// returned Proceeds via settlement.
func (m *Market) Sell(account string, outcome int, numShares, minAcceptable uint64, now time.Time) (TradeReceipt, error) {
	if err := m.assertTradable(now); err != nil {
		return TradeReceipt{}, err
	}
	if err := m.assertOutcome(outcome); err != nil {
		return TradeReceipt{}, err
	}

	base, err := m.basePrice(outcome, numShares, SideSell)
	if err != nil {
		return TradeReceipt{}, err
	}
	fee, err := m.tradeFee(base)
	if err != nil {
		return TradeReceipt{}, err
	}
	proceeds, err := checkedSub(base, fee)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: sell proceeds: %w", err)
	}
	if proceeds < minAcceptable {
		return TradeReceipt{}, fmt.Errorf("domain: proceeds %d below minimum %d: %w", proceeds, minAcceptable, ErrSlippageExceeded)
	}

	newFees, err := checkedAdd(m.FeesAccrued, fee)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: fees accrued: %w", err)
	}
	newVolume, err := checkedAdd(m.Volume, base)
	if err != nil {
		return TradeReceipt{}, fmt.Errorf("domain: volume: %w", err)
	}

	if err := m.Debit(account, outcome, numShares, now); err != nil {
		return TradeReceipt{}, err
	}
	m.FeesAccrued = newFees
	m.Volume = newVolume

	return TradeReceipt{BasePrice: base, Fee: fee, Proceeds: proceeds}, nil
}
