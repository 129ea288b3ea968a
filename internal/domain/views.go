package domain

import (
	"time"

	"github.com/outcomefi/marketd/internal/lmsr"
)

// OutcomeView is an outcome with its current marginal price, both as a
// probability and scaled to the collateral's smallest unit.
type OutcomeView struct {
	ID          int     `json:"id"`
	ShortName   string  `json:"short_name"`
	LongName    string  `json:"long_name"`
	Price       float64 `json:"price"`
	ScaledPrice uint64  `json:"scaled_price"`
}

// MarketView is the read model served to API clients.
type MarketView struct {
	ID                  uint64        `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	CollateralToken     string        `json:"collateral_token"`
	CollateralDecimals  uint32        `json:"collateral_decimals"`
	DepositedCollateral uint64        `json:"deposited_collateral"`
	MinimumDeposit      uint64        `json:"minimum_deposit"`
	EndTime             time.Time     `json:"end_time"`
	ResolutionTime      time.Time     `json:"resolution_time"`
	Stage               Stage         `json:"stage"`
	LiquidityB          float64       `json:"liquidity_b"`
	Outcomes            []OutcomeView `json:"outcomes"`
	Shares              []float64     `json:"shares"`
	Payouts             []uint64      `json:"payouts,omitempty"`
	TradeFeeBps         uint16        `json:"trade_fee_bps"`
	FeesAccrued         uint64        `json:"fees_accrued"`
	Volume              uint64        `json:"volume"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// BalanceView is one account's holding for one outcome.
type BalanceView struct {
	MarketID  uint64 `json:"market_id"`
	OutcomeID int    `json:"outcome_id"`
	Shares    uint64 `json:"shares"`
}

// CurrentPrices returns the marginal price vector for the market.
func (m *Market) CurrentPrices() []float64 {
	return lmsr.Prices(m.LiquidityB, m.Shares)
}

// View materializes the read model, pricing every outcome.
func (m *Market) View() MarketView {
	prices := m.CurrentPrices()
	unit := float64(m.Unit())

	outcomes := make([]OutcomeView, len(m.Outcomes))
	for i, o := range m.Outcomes {
		outcomes[i] = OutcomeView{
			ID:          o.ID,
			ShortName:   o.ShortName,
			LongName:    o.LongName,
			Price:       prices[i],
			ScaledPrice: uint64(prices[i] * unit),
		}
	}

	return MarketView{
		ID:                  m.ID,
		Title:               m.Title,
		Description:         m.Description,
		CollateralToken:     m.CollateralToken,
		CollateralDecimals:  m.CollateralDecimals,
		DepositedCollateral: m.DepositedCollateral,
		MinimumDeposit:      m.MinimumDeposit,
		EndTime:             m.EndTime,
		ResolutionTime:      m.ResolutionTime,
		Stage:               m.Stage,
		LiquidityB:          m.LiquidityB,
		Outcomes:            outcomes,
		Shares:              append([]float64(nil), m.Shares...),
		Payouts:             append([]uint64(nil), m.Payouts...),
		TradeFeeBps:         m.TradeFeeBps,
		FeesAccrued:         m.FeesAccrued,
		Volume:              m.Volume,
		UpdatedAt:           m.UpdatedAt,
	}
}

// AccountBalances lists the account's nonzero holdings across outcomes.
func (m *Market) AccountBalances(account string) []BalanceView {
	bal, ok := m.Accounts[account]
	if !ok {
		return nil
	}
	views := make([]BalanceView, 0, len(bal))
	for i, shares := range bal {
		if shares == 0 {
			continue
		}
		views = append(views, BalanceView{MarketID: m.ID, OutcomeID: i, Shares: shares})
	}
	return views
}
