package domain

import (
	"fmt"
	"time"

	"github.com/outcomefi/marketd/internal/lmsr"
)

// Stage is the lifecycle state of a market. Transitions are monotone:
// nothing leaves a finalized stage.
type Stage string

const (
	StagePending  Stage = "pending"
	StageOpen     Stage = "open"
	StagePaused   Stage = "paused"
	StageResolved Stage = "resolved"
	StageInvalid  Stage = "invalid"
)

// Finalized reports whether the stage is terminal.
func (s Stage) Finalized() bool {
	return s == StageResolved || s == StageInvalid
}

// Outcome is one mutually exclusive result tradable in a market. Outcomes are
// fixed at creation; the count never changes afterwards.
type Outcome struct {
	ID        int    `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
}

// OutcomeBalance is one account's share holdings in a market, indexed by
// outcome. Its length always equals the market's outcome count.
type OutcomeBalance []uint64

// Clone returns an independent copy of the balance vector.
func (b OutcomeBalance) Clone() OutcomeBalance {
	out := make(OutcomeBalance, len(b))
	copy(out, b)
	return out
}

// Market is the full mutable state of one prediction market: descriptive
// metadata, the LMSR share vector, the per-account ledger, fee accounting,
// and the lifecycle stage. All mutation happens through methods that either
// complete atomically or return an error with no partial effects.
type Market struct {
	ID                  uint64
	Title               string
	Description         string
	CollateralToken     string
	CollateralDecimals  uint32
	DepositedCollateral uint64
	MinimumDeposit      uint64
	EndTime             time.Time
	ResolutionTime      time.Time
	Outcomes            []Outcome
	LiquidityB          float64

	// Shares is the aggregate outstanding-shares vector across all accounts,
	// one entry per outcome. It is kept consistent with Accounts on every
	// credit and debit.
	Shares []float64

	// Payouts holds the per-outcome payout weights once the market resolves;
	// nil while trading and for invalid markets. Weights sum to one unit of
	// collateral (10^CollateralDecimals).
	Payouts []uint64

	Oracle   string
	Operator string
	FeeOwner string

	Stage Stage

	// TradeFeeBps scales as a percent of the base price despite the name:
	// fee = (base/100) * TradeFeeBps. Kept for compatibility with deployed
	// markets.
	TradeFeeBps uint16
	FeesAccrued uint64
	Volume      uint64

	Accounts map[string]OutcomeBalance

	CreatedAt time.Time
	UpdatedAt time.Time
}

// roundingDecimals is the decimal precision trade prices are rounded to
// before scaling to the collateral's smallest unit.
const roundingDecimals = 1

// maxCollateralDecimals keeps 10^decimals within uint64.
const maxCollateralDecimals = 18

// CreateMarketArgs carries everything needed to create a market. The market
// starts Pending and must be funded and opened before trading.
type CreateMarketArgs struct {
	Title              string
	Description        string
	CollateralToken    string
	CollateralDecimals uint32
	EndTime            time.Time
	ResolutionTime     time.Time
	Outcomes           []Outcome
	LiquidityB         float64
	TradeFeeBps        uint16
	Oracle             string
	Operator           string
	FeeOwner           string

	// MinDepositUnits is the host's floor on initial funding, in whole
	// collateral tokens. The effective minimum is the larger of this and the
	// LMSR worst-case loss Fund(b, n).
	MinDepositUnits uint64
}

// NewMarket builds a Pending market from args. The minimum deposit is the
// larger of the configured floor and the worst-case market-maker loss
// ceil(Fund(b, n)), scaled to the collateral's smallest unit.
func NewMarket(id uint64, args CreateMarketArgs, now time.Time) (*Market, error) {
	if args.CollateralDecimals < roundingDecimals || args.CollateralDecimals > maxCollateralDecimals {
		return nil, fmt.Errorf("domain: collateral decimals %d out of range [%d,%d]: %w",
			args.CollateralDecimals, roundingDecimals, maxCollateralDecimals, ErrValidation)
	}
	if args.LiquidityB <= 0 {
		return nil, fmt.Errorf("domain: liquidity parameter must be positive: %w", ErrValidation)
	}
	if args.TradeFeeBps > 100 {
		return nil, fmt.Errorf("domain: trade fee %d exceeds 100 percent: %w", args.TradeFeeBps, ErrValidation)
	}

	minTokens := args.MinDepositUnits
	if n := len(args.Outcomes); n >= 2 {
		if worstCase := uint64(lmsr.Fund(args.LiquidityB, n)) + 1; worstCase > minTokens {
			minTokens = worstCase
		}
	}
	unit := pow10(args.CollateralDecimals)
	minDeposit, err := checkedMul(minTokens, unit)
	if err != nil {
		return nil, fmt.Errorf("domain: minimum deposit: %w", err)
	}

	outcomes := make([]Outcome, len(args.Outcomes))
	copy(outcomes, args.Outcomes)
	for i := range outcomes {
		outcomes[i].ID = i
	}

	return &Market{
		ID:                 id,
		Title:              args.Title,
		Description:        args.Description,
		CollateralToken:    args.CollateralToken,
		CollateralDecimals: args.CollateralDecimals,
		MinimumDeposit:     minDeposit,
		EndTime:            args.EndTime,
		ResolutionTime:     args.ResolutionTime,
		Outcomes:           outcomes,
		LiquidityB:         args.LiquidityB,
		Shares:             make([]float64, len(outcomes)),
		Oracle:             args.Oracle,
		Operator:           args.Operator,
		FeeOwner:           args.FeeOwner,
		Stage:              StagePending,
		TradeFeeBps:        args.TradeFeeBps,
		Accounts:           make(map[string]OutcomeBalance),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Unit returns one whole collateral token in smallest units.
func (m *Market) Unit() uint64 {
	return pow10(m.CollateralDecimals)
}

// Validate checks that the market can be opened: it has outcomes, both
// deadlines are in the future, and funding meets the minimum. All problems
// are reported, not just the first.
func (m *Market) Validate(now time.Time) error {
	var problems []string
	if len(m.Outcomes) == 0 {
		problems = append(problems, "no outcomes")
	}
	if !m.EndTime.After(now) {
		problems = append(problems, "end time not in the future")
	}
	if !m.ResolutionTime.After(now) {
		problems = append(problems, "resolution time not in the future")
	}
	if m.DepositedCollateral < m.MinimumDeposit {
		problems = append(problems, fmt.Sprintf("deposited %d below minimum %d", m.DepositedCollateral, m.MinimumDeposit))
	}
	if len(problems) > 0 {
		return fmt.Errorf("domain: market %d: %v: %w", m.ID, problems, ErrValidation)
	}
	return nil
}

// DepositCollateral adds initial funding. Only legal while Pending; the
// deposited amount only ever grows.
func (m *Market) DepositCollateral(amount uint64, now time.Time) error {
	if m.Stage != StagePending {
		return fmt.Errorf("domain: deposit in stage %s: %w", m.Stage, ErrStage)
	}
	total, err := checkedAdd(m.DepositedCollateral, amount)
	if err != nil {
		return fmt.Errorf("domain: deposit: %w", err)
	}
	m.DepositedCollateral = total
	m.UpdatedAt = now
	return nil
}

// Open transitions Pending or Paused to Open after validation passes.
func (m *Market) Open(now time.Time) error {
	if m.Stage != StagePending && m.Stage != StagePaused {
		return fmt.Errorf("domain: open in stage %s: %w", m.Stage, ErrStage)
	}
	if err := m.Validate(now); err != nil {
		return err
	}
	m.Stage = StageOpen
	m.UpdatedAt = now
	return nil
}

// Pause suspends trading on an Open market.
func (m *Market) Pause(now time.Time) error {
	if m.Stage != StageOpen {
		return fmt.Errorf("domain: pause in stage %s: %w", m.Stage, ErrStage)
	}
	m.Stage = StagePaused
	m.UpdatedAt = now
	return nil
}

// Resolve finalizes the market with a payout-weight vector. A sum of exactly
// one collateral unit resolves the market; a sum of zero marks it invalid.
// Any other sum is rejected with no state change.
func (m *Market) Resolve(payouts []uint64, now time.Time) error {
	if m.Stage != StageOpen && m.Stage != StagePaused {
		return fmt.Errorf("domain: resolve in stage %s: %w", m.Stage, ErrStage)
	}
	if len(payouts) != len(m.Outcomes) {
		return fmt.Errorf("domain: %d payouts for %d outcomes: %w", len(payouts), len(m.Outcomes), ErrInvalidPayoutVector)
	}

	sum := uint64(0)
	for _, p := range payouts {
		s, err := checkedAdd(sum, p)
		if err != nil {
			return fmt.Errorf("domain: payout sum: %w", err)
		}
		sum = s
	}

	switch sum {
	case m.Unit():
		m.Payouts = append([]uint64(nil), payouts...)
		m.Stage = StageResolved
	case 0:
		m.Payouts = nil
		m.Stage = StageInvalid
	default:
		return fmt.Errorf("domain: payout sum %d is neither %d nor 0: %w", sum, m.Unit(), ErrInvalidPayoutVector)
	}
	m.UpdatedAt = now
	return nil
}

// assertTradable gates every trading mutation: stage must be Open and the
// trade deadline must not have passed.
func (m *Market) assertTradable(now time.Time) error {
	if m.Stage != StageOpen {
		return fmt.Errorf("domain: trading in stage %s: %w", m.Stage, ErrStage)
	}
	if !now.Before(m.EndTime) {
		return fmt.Errorf("domain: trading after end time: %w", ErrStage)
	}
	return nil
}

// assertOutcome validates an outcome index against the outcome list.
func (m *Market) assertOutcome(outcome int) error {
	if outcome < 0 || outcome >= len(m.Outcomes) {
		return fmt.Errorf("domain: outcome %d of %d: %w", outcome, len(m.Outcomes), ErrUnknownOutcome)
	}
	return nil
}
