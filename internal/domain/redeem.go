package domain

import (
	"fmt"
	"time"
)

// Redeem computes the account's collateral payout from a finalized market
// using exact integer arithmetic. For a resolved market the payout is
// sum(balance[i] * payout_weight[i]); for an invalid market every outcome
// refunds at the equal weight unit/outcome_count (truncating division). A
// zero result fails with ZeroPayout.
//
// Balances are deliberately not cleared here: the caller commits state first
// and requests settlement afterwards, and a repeat redemption is handled at
// the settlement layer. See DESIGN.md.
func (m *Market) Redeem(account string, now time.Time) (uint64, error) {
	if !m.Stage.Finalized() {
		return 0, fmt.Errorf("domain: redeem in stage %s: %w", m.Stage, ErrNotFinalized)
	}
	bal, ok := m.Accounts[account]
	if !ok {
		return 0, fmt.Errorf("domain: redeem %s: no balances: %w", account, ErrNotFound)
	}

	weights := m.Payouts
	if m.Stage == StageInvalid {
		equal := m.Unit() / uint64(len(m.Outcomes))
		weights = make([]uint64, len(m.Outcomes))
		for i := range weights {
			weights[i] = equal
		}
	}

	payout := uint64(0)
	for i, shares := range bal {
		part, err := checkedMul(shares, weights[i])
		if err != nil {
			return 0, fmt.Errorf("domain: redeem outcome %d: %w", i, err)
		}
		payout, err = checkedAdd(payout, part)
		if err != nil {
			return 0, fmt.Errorf("domain: redeem total: %w", err)
		}
	}
	if payout == 0 {
		return 0, fmt.Errorf("domain: redeem %s: %w", account, ErrZeroPayout)
	}

	m.UpdatedAt = now
	return payout, nil
}

// WithdrawFees zeroes the accrued fees and returns the withdrawn amount. The
// reset and the settlement request to the fee owner form one logical step at
// the service layer.
func (m *Market) WithdrawFees(now time.Time) (uint64, error) {
	if m.FeesAccrued == 0 {
		return 0, fmt.Errorf("domain: market %d: %w", m.ID, ErrNoFeesAccrued)
	}
	amount := m.FeesAccrued
	m.FeesAccrued = 0
	m.UpdatedAt = now
	return amount, nil
}
