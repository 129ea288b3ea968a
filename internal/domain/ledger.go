package domain

import (
	"fmt"
	"time"
)

// The ledger keeps two views in lockstep: each account's OutcomeBalance and
// the market's aggregate Shares vector. Credit and Debit update both as one
// step so outstanding shares always equal the sum over accounts.

// GetOrCreateBalances returns the account's balance vector, materializing a
// zero vector if the account has never traded this market.
func (m *Market) GetOrCreateBalances(account string) OutcomeBalance {
	if bal, ok := m.Accounts[account]; ok {
		return bal
	}
	bal := make(OutcomeBalance, len(m.Outcomes))
	m.Accounts[account] = bal
	return bal
}

// OutcomeBalanceOf returns the account's holding for one outcome. The second
// return distinguishes "never traded this market" from a zero balance.
func (m *Market) OutcomeBalanceOf(account string, outcome int) (uint64, bool, error) {
	if err := m.assertOutcome(outcome); err != nil {
		return 0, false, err
	}
	bal, ok := m.Accounts[account]
	if !ok {
		return 0, false, nil
	}
	return bal[outcome], true, nil
}

// Credit adds numShares of an outcome to the account, incrementing the
// aggregate in the same step. Only legal while trading is allowed.
func (m *Market) Credit(account string, outcome int, numShares uint64, now time.Time) error {
	if err := m.assertTradable(now); err != nil {
		return err
	}
	if err := m.assertOutcome(outcome); err != nil {
		return err
	}

	bal := m.GetOrCreateBalances(account)
	updated, err := checkedAdd(bal[outcome], numShares)
	if err != nil {
		return fmt.Errorf("domain: credit %s outcome %d: %w", account, outcome, err)
	}

	bal[outcome] = updated
	m.Shares[outcome] += float64(numShares)
	m.UpdatedAt = now
	return nil
}

// Debit removes numShares of an outcome from the account, decrementing the
// aggregate in the same step. Fails with InsufficientBalance if the account
// holds fewer shares than requested; nothing is mutated on failure.
func (m *Market) Debit(account string, outcome int, numShares uint64, now time.Time) error {
	if err := m.assertTradable(now); err != nil {
		return err
	}
	if err := m.assertOutcome(outcome); err != nil {
		return err
	}

	bal, ok := m.Accounts[account]
	if !ok || bal[outcome] < numShares {
		return fmt.Errorf("domain: debit %s outcome %d: %w", account, outcome, ErrInsufficientBalance)
	}

	bal[outcome] -= numShares
	m.Shares[outcome] -= float64(numShares)
	m.UpdatedAt = now
	return nil
}
