package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemRequiresFinalized(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("alice.local", 0, 10, testNow))

	_, err := m.Redeem("alice.local", testNow)
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestRedeemResolvedIsExact(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("alice.local", 0, 10, testNow))
	require.NoError(t, m.Credit("alice.local", 1, 3, testNow))
	require.NoError(t, m.Resolve([]uint64{600_000_000, 400_000_000}, testNow))

	payout, err := m.Redeem("alice.local", testNow)
	require.NoError(t, err)
	// 10*600_000_000 + 3*400_000_000, integer exact.
	assert.Equal(t, uint64(7_200_000_000), payout)
}

func TestRedeemLosingSideIsZeroPayout(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("bob.local", 1, 25, testNow))
	require.NoError(t, m.Resolve([]uint64{1_000_000_000, 0}, testNow))

	_, err := m.Redeem("bob.local", testNow)
	assert.ErrorIs(t, err, ErrZeroPayout)
}

func TestRedeemUnknownAccount(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Resolve([]uint64{1_000_000_000, 0}, testNow))

	_, err := m.Redeem("nobody.local", testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemInvalidRefundsEqually(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("alice.local", 0, 10, testNow))
	require.NoError(t, m.Credit("bob.local", 1, 4, testNow))
	require.NoError(t, m.Resolve([]uint64{0, 0}, testNow))

	// Each share refunds unit/outcome_count = 500_000_000.
	payout, err := m.Redeem("alice.local", testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), payout)

	payout, err = m.Redeem("bob.local", testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), payout)
}

func TestRedeemLeavesBalancesInPlace(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("alice.local", 0, 10, testNow))
	require.NoError(t, m.Resolve([]uint64{1_000_000_000, 0}, testNow))

	_, err := m.Redeem("alice.local", testNow)
	require.NoError(t, err)

	got, _, err := m.OutcomeBalanceOf("alice.local", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got)
}

func TestWithdrawFees(t *testing.T) {
	m := openTestMarket(t)
	_, err := m.Buy("alice.local", 0, 10, 6_000_000_000, testNow)
	require.NoError(t, err)

	amount, err := m.WithdrawFees(testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(106_000_000), amount)
	assert.Equal(t, uint64(0), m.FeesAccrued)

	_, err = m.WithdrawFees(testNow)
	assert.ErrorIs(t, err, ErrNoFeesAccrued)
}
