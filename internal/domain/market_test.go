package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testArgs() CreateMarketArgs {
	return CreateMarketArgs{
		Title:              "Will it rain on Sunday?",
		Description:        "Resolves yes if any rain is recorded.",
		CollateralToken:    "usdc.token.local",
		CollateralDecimals: 9,
		EndTime:            testNow.Add(72 * time.Hour),
		ResolutionTime:     testNow.Add(96 * time.Hour),
		Outcomes: []Outcome{
			{ShortName: "yes", LongName: "Yes, it rains"},
			{ShortName: "no", LongName: "No rain"},
		},
		LiquidityB:      50,
		TradeFeeBps:     2,
		Oracle:          "oracle.local",
		Operator:        "operator.local",
		FeeOwner:        "fees.local",
		MinDepositUnits: 100,
	}
}

// openTestMarket creates, funds, and opens a two-outcome market with b=50.
func openTestMarket(t *testing.T) *Market {
	t.Helper()
	m, err := NewMarket(1, testArgs(), testNow)
	require.NoError(t, err)
	require.NoError(t, m.DepositCollateral(100_000_000_000, testNow))
	require.NoError(t, m.Open(testNow))
	return m
}

func TestNewMarketDefaults(t *testing.T) {
	m, err := NewMarket(7, testArgs(), testNow)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), m.ID)
	assert.Equal(t, StagePending, m.Stage)
	assert.Len(t, m.Shares, 2)
	assert.Empty(t, m.Accounts)
	// Configured floor of 100 tokens exceeds ceil(Fund(50, 2)) = 35 tokens.
	assert.Equal(t, uint64(100_000_000_000), m.MinimumDeposit)
	assert.Equal(t, 0, m.Outcomes[0].ID)
	assert.Equal(t, 1, m.Outcomes[1].ID)
}

func TestNewMarketMinimumDepositCoversWorstCaseLoss(t *testing.T) {
	args := testArgs()
	args.MinDepositUnits = 1
	m, err := NewMarket(1, args, testNow)
	require.NoError(t, err)
	// ceil(50 * ln 2) = 35 tokens at 9 decimals.
	assert.Equal(t, uint64(35_000_000_000), m.MinimumDeposit)
}

func TestNewMarketRejectsBadArgs(t *testing.T) {
	args := testArgs()
	args.CollateralDecimals = 0
	_, err := NewMarket(1, args, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	args = testArgs()
	args.CollateralDecimals = 19
	_, err = NewMarket(1, args, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	args = testArgs()
	args.LiquidityB = 0
	_, err = NewMarket(1, args, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	args = testArgs()
	args.TradeFeeBps = 101
	_, err = NewMarket(1, args, testNow)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOpenRequiresValidation(t *testing.T) {
	m, err := NewMarket(1, testArgs(), testNow)
	require.NoError(t, err)

	// Underfunded.
	err = m.Open(testNow)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StagePending, m.Stage)

	require.NoError(t, m.DepositCollateral(100_000_000_000, testNow))

	// Deadlines in the past.
	late := m.EndTime.Add(time.Minute)
	err = m.Open(late)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StagePending, m.Stage)

	require.NoError(t, m.Open(testNow))
	assert.Equal(t, StageOpen, m.Stage)
}

func TestOpenRejectsEmptyOutcomes(t *testing.T) {
	args := testArgs()
	args.Outcomes = nil
	m, err := NewMarket(1, args, testNow)
	require.NoError(t, err)
	require.NoError(t, m.DepositCollateral(m.MinimumDeposit, testNow))

	err = m.Open(testNow)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPauseAndReopen(t *testing.T) {
	m := openTestMarket(t)

	require.NoError(t, m.Pause(testNow))
	assert.Equal(t, StagePaused, m.Stage)

	// Trading is shut while paused.
	err := m.Credit("alice.local", 0, 1, testNow)
	assert.ErrorIs(t, err, ErrStage)

	require.NoError(t, m.Open(testNow))
	assert.Equal(t, StageOpen, m.Stage)

	// Pause is only legal from Open.
	require.NoError(t, m.Pause(testNow))
	assert.ErrorIs(t, m.Pause(testNow), ErrStage)
}

func TestDepositOnlyWhilePending(t *testing.T) {
	m := openTestMarket(t)
	err := m.DepositCollateral(1, testNow)
	assert.ErrorIs(t, err, ErrStage)
	assert.Equal(t, uint64(100_000_000_000), m.DepositedCollateral)
}

func TestResolveWithUnitSum(t *testing.T) {
	m := openTestMarket(t)

	require.NoError(t, m.Resolve([]uint64{600_000_000, 400_000_000}, testNow))
	assert.Equal(t, StageResolved, m.Stage)
	assert.Equal(t, []uint64{600_000_000, 400_000_000}, m.Payouts)
}

func TestResolveWithZeroSumMarksInvalid(t *testing.T) {
	m := openTestMarket(t)

	require.NoError(t, m.Resolve([]uint64{0, 0}, testNow))
	assert.Equal(t, StageInvalid, m.Stage)
	assert.Nil(t, m.Payouts)
}

func TestResolveRejectsBadPayouts(t *testing.T) {
	m := openTestMarket(t)

	err := m.Resolve([]uint64{1, 1}, testNow)
	assert.ErrorIs(t, err, ErrInvalidPayoutVector)
	assert.Equal(t, StageOpen, m.Stage)

	err = m.Resolve([]uint64{1_000_000_000}, testNow)
	assert.ErrorIs(t, err, ErrInvalidPayoutVector)
	assert.Equal(t, StageOpen, m.Stage)
}

func TestResolveAllowedWhilePaused(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Pause(testNow))
	require.NoError(t, m.Resolve([]uint64{1_000_000_000, 0}, testNow))
	assert.Equal(t, StageResolved, m.Stage)
}

func TestNothingLeavesFinalized(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Resolve([]uint64{1_000_000_000, 0}, testNow))

	assert.ErrorIs(t, m.Open(testNow), ErrStage)
	assert.ErrorIs(t, m.Pause(testNow), ErrStage)
	assert.ErrorIs(t, m.Resolve([]uint64{0, 0}, testNow), ErrStage)
	assert.ErrorIs(t, m.DepositCollateral(1, testNow), ErrStage)
	assert.Equal(t, StageResolved, m.Stage)
}

func TestTradingClosesAtEndTime(t *testing.T) {
	m := openTestMarket(t)
	expired := m.EndTime

	err := m.Credit("alice.local", 0, 5, expired)
	assert.ErrorIs(t, err, ErrStage)

	_, err = m.Buy("alice.local", 0, 5, 10_000_000_000, expired)
	assert.ErrorIs(t, err, ErrStage)
	assert.Empty(t, m.Accounts)
	assert.Equal(t, float64(0), m.Shares[0])
}

func TestCreditScenario(t *testing.T) {
	m := openTestMarket(t)

	require.NoError(t, m.Credit("alice.local", 0, 5, testNow))

	got, traded, err := m.OutcomeBalanceOf("alice.local", 0)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Equal(t, uint64(5), got)

	got, traded, err = m.OutcomeBalanceOf("alice.local", 1)
	require.NoError(t, err)
	assert.True(t, traded)
	assert.Equal(t, uint64(0), got)

	_, traded, err = m.OutcomeBalanceOf("bob.local", 0)
	require.NoError(t, err)
	assert.False(t, traded)

	_, _, err = m.OutcomeBalanceOf("alice.local", 9)
	assert.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestLedgerAggregateStaysConsistent(t *testing.T) {
	m := openTestMarket(t)

	require.NoError(t, m.Credit("alice.local", 0, 30, testNow))
	require.NoError(t, m.Credit("bob.local", 0, 12, testNow))
	require.NoError(t, m.Credit("bob.local", 1, 4, testNow))
	require.NoError(t, m.Debit("alice.local", 0, 10, testNow))

	sum := make([]uint64, len(m.Outcomes))
	for _, bal := range m.Accounts {
		for i, q := range bal {
			sum[i] += q
		}
	}
	assert.Equal(t, float64(sum[0]), m.Shares[0])
	assert.Equal(t, float64(sum[1]), m.Shares[1])
}

func TestDebitRejectsOverdraw(t *testing.T) {
	m := openTestMarket(t)
	require.NoError(t, m.Credit("alice.local", 0, 5, testNow))

	err := m.Debit("alice.local", 0, 6, testNow)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	err = m.Debit("bob.local", 0, 1, testNow)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	got, _, err := m.OutcomeBalanceOf("alice.local", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)
	assert.Equal(t, float64(5), m.Shares[0])
}

func TestViewPricesOutcomes(t *testing.T) {
	m := openTestMarket(t)
	v := m.View()

	require.Len(t, v.Outcomes, 2)
	assert.InDelta(t, 0.5, v.Outcomes[0].Price, 1e-15)
	assert.Equal(t, uint64(500_000_000), v.Outcomes[0].ScaledPrice)
	assert.Equal(t, StageOpen, v.Stage)
	assert.Equal(t, "yes", v.Outcomes[0].ShortName)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := checkedAdd(^uint64(0), 1)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = checkedSub(0, 1)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = checkedMul(^uint64(0), 2)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := checkedMul(3, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)
	assert.Equal(t, uint64(1_000_000_000), pow10(9))
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrValidation, ErrStage, ErrInsufficientPayment, ErrSlippageExceeded,
		ErrInsufficientBalance, ErrInvalidPayoutVector, ErrNotFinalized,
		ErrZeroPayout, ErrOverflow, ErrUnknownOutcome, ErrNoFeesAccrued,
		ErrUnknownInstruction, ErrNotFound,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
