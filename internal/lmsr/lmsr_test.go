package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFund = 69.31471805599453
	testB    = 100.0
)

func TestFundLiquidityRoundTrip(t *testing.T) {
	assert.InDelta(t, testFund, Fund(testB, 2), 1e-12)
	assert.InDelta(t, testB, Liquidity(testFund, 2), 1e-12)
}

func TestFreshMarketPricesAndCost(t *testing.T) {
	shares := []float64{0, 0}

	prices := Prices(testB, shares)
	require.Len(t, prices, 2)
	assert.InDelta(t, 0.5, prices[0], 1e-15)
	assert.InDelta(t, 0.5, prices[1], 1e-15)

	assert.InDelta(t, testFund, Cost(testB, shares), 1e-12)
}

func TestPricesSumToOne(t *testing.T) {
	cases := [][]float64{
		{0, 0},
		{100, 0},
		{140, 20},
		{3, 1, 4, 1, 5},
		{1e6, 2e6, 5e5},
	}
	for _, shares := range cases {
		prices := Prices(50, shares)
		sum := 0.0
		for _, p := range prices {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "shares %v", shares)
	}
}

func TestEstimateIsPositiveForBuys(t *testing.T) {
	est := Estimate(50, []float64{0, 0}, 1, 10)
	assert.Greater(t, est, 5.2)
}

func TestEstimateStrictlyIncreasing(t *testing.T) {
	shares := []float64{30, 10}
	prev := Estimate(50, shares, 0, -20)
	for amount := -15.0; amount <= 25; amount += 5 {
		est := Estimate(50, shares, 0, amount)
		assert.Greater(t, est, prev, "amount %v", amount)
		prev = est
	}
}

func TestCostNonDecreasingPerOutcome(t *testing.T) {
	shares := []float64{40, 5, 12}
	base := Cost(80, shares)
	for i := range shares {
		bumped := append([]float64(nil), shares...)
		bumped[i] += 7
		assert.GreaterOrEqual(t, Cost(80, bumped), base)
	}
}

func TestStabilizationHandlesLargeQuantities(t *testing.T) {
	// Naive sum(exp(q/b)) would overflow float64 here.
	shares := []float64{9e4, 1e3}
	cost := Cost(100, shares)
	assert.False(t, math.IsInf(cost, 0))
	assert.False(t, math.IsNaN(cost))

	prices := Prices(100, shares)
	assert.InDelta(t, 1.0, prices[0], 1e-9)
}

// tradeRound applies a share delta, checks prices/cost/paid against golden
// values recorded from the reference implementation, verifies the closed-form
// inversion recovers the delta, and returns the updated state.
func tradeRound(t *testing.T, shares []float64, outcome int, delta, prevCost float64, want [4]float64) ([]float64, float64) {
	t.Helper()

	next := append([]float64(nil), shares...)
	next[outcome] += delta

	prices := Prices(testB, next)
	newCost := Cost(testB, next)
	paid := newCost - prevCost

	require.InEpsilon(t, want[0], prices[0], 1e-12)
	require.InEpsilon(t, want[1], prices[1], 1e-12)
	require.InEpsilon(t, want[2], newCost, 1e-12)
	require.InEpsilon(t, want[3], paid, 1e-9)

	recovered := Volume(testB, shares, outcome, paid)
	require.InDelta(t, delta, recovered, 1e-10)

	return next, newCost
}

func TestGoldenTradeSequence(t *testing.T) {
	shares := []float64{0, 0}
	cost := Cost(testB, shares)
	require.InDelta(t, testFund, cost, 1e-12)

	steps := []struct {
		outcome int
		delta   float64
		want    [4]float64
	}{
		{0, 100, [4]float64{0.7310585786300049, 0.2689414213699951, 131.32616875182228, 62.01145069582775}},
		{0, 40, [4]float64{0.8021838885585817, 0.19781611144141825, 162.0417409918451, 30.715572240022823}},
		{1, 20, [4]float64{0.7685247834990175, 0.23147521650098232, 166.3282467338031, 4.2865057419579955}},
		{0, 50, [4]float64{0.8455347349164652, 0.15446526508353473, 206.7786029386266, 40.45035620482349}},
		{0, 100, [4]float64{0.9370266439430035, 0.06297335605699653, 296.504356177659, 89.72575323903243}},
		{1, 50, [4]float64{0.9002495108803148, 0.09975048911968512, 300.5083319768696, 4.003975799210593}},
		{0, -40, [4]float64{0.8581489350995123, 0.1418510649004878, 265.2977610526074, -35.210570924262186}},
		{1, 30, [4]float64{0.8175744761936437, 0.18242552380635635, 270.14132779827526, 4.843566745667829}},
		{0, 40, [4]float64{0.8698915256370021, 0.13010847436299788, 303.938675828296, 33.79734803002077}},
		{1, 300, [4]float64{0.2497398944048824, 0.7502601055951177, 428.7335325115431, 124.79485668324708}},
		{1, -10, [4]float64{0.2689414213699951, 0.7310585786300049, 421.3261687518223, -7.407363759720795}},
		{1, 150, [4]float64{0.07585818002124352, 0.9241418199787566, 547.888973429255, 126.56280467743267}},
		{0, -40, [4]float64{0.05215356307841772, 0.9478464369215823, 545.3562776217964, -2.5326958074585946}},
		{1, 20, [4]float64{0.043107254941086144, 0.9568927450589139, 564.4063967938574, 19.050119172061045}},
		{0, 40, [4]float64{0.06297335605699653, 0.9370266439430035, 566.504356177659, 2.0979593838015944}},
		{1, 200, [4]float64{0.009013298652847833, 0.990986701347152, 760.9054164169887, 194.4010602393297}},
		{1, -100, [4]float64{0.024127021417669214, 0.9758729785823308, 662.442284593378, -98.46313182361075}},
	}

	for _, step := range steps {
		shares, cost = tradeRound(t, shares, step.outcome, step.delta, cost, step.want)
	}
}
