// Package lmsr implements the Logarithmic Market Scoring Rule cost function
// used to price outcome shares. All functions are pure and operate on float64;
// they must be evaluated in the exact order written here so that independent
// replicas of the engine produce bit-identical prices for identical inputs.
package lmsr

import "math"

// Fund returns the minimum funding (maximum market-maker loss) for a market
// with n outcomes at liquidity parameter b: b * ln(n).
func Fund(b float64, n int) float64 {
	return b * math.Log(float64(n))
}

// Liquidity is the inverse of Fund: the liquidity parameter that a given
// funding amount buys for a market with n outcomes.
func Liquidity(fund float64, n int) float64 {
	return fund / math.Log(float64(n))
}

// coefficients divides each outstanding-share quantity by b and returns the
// scaled vector along with its maximum, which is used as the shift in the
// stabilized log-sum-exp below.
func coefficients(b float64, shares []float64) ([]float64, float64) {
	max := 0.0
	scaled := make([]float64, len(shares))
	for i, q := range shares {
		v := q / b
		if v > max {
			max = v
		}
		scaled[i] = v
	}
	return scaled, max
}

// shiftExpSum computes sum(exp(v - max)) over the scaled vector. Subtracting
// the maximum first keeps every exponent <= 0, so the sum cannot overflow no
// matter how large the share quantities grow.
func shiftExpSum(max float64, scaled []float64) float64 {
	sum := 0.0
	for _, v := range scaled {
		sum += math.Exp(v - max)
	}
	return sum
}

// lnSum computes ln(sum(exp(q_i/b))) with max-shift stabilization.
func lnSum(b float64, shares []float64) float64 {
	scaled, max := coefficients(b, shares)
	sum := shiftExpSum(max, scaled)
	return math.Log(sum) + max
}

// Cost evaluates the LMSR cost function C(q) = b * ln(sum(exp(q_i/b))).
func Cost(b float64, shares []float64) float64 {
	return b * lnSum(b, shares)
}

// Prices returns the marginal price of every outcome: the softmax of the
// scaled share vector. The entries always sum to 1 within floating tolerance.
func Prices(b float64, shares []float64) []float64 {
	scaled, max := coefficients(b, shares)
	sum := shiftExpSum(max, scaled)

	prices := make([]float64, len(scaled))
	for i, v := range scaled {
		prices[i] = math.Exp(v - max - math.Log(sum))
	}
	return prices
}

// Estimate returns the signed collateral cost of moving outcome i's quantity
// by amount: C(q + amount*e_i) - C(q). Positive amounts model buys, negative
// amounts model sells. The result is strictly increasing in amount.
func Estimate(b float64, shares []float64, outcome int, amount float64) float64 {
	after := make([]float64, len(shares))
	copy(after, shares)
	after[outcome] += amount
	return Cost(b, after) - Cost(b, shares)
}

// Volume inverts Estimate: given the signed collateral amount actually paid,
// it recovers the share quantity delta on outcome i that produces it. Uses
// the closed-form inversion of the softmax rather than a numeric search.
func Volume(b float64, shares []float64, outcome int, amount float64) float64 {
	a := math.Exp(amount/b) - 1.0

	scaled, max := coefficients(b, shares)
	sum := shiftExpSum(max, scaled)

	p := math.Exp(scaled[outcome] - max - math.Log(sum))

	return b * math.Log(a/p+1.0)
}
