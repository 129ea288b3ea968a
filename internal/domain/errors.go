package domain

import "errors"

// Sentinel errors for every failure mode the engine can surface. Callers
// match with errors.Is; the HTTP layer maps them onto status codes.
var (
	// ErrValidation: the market cannot be opened in its current shape
	// (no outcomes, deadlines in the past, or underfunded).
	ErrValidation = errors.New("market validation failed")

	// ErrStage: the operation is illegal in the market's current stage, or
	// trading was attempted after the end time.
	ErrStage = errors.New("operation not allowed in current stage")

	// ErrInsufficientPayment: the attached collateral does not cover the
	// full cost of a buy. Buys are never partially filled.
	ErrInsufficientPayment = errors.New("insufficient payment for buy")

	// ErrSlippageExceeded: sale proceeds fell below the seller's minimum.
	ErrSlippageExceeded = errors.New("sale proceeds below minimum acceptable")

	// ErrInsufficientBalance: debit of more shares than the account holds.
	ErrInsufficientBalance = errors.New("insufficient share balance")

	// ErrInvalidPayoutVector: resolution payouts do not sum to one unit of
	// collateral (resolved) or zero (invalid).
	ErrInvalidPayoutVector = errors.New("invalid payout vector")

	// ErrNotFinalized: redemption attempted before the market finalized.
	ErrNotFinalized = errors.New("market not finalized")

	// ErrZeroPayout: redemption computed a zero payout.
	ErrZeroPayout = errors.New("zero payout")

	// ErrOverflow: a checked fixed-point operation overflowed uint64.
	// Amounts are never silently wrapped.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnknownOutcome: outcome index outside the market's outcome list.
	ErrUnknownOutcome = errors.New("unknown outcome")

	// ErrNoFeesAccrued: fee withdrawal with nothing accrued.
	ErrNoFeesAccrued = errors.New("no fees accrued")

	// ErrUnknownInstruction: unrecognized instruction tag at the transfer
	// boundary.
	ErrUnknownInstruction = errors.New("unknown instruction")

	// ErrNotFound: generic missing-record error shared by stores, caches,
	// and account lookups.
	ErrNotFound = errors.New("not found")
)
