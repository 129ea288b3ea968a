package domain

import "time"

// Side distinguishes the two trade directions.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is the append-only record of one executed buy or sell.
type Trade struct {
	ID         string    `json:"id"`
	MarketID   uint64    `json:"market_id"`
	Account    string    `json:"account"`
	OutcomeID  int       `json:"outcome_id"`
	Side       Side      `json:"side"`
	NumShares  uint64    `json:"num_shares"`
	BasePrice  uint64    `json:"base_price"`
	Fee        uint64    `json:"fee"`
	ExecutedAt time.Time `json:"executed_at"`
}

// TransferStatus tracks a settlement transfer through the outbox.
type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSent    TransferStatus = "sent"
	TransferFailed  TransferStatus = "failed"
)

// TransferRequest is one outbound collateral payment (sale proceeds, fee
// withdrawal, redemption). Rows are committed before dispatch so a crash
// between state mutation and payment never loses the obligation.
type TransferRequest struct {
	ID        string         `json:"id"`
	MarketID  uint64         `json:"market_id"`
	To        string         `json:"to"`
	Amount    uint64         `json:"amount"`
	Memo      string         `json:"memo"`
	Status    TransferStatus `json:"status"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AuditEntry records one state-changing operation for the audit log.
type AuditEntry struct {
	ID        int64          `json:"id"`
	MarketID  uint64         `json:"market_id"`
	Event     string         `json:"event"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
