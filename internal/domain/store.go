package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts pages list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market snapshots. The in-memory arena is the source
// of truth while running; the store is its durable mirror and the restore
// source on startup.
type MarketStore interface {
	Upsert(ctx context.Context, m *Market) error
	GetByID(ctx context.Context, id uint64) (*Market, error)
	List(ctx context.Context, opts ListOpts) ([]*Market, error)
	All(ctx context.Context) ([]*Market, error)
}

// BalanceStore persists per-account balance vectors.
type BalanceStore interface {
	Upsert(ctx context.Context, marketID uint64, account string, balances OutcomeBalance) error
	ListByMarket(ctx context.Context, marketID uint64) (map[string]OutcomeBalance, error)
}

// TradeStore records executed trades.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TransferStore is the settlement outbox.
type TransferStore interface {
	Insert(ctx context.Context, t TransferRequest) error
	UpdateStatus(ctx context.Context, id string, status TransferStatus, lastError string) error
	ListPending(ctx context.Context, limit int) ([]TransferRequest, error)
	ListFinishedBefore(ctx context.Context, before time.Time) ([]TransferRequest, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditStore records state-changing operations.
type AuditStore interface {
	Insert(ctx context.Context, e AuditEntry) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]AuditEntry, error)
}

// PriceCache is a fast read path for current price vectors.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID uint64, prices []float64, at time.Time) error
	GetPrices(ctx context.Context, marketID uint64) ([]float64, time.Time, error)
}

// SignalBus fans events out to interested processes (the WS hub, other
// replicas of the API).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func() error, error)
}

// BusMessage is one message received from a SignalBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// Settlement accepts transfer requests for asynchronous execution. The
// engine enqueues and moves on; dispatch outcome is tracked in the outbox,
// never awaited by the caller.
type Settlement interface {
	Enqueue(ctx context.Context, t TransferRequest) error
}

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes archive objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
