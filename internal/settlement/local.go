package settlement

import (
	"context"
	"log/slog"
	"sync"

	"github.com/outcomefi/marketd/internal/domain"
)

// LocalPayer records transfers instead of moving real assets. It is the
// payer for development and single-node deployments where the collateral
// ledger lives outside this process.
type LocalPayer struct {
	log *slog.Logger

	mu   sync.Mutex
	paid []domain.TransferRequest
}

var _ Payer = (*LocalPayer)(nil)

func NewLocalPayer(logger *slog.Logger) *LocalPayer {
	return &LocalPayer{log: logger.With(slog.String("component", "local_payer"))}
}

func (p *LocalPayer) Pay(_ context.Context, t domain.TransferRequest) error {
	p.mu.Lock()
	p.paid = append(p.paid, t)
	p.mu.Unlock()

	p.log.Info("transfer recorded",
		slog.String("transfer_id", t.ID),
		slog.String("to", t.To),
		slog.Uint64("amount", t.Amount),
		slog.String("memo", t.Memo))
	return nil
}

func (p *LocalPayer) Name() string { return "local" }

// Paid returns a copy of everything paid so far.
func (p *LocalPayer) Paid() []domain.TransferRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransferRequest(nil), p.paid...)
}
