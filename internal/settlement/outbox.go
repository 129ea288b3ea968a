// Package settlement executes collateral transfers requested by the engine.
// Requests land in a durable outbox before anything moves; a worker drains
// the outbox and hands each transfer to a Payer. The engine never waits on a
// transfer, so a crash after enqueue loses nothing and a failed payment is
// recorded instead of unwinding committed market state.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/notify"
)

// Payer moves collateral for one transfer request.
type Payer interface {
	Pay(ctx context.Context, t domain.TransferRequest) error
	Name() string
}

// Outbox is the domain.Settlement implementation: uuid-keyed transfer rows
// committed to storage, dispatched asynchronously by Run.
type Outbox struct {
	log      *slog.Logger
	store    domain.TransferStore
	payer    Payer
	notifier *notify.Notifier
	interval time.Duration
	batch    int
}

var _ domain.Settlement = (*Outbox)(nil)

// NewOutbox builds an outbox draining batch transfers per interval. The
// notifier is optional.
func NewOutbox(store domain.TransferStore, payer Payer, notifier *notify.Notifier, logger *slog.Logger, interval time.Duration, batch int) *Outbox {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Outbox{
		log:      logger.With(slog.String("component", "settlement")),
		store:    store,
		payer:    payer,
		notifier: notifier,
		interval: interval,
		batch:    batch,
	}
}

// Enqueue commits the transfer to the outbox. Dispatch happens later; the
// caller does not learn the payment outcome.
func (o *Outbox) Enqueue(ctx context.Context, t domain.TransferRequest) error {
	if t.Status == "" {
		t.Status = domain.TransferPending
	}
	if err := o.store.Insert(ctx, t); err != nil {
		return fmt.Errorf("settlement: enqueue transfer %s: %w", t.ID, err)
	}
	o.log.Debug("transfer enqueued",
		slog.String("transfer_id", t.ID),
		slog.String("to", t.To),
		slog.Uint64("amount", t.Amount),
		slog.String("memo", t.Memo))
	return nil
}

// Run drains the outbox until the context is canceled.
func (o *Outbox) Run(ctx context.Context) error {
	o.log.Info("settlement worker started", slog.Duration("interval", o.interval))
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("settlement worker stopped")
			return ctx.Err()
		case <-ticker.C:
			o.DispatchPending(ctx)
		}
	}
}

// DispatchPending pays one batch of pending transfers, marking each sent or
// failed. Failed transfers stay in the outbox for operator inspection; they
// are not retried automatically.
func (o *Outbox) DispatchPending(ctx context.Context) {
	pending, err := o.store.ListPending(ctx, o.batch)
	if err != nil {
		o.log.Error("list pending transfers failed", slog.String("error", err.Error()))
		return
	}

	for _, t := range pending {
		if err := o.payer.Pay(ctx, t); err != nil {
			o.log.Error("transfer failed",
				slog.String("transfer_id", t.ID),
				slog.String("payer", o.payer.Name()),
				slog.String("error", err.Error()))
			if uerr := o.store.UpdateStatus(ctx, t.ID, domain.TransferFailed, err.Error()); uerr != nil {
				o.log.Error("transfer status update failed",
					slog.String("transfer_id", t.ID),
					slog.String("error", uerr.Error()))
			}
			if o.notifier != nil {
				o.notifier.Notify(ctx, notify.Event{
					Kind:  notify.EventTransferFailed,
					Title: fmt.Sprintf("Transfer %s to %s failed", t.ID, t.To),
					Fields: map[string]string{
						"amount": strconv.FormatUint(t.Amount, 10),
						"memo":   t.Memo,
						"error":  err.Error(),
					},
				})
			}
			continue
		}

		if err := o.store.UpdateStatus(ctx, t.ID, domain.TransferSent, ""); err != nil {
			o.log.Error("transfer status update failed",
				slog.String("transfer_id", t.ID),
				slog.String("error", err.Error()))
			continue
		}
		o.log.Info("transfer sent",
			slog.String("transfer_id", t.ID),
			slog.String("to", t.To),
			slog.Uint64("amount", t.Amount))
	}
}
