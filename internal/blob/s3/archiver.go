package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomefi/marketd/internal/domain"
)

// Archiver moves cold rows out of the primary store: trades and finished
// settlement transfers older than a cutoff are serialized to JSONL, uploaded
// to blob storage, then deleted. The upload happens before the delete so a
// failure can only leave duplicates, never lose records.
type Archiver struct {
	log       *slog.Logger
	writer    domain.BlobWriter
	trades    domain.TradeStore
	transfers domain.TransferStore
	audit     domain.AuditStore
}

func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, transfers domain.TransferStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		log:       logger.With(slog.String("component", "archiver")),
		writer:    writer,
		trades:    trades,
		transfers: transfers,
		audit:     audit,
	}
}

// ArchiveTrades archives trades executed before the cutoff to
// archive/trades/YYYY-MM.jsonl and removes them from the store. Returns the
// archived count.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades delete: %w", err)
	}

	a.recordAudit(ctx, "trades_archived", path, deleted, before)
	a.log.Info("trades archived",
		slog.String("path", path),
		slog.Int64("count", deleted))
	return deleted, nil
}

// ArchiveTransfers archives sent and failed transfers finished before the
// cutoff to archive/transfers/YYYY-MM.jsonl and removes them. Pending
// transfers are never touched.
func (a *Archiver) ArchiveTransfers(ctx context.Context, before time.Time) (int64, error) {
	transfers, err := a.transfers.ListFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers query: %w", err)
	}
	if len(transfers) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(transfers)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers marshal: %w", err)
	}

	path := archivePath("transfers", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers upload: %w", err)
	}

	deleted, err := a.transfers.DeleteFinishedBefore(ctx, before)
	if err != nil {
		return int64(len(transfers)), fmt.Errorf("s3blob: archive transfers delete: %w", err)
	}

	a.recordAudit(ctx, "transfers_archived", path, deleted, before)
	a.log.Info("transfers archived",
		slog.String("path", path),
		slog.Int64("count", deleted))
	return deleted, nil
}

func (a *Archiver) recordAudit(ctx context.Context, event, path string, count int64, before time.Time) {
	err := a.audit.Insert(ctx, domain.AuditEntry{
		Event: event,
		Detail: map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.log.Warn("archive audit insert failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// archivePath partitions archive keys by the cutoff's year-month, e.g.
// archive/trades/2026-02.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
