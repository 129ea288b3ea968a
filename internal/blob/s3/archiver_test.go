package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/marketd/internal/domain"
)

type captureWriter struct {
	path        string
	contentType string
	body        []byte
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	w.path = path
	w.contentType = contentType
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	w.body = buf.Bytes()
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeTradeStore struct {
	domain.TradeStore
	trades  []domain.Trade
	deleted time.Time
}

func (s *fakeTradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range s.trades {
		if t.ExecutedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = before
	var n int64
	for _, t := range s.trades {
		if t.ExecutedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type fakeTransferStore struct {
	domain.TransferStore
	transfers []domain.TransferRequest
}

func (s *fakeTransferStore) ListFinishedBefore(_ context.Context, before time.Time) ([]domain.TransferRequest, error) {
	var out []domain.TransferRequest
	for _, t := range s.transfers {
		if t.Status != domain.TransferPending && t.UpdatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTransferStore) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for _, t := range s.transfers {
		if t.Status != domain.TransferPending && t.UpdatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type fakeAuditStore struct {
	domain.AuditStore
	entries []domain.AuditEntry
}

func (s *fakeAuditStore) Insert(_ context.Context, e domain.AuditEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestArchiveTradesWritesJSONLAndDeletes(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeStore{trades: []domain.Trade{
		{ID: "t1", MarketID: 1, Side: domain.SideBuy, ExecutedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "t2", MarketID: 1, Side: domain.SideSell, ExecutedAt: cutoff.Add(-24 * time.Hour)},
		{ID: "t3", MarketID: 2, Side: domain.SideBuy, ExecutedAt: cutoff.Add(time.Hour)},
	}}
	writer := &captureWriter{}
	audit := &fakeAuditStore{}
	archiver := NewArchiver(writer, trades, &fakeTransferStore{}, audit, slog.Default())

	count, err := archiver.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, "archive/trades/2026-02.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)

	lines := strings.Split(strings.TrimSpace(string(writer.body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"t1"`)
	assert.Contains(t, lines[1], `"id":"t2"`)

	assert.Equal(t, cutoff, trades.deleted)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "trades_archived", audit.entries[0].Event)
}

func TestArchiveTradesNoRowsIsNoOp(t *testing.T) {
	writer := &captureWriter{}
	archiver := NewArchiver(writer, &fakeTradeStore{}, &fakeTransferStore{}, &fakeAuditStore{}, slog.Default())

	count, err := archiver.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.path)
}

func TestArchiveTransfersSkipsPending(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	transfers := &fakeTransferStore{transfers: []domain.TransferRequest{
		{ID: "a", Status: domain.TransferSent, UpdatedAt: cutoff.Add(-time.Hour)},
		{ID: "b", Status: domain.TransferPending, UpdatedAt: cutoff.Add(-time.Hour)},
		{ID: "c", Status: domain.TransferFailed, UpdatedAt: cutoff.Add(-time.Minute)},
	}}
	writer := &captureWriter{}
	archiver := NewArchiver(writer, &fakeTradeStore{}, transfers, &fakeAuditStore{}, slog.Default())

	count, err := archiver.ArchiveTransfers(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "archive/transfers/2026-02.jsonl", writer.path)

	body := string(writer.body)
	assert.Contains(t, body, `"id":"a"`)
	assert.NotContains(t, body, `"id":"b"`)
}
