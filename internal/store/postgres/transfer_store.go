package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/marketd/internal/domain"
)

// TransferStore is the settlement outbox table.
type TransferStore struct {
	pool *pgxpool.Pool
}

var _ domain.TransferStore = (*TransferStore)(nil)

func NewTransferStore(client *Client) *TransferStore {
	return &TransferStore{pool: client.Pool()}
}

const transferColumns = `id, market_id, to_account, amount, memo, status, last_error, created_at, updated_at`

func (s *TransferStore) Insert(ctx context.Context, t domain.TransferRequest) error {
	const q = `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := s.pool.Exec(ctx, q,
		t.ID, int64(t.MarketID), t.To, int64(t.Amount), t.Memo,
		string(t.Status), t.LastError, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert transfer %s: %w", t.ID, err)
	}
	return nil
}

func (s *TransferStore) UpdateStatus(ctx context.Context, id string, status domain.TransferStatus, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transfers SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), lastError)
	if err != nil {
		return fmt.Errorf("postgres: update transfer %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: transfer %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListPending returns pending transfers oldest first, for dispatch.
func (s *TransferStore) ListPending(ctx context.Context, limit int) ([]domain.TransferRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending transfers: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// ListFinishedBefore returns sent and failed transfers older than the cutoff,
// for archival.
func (s *TransferStore) ListFinishedBefore(ctx context.Context, before time.Time) ([]domain.TransferRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE status <> 'pending' AND updated_at < $1 ORDER BY updated_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished transfers: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// DeleteFinishedBefore removes archived transfers.
func (s *TransferStore) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transfers WHERE status <> 'pending' AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete finished transfers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectTransfers(rows pgx.Rows) ([]domain.TransferRequest, error) {
	var out []domain.TransferRequest
	for rows.Next() {
		var (
			t        domain.TransferRequest
			marketID int64
			amount   int64
			status   string
		)
		err := rows.Scan(&t.ID, &marketID, &t.To, &amount, &t.Memo,
			&status, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transfer: %w", err)
		}
		t.MarketID = uint64(marketID)
		t.Amount = uint64(amount)
		t.Status = domain.TransferStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate transfers: %w", err)
	}
	return out, nil
}
