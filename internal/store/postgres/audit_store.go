package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/marketd/internal/domain"
)

// AuditStore records state-changing operations.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

func NewAuditStore(client *Client) *AuditStore {
	return &AuditStore{pool: client.Pool()}
}

func (s *AuditStore) Insert(ctx context.Context, e domain.AuditEntry) error {
	var detail []byte
	if e.Detail != nil {
		var err error
		detail, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal audit detail: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (market_id, event, actor, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		int64(e.MarketID), e.Event, e.Actor, detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert audit entry: %w", err)
	}
	return nil
}

// ListByMarket returns a market's audit trail, newest first.
func (s *AuditStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, event, actor, detail, created_at FROM audit_log
		 WHERE market_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		int64(marketID), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e      domain.AuditEntry
			mid    int64
			detail []byte
		)
		if err := rows.Scan(&e.ID, &mid, &e.Event, &e.Actor, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		e.MarketID = uint64(mid)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate audit entries: %w", err)
	}
	return out, nil
}
