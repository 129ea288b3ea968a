package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/marketd/internal/domain"
)

type memTransferStore struct {
	mu        sync.Mutex
	transfers map[string]domain.TransferRequest
	order     []string
}

func newMemTransferStore() *memTransferStore {
	return &memTransferStore{transfers: make(map[string]domain.TransferRequest)}
}

func (s *memTransferStore) Insert(_ context.Context, t domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[t.ID] = t
	s.order = append(s.order, t.ID)
	return nil
}

func (s *memTransferStore) UpdateStatus(_ context.Context, id string, status domain.TransferStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	t.LastError = lastError
	s.transfers[id] = t
	return nil
}

func (s *memTransferStore) ListPending(_ context.Context, limit int) ([]domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferRequest
	for _, id := range s.order {
		if t := s.transfers[id]; t.Status == domain.TransferPending {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memTransferStore) ListFinishedBefore(context.Context, time.Time) ([]domain.TransferRequest, error) {
	return nil, nil
}

func (s *memTransferStore) DeleteFinishedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *memTransferStore) get(id string) domain.TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[id]
}

type failingPayer struct {
	failFor map[string]bool
}

func (p *failingPayer) Pay(_ context.Context, t domain.TransferRequest) error {
	if p.failFor[t.ID] {
		return errors.New("payment rejected")
	}
	return nil
}

func (p *failingPayer) Name() string { return "failing" }

func request(id string, amount uint64) domain.TransferRequest {
	return domain.TransferRequest{
		ID:       id,
		MarketID: 1,
		To:       "alice.local",
		Amount:   amount,
		Memo:     "sale proceeds",
		Status:   domain.TransferPending,
	}
}

func TestOutboxDispatchMarksSent(t *testing.T) {
	store := newMemTransferStore()
	payer := NewLocalPayer(slog.Default())
	outbox := NewOutbox(store, payer, nil, slog.Default(), time.Second, 100)

	ctx := context.Background()
	require.NoError(t, outbox.Enqueue(ctx, request("t1", 100)))
	require.NoError(t, outbox.Enqueue(ctx, request("t2", 250)))

	outbox.DispatchPending(ctx)

	assert.Equal(t, domain.TransferSent, store.get("t1").Status)
	assert.Equal(t, domain.TransferSent, store.get("t2").Status)
	require.Len(t, payer.Paid(), 2)
	assert.Equal(t, uint64(100), payer.Paid()[0].Amount)
}

func TestOutboxRecordsFailureWithoutRetry(t *testing.T) {
	store := newMemTransferStore()
	payer := &failingPayer{failFor: map[string]bool{"bad": true}}
	outbox := NewOutbox(store, payer, nil, slog.Default(), time.Second, 100)

	ctx := context.Background()
	require.NoError(t, outbox.Enqueue(ctx, request("bad", 100)))
	require.NoError(t, outbox.Enqueue(ctx, request("good", 50)))

	outbox.DispatchPending(ctx)

	bad := store.get("bad")
	assert.Equal(t, domain.TransferFailed, bad.Status)
	assert.Equal(t, "payment rejected", bad.LastError)
	assert.Equal(t, domain.TransferSent, store.get("good").Status)

	// Failed transfers stay failed; a second pass does not pick them up.
	outbox.DispatchPending(ctx)
	assert.Equal(t, domain.TransferFailed, store.get("bad").Status)
}

func TestOutboxRunStopsOnCancel(t *testing.T) {
	store := newMemTransferStore()
	outbox := NewOutbox(store, NewLocalPayer(slog.Default()), nil, slog.Default(), 10*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- outbox.Run(ctx) }()

	require.NoError(t, outbox.Enqueue(ctx, request("t1", 1)))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, domain.TransferSent, store.get("t1").Status)
}
