package service

import (
	"fmt"
	"sort"

	"github.com/outcomefi/marketd/internal/domain"
)

// Arena is the append-only in-memory collection of markets, indexed by
// sequential id. Markets are never deleted so finalized ones stay reachable
// for redemption. The arena itself is not synchronized; the Exchange runs
// every operation under its single-writer lock.
type Arena struct {
	markets []*domain.Market
}

func NewArena() *Arena {
	return &Arena{}
}

// NextID is the id the next appended market will get.
func (a *Arena) NextID() uint64 {
	return uint64(len(a.markets))
}

// Append adds a market. The market's ID must equal NextID.
func (a *Arena) Append(m *domain.Market) error {
	if m.ID != a.NextID() {
		return fmt.Errorf("service: arena append id %d, expected %d", m.ID, a.NextID())
	}
	a.markets = append(a.markets, m)
	return nil
}

// Get returns the market with the given id.
func (a *Arena) Get(id uint64) (*domain.Market, error) {
	if id >= uint64(len(a.markets)) {
		return nil, fmt.Errorf("service: market %d: %w", id, domain.ErrNotFound)
	}
	return a.markets[id], nil
}

// Len returns the number of markets.
func (a *Arena) Len() int {
	return len(a.markets)
}

// All returns the markets in id order.
func (a *Arena) All() []*domain.Market {
	return a.markets
}

// Restore seeds the arena from persisted snapshots. Ids are assigned
// sequentially at creation, so the sorted snapshots must form a contiguous
// run from zero.
func (a *Arena) Restore(markets []*domain.Market) error {
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	for _, m := range markets {
		if err := a.Append(m); err != nil {
			return err
		}
	}
	return nil
}
