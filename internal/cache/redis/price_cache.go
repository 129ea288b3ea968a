package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomefi/marketd/internal/domain"
)

// priceTTL bounds staleness if the engine stops refreshing: readers fall
// back to the arena once the key expires.
const priceTTL = 5 * time.Minute

// PriceCache stores each market's price vector as a hash at
// "market:{id}:prices" with fields "prices" (JSON array) and "ts" (Unix
// nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID uint64) string {
	return fmt.Sprintf("market:%d:prices", marketID)
}

// SetPrices stores the market's current price vector.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID uint64, prices []float64, at time.Time) error {
	encoded, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("redis: marshal prices for market %d: %w", marketID, err)
	}

	key := priceKey(marketID)
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"prices": string(encoded),
		"ts":     strconv.FormatInt(at.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices for market %d: %w", marketID, err)
	}
	return nil
}

// GetPrices retrieves the cached vector and its timestamp. Returns
// domain.ErrNotFound when the market has no cached prices.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID uint64) ([]float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices for market %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, fmt.Errorf("redis: market %d prices: %w", marketID, domain.ErrNotFound)
	}

	encoded, ok := vals["prices"]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: market %d prices: %w", marketID, domain.ErrNotFound)
	}
	var prices []float64
	if err := json.Unmarshal([]byte(encoded), &prices); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse prices for market %d: %w", marketID, err)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts for market %d: %w", marketID, err)
	}
	return prices, time.Unix(0, tsNano), nil
}
