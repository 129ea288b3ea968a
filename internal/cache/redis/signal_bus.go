package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/outcomefi/marketd/internal/domain"
)

// channelPrefix namespaces bus channels so several deployments can share one
// Redis instance.
const channelPrefix = "marketd:"

// SignalBus fans events out over Redis pub/sub. Payloads are JSON-encoded at
// publish time; subscribers receive the raw bytes.
type SignalBus struct {
	rdb *redis.Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish marshals the payload and publishes it on the namespaced channel.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal payload for %s: %w", channel, err)
	}
	if err := b.rdb.Publish(ctx, channelPrefix+channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on the given channels until the returned close function
// is called or the context is canceled. The message channel closes when the
// subscription ends.
func (b *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func() error, error) {
	prefixed := make([]string, len(channels))
	for i, ch := range channels {
		prefixed[i] = channelPrefix + ch
	}

	sub := b.rdb.Subscribe(ctx, prefixed...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			m := domain.BusMessage{
				Channel: msg.Channel[len(channelPrefix):],
				Payload: []byte(msg.Payload),
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close, nil
}
