package infra

import (
	"context"
	"time"

	"retailcore/internal/tenant"

	"github.com/redis/go-redis/v9"
)

// OrderChannel is the per-tenant pub/sub channel for order events. SSE
// subscribers only ever subscribe to their own tenant's channel.
func OrderChannel(tenantID string) string {
	return "orders:tenant:" + tenantID
}

// NewRedis creates and validates a go-redis client connection.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// OrderFeed subscribes to per-tenant order channels.
type OrderFeed struct {
	rdb *redis.Client
}

func NewOrderFeed(rdb *redis.Client) *OrderFeed {
	return &OrderFeed{rdb: rdb}
}

// Subscribe returns the payloads published on tenantID's channel until ctx is
// done or the returned close func is called. The subscription is confirmed
// before returning so no message published afterwards is missed.
func (f *OrderFeed) Subscribe(ctx context.Context, tenantID string) (<-chan []byte, func(), error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, nil, err
	}
	ps := f.rdb.Subscribe(ctx, OrderChannel(tenantID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}
