package alerthub

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the Redis channel alerts are relayed on.
const DefaultRelayChannel = "restock:alerts"

// RedisRelay publishes alerts to a Redis channel and feeds everything received on it
// back into the local hub.
type RedisRelay struct {
	Redis   *redis.Client
	Channel string
	logger  *slog.Logger
}

// NewRedisRelay creates a relay on channel, or DefaultRelayChannel when empty.
func NewRedisRelay(rdb *redis.Client, channel string, log *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{Redis: rdb, Channel: channel, logger: log}
}

// Publish sends an encoded event to every instance.
func (r *RedisRelay) Publish(ctx context.Context, data []byte) error {
	return r.Redis.Publish(ctx, r.Channel, data).Err()
}

// Listen forwards relayed events to hub until ctx is cancelled.
func (r *RedisRelay) Listen(ctx context.Context, hub *Hub) {
	pubsub := r.Redis.Subscribe(ctx, r.Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("alert relay subscription closed")
				return
			}
			hub.Broadcast([]byte(msg.Payload))
		}
	}
}
