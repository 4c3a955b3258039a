package events

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ChannelPrefix namespaces the Redis channels events are published on. The
// full channel name is the prefix plus the event type, so consumers can
// PSUBSCRIBE to a pattern or SUBSCRIBE to one type.
const ChannelPrefix = "gatehouse:events:"

// RedisPublisher publishes events to Redis pub/sub as JSON.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Redis-backed publisher. The client is shared
// and stays open after Close.
func NewRedisPublisher(client *redis.Client) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisPublisher{client: client}, nil
}

// Channel returns the Redis channel an event type is published on.
func Channel(eventType string) string {
	return ChannelPrefix + eventType
}

// Publish serializes the event and publishes it on its type channel.
func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(event.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *RedisPublisher) Close() error {
	return nil
}
