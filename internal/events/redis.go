package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher appends capture events to a Redis stream, trimmed to roughly
// maxLen entries.
type RedisPublisher struct {
	client streamClient
	stream string
	maxLen int64
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, stream string, maxLen int64) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish XADDs one entry carrying the event fields.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]interface{}{
			"platform":    e.Platform,
			"item_id":     e.ItemID,
			"location":    e.Location,
			"run_id":      e.RunID,
			"captured_at": e.CapturedAt.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
