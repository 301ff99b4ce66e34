// Package notify fans deletion events out to cache tiers.
//
// When the collector physically deletes a chunk, every node caching that
// chunk must drop its copy. The Redis publisher broadcasts the hash on a
// pub/sub channel; cache tiers subscribe and evict. Delivery is best
// effort: a missed event only means a cache holds dead bytes until its
// own eviction policy ages them out.
package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/chunk"
)

// DefaultChannel is the pub/sub channel carrying evicted chunk hashes.
const DefaultChannel = "chunkvault:evict"

// RedisPublisher broadcasts deleted chunk hashes over Redis pub/sub.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisPublisher creates a publisher on an existing Redis client.
// An empty channel selects DefaultChannel.
func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Evict publishes the hash of a deleted chunk.
func (p *RedisPublisher) Evict(ctx context.Context, hash chunk.Hash) error {
	if err := p.rdb.Publish(ctx, p.channel, string(hash)).Err(); err != nil {
		return fmt.Errorf("publish eviction: %w", err)
	}
	return nil
}

// Subscribe delivers evicted hashes to fn until the context is cancelled.
// Malformed messages are logged and dropped.
func Subscribe(ctx context.Context, rdb redis.UniversalClient, channel string, fn func(chunk.Hash)) error {
	if channel == "" {
		channel = DefaultChannel
	}

	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			hash := chunk.Hash(msg.Payload)
			if !hash.Valid() {
				logger.WarnCtx(ctx, "dropping malformed eviction event",
					"payload", msg.Payload)
				continue
			}
			fn(hash)
		}
	}
}
