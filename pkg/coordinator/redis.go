package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chunkvault/chunkvault/internal/logger"
)

const (
	// DefaultLockKey is the Redis key holding the collection lease.
	DefaultLockKey = "chunkvault:gc:leader"

	// DefaultLease is how long the lease lives without renewal. It must
	// comfortably exceed one renewal interval so a briefly stalled holder
	// does not lose the lease mid-run.
	DefaultLease = 30 * time.Second
)

// releaseScript deletes the lease only if this node still owns it.
// KEYS[1]: the lock key
// ARGV[1]: the holder identity
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// renewScript extends the lease only if this node still owns it.
// KEYS[1]: the lock key
// ARGV[1]: the holder identity
// ARGV[2]: the new expiry in milliseconds
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`

// RedisConfig configures the Redis-backed coordinator.
type RedisConfig struct {
	// Key is the lock key. Defaults to DefaultLockKey.
	Key string

	// Identity names this node in the lease value. Defaults to
	// "<hostname>/<uuid>" so restarts never inherit a stale lease.
	Identity string

	// Lease is the lock TTL. Defaults to DefaultLease.
	Lease time.Duration
}

// RedisCoordinator is a leased distributed lock on Redis. A background
// goroutine renews the lease at a third of the TTL while it is held.
type RedisCoordinator struct {
	rdb      redis.UniversalClient
	key      string
	identity string
	lease    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc // stops the renewal goroutine
	done   chan struct{}
}

var _ Coordinator = (*RedisCoordinator)(nil)

// NewRedis creates a coordinator on an existing Redis client.
func NewRedis(rdb redis.UniversalClient, config RedisConfig) *RedisCoordinator {
	if config.Key == "" {
		config.Key = DefaultLockKey
	}
	if config.Lease <= 0 {
		config.Lease = DefaultLease
	}
	if config.Identity == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		config.Identity = fmt.Sprintf("%s/%s", host, uuid.NewString())
	}

	return &RedisCoordinator{
		rdb:      rdb,
		key:      config.Key,
		identity: config.Identity,
		lease:    config.Lease,
	}
}

// Identity returns this node's lease value.
func (c *RedisCoordinator) Identity() string {
	return c.identity
}

// Acquire attempts SET NX with the lease TTL and starts renewal on success.
func (c *RedisCoordinator) Acquire(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		// Already held by this instance.
		return true, nil
	}

	acquired, err := c.rdb.SetNX(ctx, c.key, c.identity, c.lease).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		return false, nil
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.renew(renewCtx, c.done)

	logger.DebugCtx(ctx, "collection lease acquired",
		"key", c.key, "holder", c.identity)
	return true, nil
}

// Release stops renewal and deletes the lease if this node still owns it.
func (c *RedisCoordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	<-done

	if err := c.rdb.Eval(ctx, releaseScript, []string{c.key}, c.identity).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}

	logger.DebugCtx(ctx, "collection lease released",
		"key", c.key, "holder", c.identity)
	return nil
}

// Holder returns the current lease value, or "" when the lease is free.
func (c *RedisCoordinator) Holder(ctx context.Context) (string, error) {
	holder, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lease: %w", err)
	}
	return holder, nil
}

// renew extends the lease until the context is cancelled. If a renewal is
// rejected the lease was lost (TTL lapsed or another node took over) and
// renewal stops so the in-flight run can observe the loss via Holder.
func (c *RedisCoordinator) renew(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := c.lease / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := c.rdb.Eval(ctx, renewScript,
				[]string{c.key}, c.identity, c.lease.Milliseconds()).Int64()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.WarnCtx(ctx, "lease renewal failed",
					"key", c.key, logger.Err(err))
				return
			}
			if res == 0 {
				logger.WarnCtx(ctx, "collection lease lost",
					"key", c.key, "holder", c.identity)
				return
			}
		}
	}
}
