package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

const ledgerPrefix = "webhook:seen:"

// MemoryLedger is a process-local port.EventLedger. Used when no Redis is configured.
type MemoryLedger struct {
	seen *InMemory[struct{}]
}

var _ port.EventLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an in-memory ledger whose sweep runs every ttl.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{seen: New[struct{}](ttl)}
}

// Seen reports whether key was remembered and has not expired.
func (l *MemoryLedger) Seen(_ context.Context, key string) (bool, error) {
	_, ok := l.seen.Get(ledgerPrefix + key)
	return ok, nil
}

// Remember records key for ttl.
func (l *MemoryLedger) Remember(_ context.Context, key string, ttl time.Duration) error {
	l.seen.SetWithTTL(ledgerPrefix+key, struct{}{}, ttl)
	return nil
}

// Close stops the sweep goroutine.
func (l *MemoryLedger) Close() { l.seen.Close() }

// RedisLedger shares processed webhook keys across replicas.
type RedisLedger struct {
	client *redis.Client
}

var _ port.EventLedger = (*RedisLedger)(nil)

// NewRedisLedger wraps a go-redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// Seen reports whether key exists.
func (l *RedisLedger) Seen(ctx context.Context, key string) (bool, error) {
	err := l.client.Get(ctx, ledgerPrefix+key).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// Remember records key for ttl. An existing key keeps its original expiry.
func (l *RedisLedger) Remember(ctx context.Context, key string, ttl time.Duration) error {
	return l.client.SetNX(ctx, ledgerPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// Ping checks connectivity.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
