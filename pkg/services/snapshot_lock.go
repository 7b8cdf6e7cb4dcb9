package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SnapshotLocker provides the per-snapshot mutual exclusion for rollback
// execution. TryLock is non-blocking: a held lock is reported immediately so
// operators get fast feedback instead of silent queuing.
type SnapshotLocker interface {
	// TryLock attempts to acquire the lock for a snapshot. Returns false
	// without blocking when the lock is already held.
	TryLock(ctx context.Context, snapshotID uuid.UUID) (bool, error)
	// Unlock releases a previously acquired lock.
	Unlock(ctx context.Context, snapshotID uuid.UUID) error
}

// redisSnapshotLocker backs the lock with Redis SET NX PX so mutual
// exclusion holds across control-plane instances. The TTL guards against a
// crashed holder wedging the snapshot forever; it must exceed the longest
// expected rollback.
type redisSnapshotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotLocker(client *redis.Client, ttl time.Duration) SnapshotLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisSnapshotLocker{client: client, ttl: ttl}
}

var _ SnapshotLocker = (*redisSnapshotLocker)(nil)

func lockKey(snapshotID uuid.UUID) string {
	return "cutover:rollback-lock:" + snapshotID.String()
}

func (l *redisSnapshotLocker) TryLock(ctx context.Context, snapshotID uuid.UUID) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(snapshotID), "locked", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rollback lock: %w", err)
	}
	return ok, nil
}

func (l *redisSnapshotLocker) Unlock(ctx context.Context, snapshotID uuid.UUID) error {
	if err := l.client.Del(ctx, lockKey(snapshotID)).Err(); err != nil {
		return fmt.Errorf("failed to release rollback lock: %w", err)
	}
	return nil
}

// localSnapshotLocker is the in-process fallback used when Redis is not
// configured. Only correct for single-instance deployments; also used by
// tests.
type localSnapshotLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func NewLocalSnapshotLocker() SnapshotLocker {
	return &localSnapshotLocker{held: make(map[uuid.UUID]bool)}
}

var _ SnapshotLocker = (*localSnapshotLocker)(nil)

func (l *localSnapshotLocker) TryLock(_ context.Context, snapshotID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[snapshotID] {
		return false, nil
	}
	l.held[snapshotID] = true
	return true, nil
}

func (l *localSnapshotLocker) Unlock(_ context.Context, snapshotID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, snapshotID)
	return nil
}
