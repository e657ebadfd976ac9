package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanLockTTL caps how long a crashed scanner can hold a tenant lock.
const scanLockTTL = 15 * time.Minute

// ScanLocker provides the per-tenant single-flight guarantee for scans: a
// scan in progress for a tenant makes a concurrent trigger a no-op.
type ScanLocker interface {
	// TryLock returns true and a release func when the tenant lock was
	// acquired, false when another scan holds it.
	TryLock(ctx context.Context, tenantID uint64) (bool, func(), error)
}

// MemoryLocker is an in-process ScanLocker for single-instance deployments.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[uint64]bool
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[uint64]bool)}
}

// TryLock acquires the tenant lock when free.
func (l *MemoryLocker) TryLock(_ context.Context, tenantID uint64) (bool, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[tenantID] {
		return false, nil, nil
	}
	l.held[tenantID] = true
	release := func() {
		l.mu.Lock()
		delete(l.held, tenantID)
		l.mu.Unlock()
	}
	return true, release, nil
}

// RedisLocker is a ScanLocker backed by redis SET NX, for deployments
// running multiple stateless engine instances.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker constructs a redis-backed locker.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// TryLock acquires the tenant lock via SET NX with a TTL.
func (l *RedisLocker) TryLock(ctx context.Context, tenantID uint64) (bool, func(), error) {
	key := fmt.Sprintf("crmauto:scan:%d", tenantID)
	ok, errSet := l.rdb.SetNX(ctx, key, 1, scanLockTTL).Result()
	if errSet != nil {
		return false, nil, errSet
	}
	if !ok {
		return false, nil, nil
	}
	release := func() {
		_ = l.rdb.Del(context.Background(), key).Err()
	}
	return true, release, nil
}
