package quote

import (
    "context"
    "errors"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld means another quote collection is already running for
// the order. The caller gets a conflict, never a queue.
var ErrLockHeld = errors.New("quote collection already in progress for this order")

// Locker serializes quote collection per order.
type Locker interface {
    // Acquire takes the lock or returns ErrLockHeld. The returned
    // function releases it.
    Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MemoryLocker is the single-process locker used in dev and tests.
type MemoryLocker struct {
    mu   sync.Mutex
    held map[string]time.Time
    now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
    return &MemoryLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
    l.mu.Lock(); defer l.mu.Unlock()
    now := l.now()
    if until, ok := l.held[key]; ok && until.After(now) {
        return nil, ErrLockHeld
    }
    l.held[key] = now.Add(ttl)
    return func() {
        l.mu.Lock(); defer l.mu.Unlock()
        delete(l.held, key)
    }, nil
}

// RedisLocker serializes across processes with SET NX + TTL. The TTL
// bounds how long a crashed collector can wedge an order.
type RedisLocker struct {
    rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
    name := "shipflow:quote-lock:" + key
    ok, err := l.rdb.SetNX(ctx, name, "1", ttl).Result()
    if err != nil { return nil, err }
    if !ok { return nil, ErrLockHeld }
    return func() {
        rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = l.rdb.Del(rctx, name).Err()
    }, nil
}
