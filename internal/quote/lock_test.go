package quote

import (
    "context"
    "errors"
    "testing"
    "time"
)

func TestMemoryLockerConflictAndRelease(t *testing.T) {
    l := NewMemoryLocker()
    ctx := context.Background()

    release, err := l.Acquire(ctx, "t1|o1", time.Minute)
    if err != nil { t.Fatalf("acquire: %v", err) }
    if _, err := l.Acquire(ctx, "t1|o1", time.Minute); !errors.Is(err, ErrLockHeld) {
        t.Fatalf("want ErrLockHeld, got %v", err)
    }
    // A different order is unaffected.
    r2, err := l.Acquire(ctx, "t1|o2", time.Minute)
    if err != nil { t.Fatalf("other key: %v", err) }
    r2()

    release()
    if _, err := l.Acquire(ctx, "t1|o1", time.Minute); err != nil {
        t.Fatalf("reacquire after release: %v", err)
    }
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
    l := NewMemoryLocker()
    base := time.Now()
    l.now = func() time.Time { return base }

    if _, err := l.Acquire(context.Background(), "t1|o1", time.Minute); err != nil {
        t.Fatalf("acquire: %v", err)
    }
    // Holder crashed; the TTL frees the order eventually.
    l.now = func() time.Time { return base.Add(2 * time.Minute) }
    if _, err := l.Acquire(context.Background(), "t1|o1", time.Minute); err != nil {
        t.Fatalf("acquire after ttl: %v", err)
    }
}
