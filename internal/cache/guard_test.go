package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryGuard_AcquireRelease(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	defer g.Close()
	ctx := context.Background()

	token, ok, _ := g.TryAcquire(ctx, "u1:mobilede")
	if !ok || token == "" {
		t.Fatalf("first TryAcquire() = (%q, %v)", token, ok)
	}
	if _, ok, _ := g.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("second TryAcquire() on held key = true")
	}
	if _, ok, _ := g.TryAcquire(ctx, "u1:autoscout24"); !ok {
		t.Error("TryAcquire() on a different key = false")
	}
	if n := g.InFlight(); n != 2 {
		t.Errorf("InFlight() = %d, want 2", n)
	}

	g.Release(ctx, "u1:mobilede", "not-the-owner")
	if _, ok, _ := g.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("Release() with a foreign token dropped the lease")
	}

	g.Release(ctx, "u1:mobilede", token)
	if _, ok, _ := g.TryAcquire(ctx, "u1:mobilede"); !ok {
		t.Error("TryAcquire() after Release() = false")
	}

	// Releasing an unknown key is a no-op.
	if err := g.Release(ctx, "nobody", token); err != nil {
		t.Errorf("Release(unknown) error: %v", err)
	}
}

func TestMemoryGuard_LeaseExpires(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	defer g.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	g.TryAcquire(ctx, "k")
	now = now.Add(59 * time.Second)
	if _, ok, _ := g.TryAcquire(ctx, "k"); ok {
		t.Error("lease reacquired before ttl")
	}

	now = now.Add(2 * time.Second)
	if n := g.InFlight(); n != 0 {
		t.Errorf("InFlight() after expiry = %d, want 0", n)
	}
	if _, ok, _ := g.TryAcquire(ctx, "k"); !ok {
		t.Error("expired lease was not reacquired")
	}

	now = now.Add(2 * time.Minute)
	g.removeExpired()
	g.mu.Lock()
	left := len(g.leases)
	g.mu.Unlock()
	if left != 0 {
		t.Errorf("removeExpired() left %d leases", left)
	}
}

func TestMemoryGuard_ExpiredHolderKeepsNewLease(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	defer g.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	first, _, _ := g.TryAcquire(ctx, "u1:mobilede")
	now = now.Add(2 * time.Minute)
	second, ok, _ := g.TryAcquire(ctx, "u1:mobilede")
	if !ok {
		t.Fatal("expired lease was not reacquired")
	}

	// The first holder finishes late; its Release must leave the second lease alone.
	if err := g.Release(ctx, "u1:mobilede", first); err != nil {
		t.Fatalf("Release(stale) error: %v", err)
	}
	if _, ok, _ := g.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("stale Release() dropped the newer lease")
	}
	if n := g.InFlight(); n != 1 {
		t.Errorf("InFlight() = %d, want 1", n)
	}

	g.Release(ctx, "u1:mobilede", second)
	if n := g.InFlight(); n != 0 {
		t.Errorf("InFlight() after owner release = %d, want 0", n)
	}
}

func TestMemoryGuard_ConcurrentAcquire(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	defer g.Close()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := g.TryAcquire(context.Background(), "same"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d goroutines acquired the same key, want 1", wins)
	}
}

// Runs only against a real Redis: REDIS_TEST_ADDR=localhost:6379 go test ./internal/cache
func TestRedisGuard_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	prefix := "dealerhub:test:" + time.Now().Format("150405.000000")
	a, err := NewRedisGuard(RedisGuardConfig{Addr: addr, KeyPrefix: prefix, LeaseTTL: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRedisGuard() error: %v", err)
	}
	defer a.Close()
	b, err := NewRedisGuard(RedisGuardConfig{Addr: addr, KeyPrefix: prefix, LeaseTTL: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRedisGuard() error: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	token, ok, err := a.TryAcquire(ctx, "u1:mobilede")
	if err != nil || !ok {
		t.Fatalf("a.TryAcquire() = (%v, %v)", ok, err)
	}
	if _, ok, _ := b.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("second instance acquired a held lease")
	}

	// b does not own the lease, so its Release must not drop a's.
	b.Release(ctx, "u1:mobilede", "not-the-owner")
	if _, ok, _ := b.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("lease dropped by non-owner")
	}

	if err := a.Release(ctx, "u1:mobilede", token); err != nil {
		t.Fatalf("a.Release() error: %v", err)
	}
	held, ok, _ := b.TryAcquire(ctx, "u1:mobilede")
	if !ok {
		t.Error("lease not available after owner released it")
	}
	if a.InFlight() != 0 || b.InFlight() != 1 {
		t.Errorf("InFlight() = %d / %d, want 0 / 1", a.InFlight(), b.InFlight())
	}

	// A repeated Release with a's old token leaves b's lease in place.
	a.Release(ctx, "u1:mobilede", token)
	if _, ok, _ := a.TryAcquire(ctx, "u1:mobilede"); ok {
		t.Error("stale token released the new holder's lease")
	}
	b.Release(ctx, "u1:mobilede", held)
}
