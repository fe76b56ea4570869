package cache

import (
	"context"
	"sync"
	"time"

	"dealerhub-api/pkg/uid"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryGuard is an in-process implementation of Guard.
// Leases expire after ttl so a lost Release cannot pin a key forever.
type MemoryGuard struct {
	mu     sync.Mutex
	leases map[string]lease
	ttl    time.Duration
	now    func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryGuard creates an in-process guard with automatic cleanup of expired leases.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	g := &MemoryGuard{
		leases:          make(map[string]lease),
		ttl:             ttl,
		now:             time.Now,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go g.cleanup()

	return g
}

// TryAcquire marks key as in flight.
func (g *MemoryGuard) TryAcquire(ctx context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if l, held := g.leases[key]; held && now.Before(l.expiresAt) {
		return "", false, nil
	}
	token := uid.New()
	g.leases[key] = lease{token: token, expiresAt: now.Add(g.ttl)}
	return token, true, nil
}

// Release clears key if token still owns it.
func (g *MemoryGuard) Release(ctx context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, held := g.leases[key]; held && l.token == token {
		delete(g.leases, key)
	}
	return nil
}

// InFlight returns the number of unexpired leases.
func (g *MemoryGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	n := 0
	for _, l := range g.leases {
		if now.Before(l.expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the background cleanup goroutine.
func (g *MemoryGuard) Close() error {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
	return nil
}

// cleanup periodically removes expired leases.
func (g *MemoryGuard) cleanup() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.removeExpired()
		case <-g.stopCleanup:
			return
		}
	}
}

func (g *MemoryGuard) removeExpired() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, l := range g.leases {
		if !now.Before(l.expiresAt) {
			delete(g.leases, key)
		}
	}
}

// Ensure MemoryGuard implements Guard
var _ Guard = (*MemoryGuard)(nil)
