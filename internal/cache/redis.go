package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dealerhub-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// releaseIfOwnerScript deletes the lease only if it still carries our token,
// so an expired-and-reacquired lease held by another instance survives.
var releaseIfOwnerScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisGuard is a Guard backed by Redis leases (SET NX PX).
// Every instance sharing the Redis sees the same in-flight keys.
type RedisGuard struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration

	mu     sync.Mutex
	tokens map[string]string // keys held by this process -> latest lease token
}

// RedisGuardConfig holds configuration for the Redis guard.
type RedisGuardConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	LeaseTTL  time.Duration
}

// NewRedisGuard connects to Redis and returns a lease-based guard.
func NewRedisGuard(cfg RedisGuardConfig) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	g := NewRedisGuardWithClient(client, cfg.KeyPrefix, cfg.LeaseTTL)
	log.Printf("[RedisGuard] Started - DB:%d, prefix:%s, ttl:%v", cfg.DB, g.keyPrefix, g.ttl)
	return g, nil
}

// NewRedisGuardWithClient wraps an existing client.
func NewRedisGuardWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisGuard {
	if keyPrefix == "" {
		keyPrefix = "dealerhub:sync"
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisGuard{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		tokens:    make(map[string]string),
	}
}

func (g *RedisGuard) leaseKey(key string) string {
	return g.keyPrefix + ":lease:" + key
}

// TryAcquire takes the lease for key if no instance holds it.
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (string, bool, error) {
	token := uid.New()
	ok, err := g.client.SetNX(ctx, g.leaseKey(key), token, g.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return token, true, nil
}

// Release drops the lease for key if token still owns it.
func (g *RedisGuard) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}

	g.mu.Lock()
	if g.tokens[key] == token {
		delete(g.tokens, key)
	}
	g.mu.Unlock()

	if err := releaseIfOwnerScript.Run(ctx, g.client, []string{g.leaseKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// InFlight returns the number of leases held by this process.
func (g *RedisGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens)
}

// Ping checks the Redis connection.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// Ensure RedisGuard implements Guard
var _ Guard = (*RedisGuard)(nil)
