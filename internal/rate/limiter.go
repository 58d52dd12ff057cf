package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// Prefix namespaces counters the same way the session store does.
	// Counters live at "<prefix>:c:<ip>".
	Prefix                string
	Enabled               bool
	MaxCreationsPerWindow int
	CreationWindow        time.Duration
}

// Limiter enforces a per-IP budget for new sessions using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowCreation records one session creation for ip and returns
// ErrRateLimited once the window budget is exceeded. An empty ip is not
// throttled.
func (l *Limiter) AllowCreation(ctx context.Context, ip string) error {
	if l == nil || !l.config.Enabled || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.creationKey(ip), l.config.CreationWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxCreationsPerWindow) {
		return ErrRateLimited
	}

	return nil
}

// Creations returns the current window counter for ip.
func (l *Limiter) Creations(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, l.creationKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the creation counter for ip.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if err := l.redis.Del(ctx, l.creationKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) creationKey(ip string) string {
	prefix := l.config.Prefix
	if prefix == "" {
		prefix = "sg"
	}
	return prefix + ":c:" + ip
}
