package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or command failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session is missing or expired.
var ErrSessionNotFound = errors.New("session not found")

const minSlidingTTL = time.Second

// Store is a Redis-backed session store that handles persistence,
// expiration, and sliding-window renewal.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	sliding       bool
	idleTTL       time.Duration
	jitterEnabled bool
	jitterRange   time.Duration
	maxSize       int
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace. When sliding is true every Get
// pushes the TTL out to idleTTL (never past the absolute expiry); a zero
// idleTTL slides to the absolute expiry. jitterEnabled and jitterRange
// spread renewals.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	sliding bool,
	idleTTL time.Duration,
	jitterEnabled bool,
	jitterRange time.Duration,
) *Store {
	return &Store{
		redis:         redis,
		prefix:        prefix,
		sliding:       sliding,
		idleTTL:       idleTTL,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
	}
}

// WithMaxSize caps the encoded size of saved sessions. Zero keeps
// [DefaultMaxEncodedSize]; the codec never exceeds it, so larger values
// have no effect.
func (s *Store) WithMaxSize(n int) *Store {
	s.maxSize = n
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save writes sess with a TTL that never outlives sess.ExpiresAt.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id required")
	}

	if sess.ExpiresAt > 0 {
		remaining := time.Until(time.Unix(sess.ExpiresAt, 0))
		if remaining <= 0 {
			return ErrSessionNotFound
		}
		if ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if s.maxSize > 0 && len(data) > s.maxSize {
		return ErrSessionTooLarge
	}

	if err := s.redis.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a session and, when sliding expiration is enabled, extends
// its TTL up to the stored absolute expiry.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)

	sess, err := s.load(ctx, key, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	remaining := time.Unix(sess.ExpiresAt, 0).Sub(now)
	if sess.ExpiresAt > 0 && remaining <= 0 {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	if s.sliding && sess.ExpiresAt > 0 {
		nextTTL, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, key, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// GetReadOnly fetches a session without mutating TTL or any Redis state.
func (s *Store) GetReadOnly(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.load(ctx, s.key(sessionID), sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt > 0 && time.Now().Unix() >= sess.ExpiresAt {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether a session key is present.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Count scans session keys and counts them. Keys nested deeper under
// the prefix ("<prefix>:c:<ip>" throttle counters) are not sessions.
// This is an admin-only O(n) operation and must not be used in request hot paths.
func (s *Store) Count(ctx context.Context) (int, error) {
	base := s.prefix + ":"
	pattern := base + "*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, k := range keys {
			if !strings.Contains(strings.TrimPrefix(k, base), ":") {
				total++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) load(ctx context.Context, key, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID
	return sess, nil
}

func (s *Store) nextSlidingTTL(remainingAbsolute time.Duration) (time.Duration, error) {
	nextTTL := remainingAbsolute
	if s.idleTTL > 0 && s.idleTTL < nextTTL {
		nextTTL = s.idleTTL
	}

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remainingAbsolute {
		nextTTL = remainingAbsolute
	}

	minTTL := minSlidingTTL
	if remainingAbsolute < minTTL {
		minTTL = remainingAbsolute
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
