package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocalbridge/gateway/internal/shared/redis"
)

// processingSentinel marks a claimed-but-unfinished key. Cached responses are
// JSON payloads, so the NUL prefix can never collide with a real response.
const processingSentinel = "\x00processing"

// claimTTL bounds how long a processing slot can be held without a result.
// A crashed winner frees the key for the next duplicate after this window.
const claimTTL = 60 * time.Second

// awaitInterval is the poll interval for claim losers.
const awaitInterval = 50 * time.Millisecond

// RedisStore is the production idempotency store. One redis key per
// (tenant, idempotency key) pair; expiry is enforced by redis TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed idempotency store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(tenantID, key string) string {
	return fmt.Sprintf("idem:%s:%s", tenantID, key)
}

// Lookup returns the cached response, treating processing claims as absent.
func (s *RedisStore) Lookup(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, redisKey(tenantID, key))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if val == processingSentinel {
		return nil, false, nil
	}
	return []byte(val), true, nil
}

// Claim takes the processing slot with SETNX; first writer wins.
func (s *RedisStore) Claim(ctx context.Context, tenantID, key string) (bool, error) {
	won, err := s.client.SetNX(ctx, redisKey(tenantID, key), processingSentinel, claimTTL)
	if err != nil {
		return false, fmt.Errorf("idempotency claim failed: %w", err)
	}
	return won, nil
}

// Await polls until the winner's response lands or the claim lapses.
func (s *RedisStore) Await(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	ticker := time.NewTicker(awaitInterval)
	defer ticker.Stop()

	for {
		val, err := s.client.Get(ctx, redisKey(tenantID, key))
		if errors.Is(err, redis.ErrNotFound) {
			// Claim lapsed or was released; the caller proceeds itself.
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("idempotency await failed: %w", err)
		}
		if val != processingSentinel {
			return []byte(val), true, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Store caches the response, overwriting the processing sentinel.
func (s *RedisStore) Store(ctx context.Context, tenantID, key string, response []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKey(tenantID, key), string(response), ttl); err != nil {
		return fmt.Errorf("idempotency store failed: %w", err)
	}
	return nil
}

// Release drops an unfinished claim so a later duplicate can proceed.
func (s *RedisStore) Release(ctx context.Context, tenantID, key string) error {
	if err := s.client.Del(ctx, redisKey(tenantID, key)); err != nil {
		return fmt.Errorf("idempotency release failed: %w", err)
	}
	return nil
}
