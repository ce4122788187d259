package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	requestKeyPrefix = "otp:req:"
	attemptKeyPrefix = "otp:att:"
)

// incrIfExists increments the attempt counter only when one has been
// initialized; before a code is requested there is nothing to count.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCR", KEYS[1])
end
return -1
`)

// RedisStore is the shared ChallengeStore for multi-instance deployments.
// Request windows are sorted sets of timestamps; attempt counters are
// plain keys whose TTL tracks the code expiry, so expired counters vanish
// without lazy deletion.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed challenge store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) EnforceRequestLimit(ctx context.Context, key string) error {
	redisKey := requestKeyPrefix + key
	now := time.Now()
	cutoff := now.Add(-RequestWindow)

	if err := s.client.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano())).Err(); err != nil {
		return fmt.Errorf("failed to prune request window: %w", err)
	}

	count, err := s.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read request window: %w", err)
	}
	if count >= MaxRequests {
		return ErrRateLimited
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	pipe.Expire(ctx, redisKey, RequestWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}

	return nil
}

func (s *RedisStore) ResetAttempts(ctx context.Context, key string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Clear(ctx, key)
	}

	if err := s.client.Set(ctx, attemptKeyPrefix+key, 0, ttl).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

func (s *RedisStore) RegisterFailure(ctx context.Context, key string) error {
	if err := incrIfExists.Run(ctx, s.client, []string{attemptKeyPrefix + key}).Err(); err != nil {
		return fmt.Errorf("failed to register failure: %w", err)
	}
	return nil
}

func (s *RedisStore) HasExceededAttempts(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Get(ctx, attemptKeyPrefix+key).Int()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to read attempts: %w", err)
	}
	return count >= MaxAttempts, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, attemptKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	return nil
}
