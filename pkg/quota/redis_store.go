package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store backend, shared across service
// replicas. Each tenant+month counter is a single Redis key holding the
// running total, with a TTL set on first increment so stale counters expire
// on their own rather than needing a sweep job.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("quota redis store: parse url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func counterKey(tenantID, yearMonth string) string {
	return fmt.Sprintf("convoy:quota:%s:%s", tenantID, yearMonth)
}

func (s *RedisStore) Get(ctx context.Context, tenantID, yearMonth string) (int64, time.Time, error) {
	key := counterKey(tenantID, yearMonth)
	used, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, time.Now().Add(counterTTL), nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quota redis store: get: %w", err)
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quota redis store: ttl: %w", err)
	}
	return used, time.Now().Add(ttl), nil
}

// Increment uses INCRBY, then sets an expiry only if the key had none
// (first increment of the month), so concurrent increments within the
// month never reset the TTL clock.
func (s *RedisStore) Increment(ctx context.Context, tenantID, yearMonth string, delta int64) (int64, error) {
	key := counterKey(tenantID, yearMonth)
	total, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("quota redis store: incrby: %w", err)
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err == nil && ttl < 0 {
		_ = s.client.Expire(ctx, key, counterTTL).Err()
	}
	return total, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
