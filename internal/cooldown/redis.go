package cooldown

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the gate with redis SET NX EX / DEL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SetNX sets key only if absent, with ttl as expiry, in one round trip.
func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Del removes key.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
