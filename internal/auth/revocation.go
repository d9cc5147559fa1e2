package auth

import (
	"context"
	"time"

	"jindalchat/internal/redis"
)

const redisRevokedPrefix = "auth:revoked:"

// RedisRevocations keeps revoked token ids in redis until they would expire.
type RedisRevocations struct {
	client *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return r.client.Set(ctx, redisRevokedPrefix+tokenID, "1", ttl)
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.client.Exists(ctx, redisRevokedPrefix+tokenID)
}
