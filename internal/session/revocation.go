package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker keeps a denylist of token ids.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevoker stores revoked ids as expiring Redis keys.
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevoker constructs a RedisRevoker.
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, now: time.Now}
}

func (r *RedisRevoker) key(tokenID string) string {
	return "session:revoked:" + tokenID
}

// Revoke records the id until the token would have expired anyway.
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.key(tokenID), "1", ttl).Err()
}

// IsRevoked reports whether the id is denylisted.
func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, r.key(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
