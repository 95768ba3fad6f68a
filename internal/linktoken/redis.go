package linktoken

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (int64, bool, error) {
	return intResult(b.rdb.Get(ctx, key))
}

// GetDel maps to the GETDEL command, so two concurrent redemptions of one
// token see exactly one value.
func (b *RedisBackend) GetDel(ctx context.Context, key string) (int64, bool, error) {
	return intResult(b.rdb.GetDel(ctx, key))
}

func (b *RedisBackend) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return b.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func intResult(cmd *redis.StringCmd) (int64, bool, error) {
	v, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
