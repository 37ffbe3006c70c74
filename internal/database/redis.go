package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gochat:"

func redisKey(key string) string {
	return redisKeyPrefix + key
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return val, nil
}

func (rs *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return rs.rdb.Set(ctx, redisKey(key), value, 0).Err()
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.rdb.Del(ctx, redisKey(key)).Err()
}

func (rs *RedisStore) Close() error {
	return rs.rdb.Close()
}
