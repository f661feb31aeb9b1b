package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "yieldvision:storage:"

// RedisStorageRepo はRedisを使用したストレージリポジトリ。
// クライアントごとに1つのハッシュを持ち、ストレージキーをフィールドとして保存する。
type RedisStorageRepo struct {
	rdb redis.UniversalClient
}

// NewRedisStorageRepo はRedisStorageRepoを生成する。
func NewRedisStorageRepo(rdb redis.UniversalClient) *RedisStorageRepo {
	return &RedisStorageRepo{rdb: rdb}
}

// OpenRedis はURLからRedisクライアントを生成する。
// 例: "redis://localhost:6379/0"
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func redisHashKey(clientID string) string {
	return redisKeyPrefix + clientID
}

// Get は指定キーの値を取得する。存在しない場合はnil, nilを返す。
func (r *RedisStorageRepo) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	v, err := r.rdb.HGet(ctx, redisHashKey(clientID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage item: %w", err)
	}
	return v, nil
}

// Set は指定キーに値を保存する。
func (r *RedisStorageRepo) Set(ctx context.Context, clientID, key string, value []byte) error {
	if err := r.rdb.HSet(ctx, redisHashKey(clientID), key, value).Err(); err != nil {
		return fmt.Errorf("failed to set storage item: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。最後のフィールドが消えるとRedis側でハッシュも消える。
func (r *RedisStorageRepo) Delete(ctx context.Context, clientID, key string) error {
	if err := r.rdb.HDel(ctx, redisHashKey(clientID), key).Err(); err != nil {
		return fmt.Errorf("failed to delete storage item: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*RedisStorageRepo)(nil)
