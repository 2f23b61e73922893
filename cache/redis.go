package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status values stored under each capture key.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	// Short enough that a crashed capture does not block the transaction for long.
	InProgressExpiry = 30 * time.Second
	CompletedExpiry  = 24 * time.Hour
)

// RedisStore implements providers.CaptureStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis client instance.
func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb)
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{client: rdb}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Begin sets key to IN_PROGRESS with SET NX. It returns true when the key
// already existed, i.e. the capture is running elsewhere or has completed.
func (r *RedisStore) Begin(ctx context.Context, key string) (bool, error) {
	set, err := r.client.SetNX(ctx, key, StatusInProgress, InProgressExpiry).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX error: %w", err)
	}
	return !set, nil
}

// Complete marks key COMPLETED with a long expiry.
func (r *RedisStore) Complete(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, key, StatusCompleted, CompletedExpiry).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	return nil
}

// Release deletes key unless it is already COMPLETED.
func (r *RedisStore) Release(ctx context.Context, key string) error {
	status, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis GET error: %w", err)
	}
	if status == StatusCompleted {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL error: %w", err)
	}
	return nil
}

// Completed reports whether key was marked COMPLETED.
func (r *RedisStore) Completed(ctx context.Context, key string) (bool, error) {
	status, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis GET error: %w", err)
	}
	return status == StatusCompleted, nil
}
