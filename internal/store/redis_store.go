package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hftengine/pkg/types"
)

// redisKeyPrefix namespaces position keys in a shared Redis instance.
const redisKeyPrefix = "hftengine:position:"

// RedisStore persists positions as JSON documents in Redis, keyed by
// condition ID, so more than one process can share position state — the
// document-store option a single-file JSON or SQLite store can't offer.
type RedisStore struct {
	client *redis.Client
}

// OpenRedisStore builds a store from a redis.Options. The connection is
// lazy; Close releases the underlying client's connection pool.
func OpenRedisStore(opts *redis.Options) *RedisStore {
	return &RedisStore{client: redis.NewClient(opts)}
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SavePosition writes pos as a JSON document under conditionID's key.
func (s *RedisStore) SavePosition(conditionID string, pos types.TrackedPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	if err := s.client.Set(context.Background(), redisKeyPrefix+conditionID, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LoadPosition restores conditionID's position. Returns nil, nil if no
// saved position exists.
func (s *RedisStore) LoadPosition(conditionID string) (*types.TrackedPosition, error) {
	data, err := s.client.Get(context.Background(), redisKeyPrefix+conditionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var pos types.TrackedPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}

// DeletePosition removes conditionID's saved position, if any.
func (s *RedisStore) DeletePosition(conditionID string) error {
	if err := s.client.Del(context.Background(), redisKeyPrefix+conditionID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
