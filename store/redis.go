package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// redisStore persists snapshots as plain string values in Redis.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a snapshot store on the given Redis client. All
// keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Load retrieves the snapshot for key.
func (s *redisStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load key %s: %w", key, err)
	}
	return val, nil
}

// Save writes the snapshot for key. Snapshots do not expire; they are the
// durable copy of wallet and catalog state.
func (s *redisStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		// Redis reports maxmemory exhaustion as an OOM command error.
		if strings.Contains(err.Error(), "OOM") {
			return ErrStorageFull
		}
		return fmt.Errorf("failed to save key %s: %w", key, err)
	}
	return nil
}
