package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session flags in a Redis hash per session
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "session:"}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get reads all flags of a session
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*State, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return stateFromFields(fields), nil
}

// Set writes one flag and refreshes the expiry in a single round trip
func (s *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	k := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, key, value)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session flag %s: %w", key, err)
	}
	return nil
}

// Delete removes one flag
func (s *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	if err := s.client.HDel(ctx, s.key(sessionID), key).Err(); err != nil {
		return fmt.Errorf("failed to delete session flag %s: %w", key, err)
	}
	return nil
}
