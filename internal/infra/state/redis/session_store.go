package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"quiz-arena/internal/repository"
)

// RedisSessionStore remembers signed-out token ids until the token would have
// expired anyway, after which redis drops the key.
type RedisSessionStore struct {
	client *redis.Client
	keys   keys
	now    func() time.Time
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client *redis.Client, keyPrefix string) *RedisSessionStore {
	if client == nil {
		panic("redis client cannot be nil for RedisSessionStore")
	}
	return &RedisSessionStore{client: client, keys: newKeys(keyPrefix), now: time.Now}
}

func (s *RedisSessionStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil // already expired
	}
	key := s.keys.revokedSession(sessionID)
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to revoke session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisSessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	key := s.keys.revokedSession(sessionID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check revocation of session %s: %w", sessionID, err)
	}
	return n > 0, nil
}
