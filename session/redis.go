package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store using Redis with a per-session TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(viewerID string) string {
	return fmt.Sprintf("viewer-session:%s", viewerID)
}

// Create stores a new session with the configured TTL.
func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, sessionKey(session.ViewerID), data, s.ttl).Err()
}

// Get retrieves a session. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, viewerID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(viewerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, viewerID string) error {
	return s.client.Del(ctx, sessionKey(viewerID)).Err()
}

// RefreshTTL updates the expiration time of a session key. A missing key is
// a no-op.
func (s *RedisStore) RefreshTTL(ctx context.Context, viewerID string) error {
	return s.client.Expire(ctx, sessionKey(viewerID), s.ttl).Err()
}
