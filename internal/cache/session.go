package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sessionPrefix is the Redis key prefix for session records.
const sessionPrefix = "session:"

// ErrSessionNotFound indicates the session does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession stores a new session for the user and returns its opaque id.
// The id is the value placed in the session cookie.
func (c *Cache) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	sessionID := uuid.New().String()

	if err := c.client.Set(ctx, sessionPrefix+sessionID, userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return sessionID, nil
}

// GetSession resolves a session id to its owning user id.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (string, error) {
	userID, err := c.client.Get(ctx, sessionPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

// DeleteSession removes a session, logging the user out of that client.
func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionPrefix+sessionID).Err()
}
