package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRegistry stores the live session id of each user under
// session:<user_id>. A token is honoured only while its session id matches.
type SessionRegistry struct {
	client *redis.Client
}

// NewSessionRegistry creates a SessionRegistry wrapping the given Redis client.
func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client}
}

// Register replaces any previous session of userID.
func (r *SessionRegistry) Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(userID), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (r *SessionRegistry) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	current, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("session lookup: %w", err)
	}
	return current == sessionID, nil
}

func (r *SessionRegistry) Revoke(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SessionRegistry) key(userID string) string {
	return "session:" + userID
}
