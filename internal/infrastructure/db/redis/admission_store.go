package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// AdmissionStore keeps each client's admission as JSON under
// admission:<user_id>. Every save refreshes the TTL, so idle clients fall
// back to the gateway once it lapses.
type AdmissionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAdmissionStore creates an AdmissionStore whose entries live for ttl.
func NewAdmissionStore(client *redis.Client, ttl time.Duration) *AdmissionStore {
	return &AdmissionStore{client: client, ttl: ttl}
}

func (s *AdmissionStore) Load(ctx context.Context, userID string) (*domain.Admission, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load admission: %w", err)
	}
	var a domain.Admission
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode admission: %w", err)
	}
	return &a, nil
}

func (s *AdmissionStore) Save(ctx context.Context, a domain.Admission) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode admission: %w", err)
	}
	if err := s.client.Set(ctx, s.key(a.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save admission: %w", err)
	}
	return nil
}

func (s *AdmissionStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete admission: %w", err)
	}
	return nil
}

func (s *AdmissionStore) key(userID string) string {
	return "admission:" + userID
}
