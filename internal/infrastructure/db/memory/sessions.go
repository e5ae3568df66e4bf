package memory

import (
	"context"
	"sync"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// AdmissionStore is an in-memory ports.AdmissionStore.
type AdmissionStore struct {
	mu     sync.RWMutex
	states map[string]domain.Admission
}

// NewAdmissionStore returns an empty AdmissionStore.
func NewAdmissionStore() *AdmissionStore {
	return &AdmissionStore{states: make(map[string]domain.Admission)}
}

func (s *AdmissionStore) Load(_ context.Context, userID string) (*domain.Admission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *AdmissionStore) Save(_ context.Context, a domain.Admission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[a.UserID] = a
	return nil
}

func (s *AdmissionStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

type liveSession struct {
	id      string
	expires time.Time
}

// SessionRegistry is an in-memory ports.SessionRegistry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]liveSession
	now      func() time.Time
}

// NewSessionRegistry returns an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]liveSession), now: time.Now}
}

func (r *SessionRegistry) Register(_ context.Context, userID, sessionID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = liveSession{id: sessionID, expires: r.now().Add(ttl)}
	return nil
}

func (r *SessionRegistry) IsActive(_ context.Context, userID, sessionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok || s.id != sessionID {
		return false, nil
	}
	return r.now().Before(s.expires), nil
}

func (r *SessionRegistry) Revoke(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}
