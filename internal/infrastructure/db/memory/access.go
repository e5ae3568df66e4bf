package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// GatewayRepository is an in-memory ports.GatewayRepository.
type GatewayRepository struct {
	mu sync.RWMutex
	g  *domain.Gateway
}

// NewGatewayRepository returns an unseeded GatewayRepository.
func NewGatewayRepository() *GatewayRepository {
	return &GatewayRepository{}
}

func (r *GatewayRepository) Get(_ context.Context) (*domain.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.g == nil {
		return nil, domain.ErrNotFound
	}
	cp := *r.g
	return &cp, nil
}

func (r *GatewayRepository) Seed(_ context.Context, g *domain.Gateway) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.g != nil {
		return false, nil
	}
	cp := *g
	cp.ID = domain.GatewayID
	r.g = &cp
	return true, nil
}

func (r *GatewayRepository) SetPhrase(_ context.Context, kind domain.GatewayKind, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.g == nil {
		r.g = &domain.Gateway{ID: domain.GatewayID}
	}
	switch kind {
	case domain.GatewayAdmin:
		r.g.AdminHash = hash
	case domain.GatewayOperative:
		r.g.OperativeHash = hash
	default:
		return domain.ErrInvalidPhrase
	}
	r.g.UpdatedAt = at
	return nil
}

func (r *GatewayRepository) SetPolicy(_ context.Context, policy domain.AdmissionPolicy, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.g == nil {
		r.g = &domain.Gateway{ID: domain.GatewayID}
	}
	r.g.Policy = policy
	r.g.UpdatedAt = at
	return nil
}

// InviteKeyRepository is an in-memory ports.InviteKeyRepository.
type InviteKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*domain.InviteKey
}

// NewInviteKeyRepository returns an empty InviteKeyRepository.
func NewInviteKeyRepository() *InviteKeyRepository {
	return &InviteKeyRepository{keys: make(map[string]*domain.InviteKey)}
}

func (r *InviteKeyRepository) Create(_ context.Context, k *domain.InviteKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[k.Key]; ok {
		return domain.ErrDuplicateKey
	}
	cp := *k
	r.keys[k.Key] = &cp
	return nil
}

func (r *InviteKeyRepository) Find(_ context.Context, key string) (*domain.InviteKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[key]
	if !ok {
		return nil, domain.ErrInviteNotFound
	}
	return copyInvite(k), nil
}

func (r *InviteKeyRepository) Consume(_ context.Context, key, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[key]
	if !ok || k.IsUsed {
		return false, nil
	}
	k.IsUsed = true
	k.UsedBy = userID
	k.UsedAt = &at
	return true, nil
}

func (r *InviteKeyRepository) Release(_ context.Context, key, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[key]
	if !ok || !k.IsUsed || k.UsedBy != userID {
		return false, nil
	}
	k.IsUsed = false
	k.UsedBy = ""
	k.UsedAt = nil
	return true, nil
}

func (r *InviteKeyRepository) List(_ context.Context) ([]*domain.InviteKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.InviteKey, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, copyInvite(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyInvite(k *domain.InviteKey) *domain.InviteKey {
	cp := *k
	if k.UsedAt != nil {
		t := *k.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}
