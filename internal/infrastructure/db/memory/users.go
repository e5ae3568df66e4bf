// Package memory keeps every store port in process memory. It backs the
// STORE=memory development mode and the concurrency tests, and offers the
// same compare-and-swap guarantees as the Mongo repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// UserRepository is an in-memory ports.UserRepository.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byCallsign map[string]string
}

// NewUserRepository returns an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[string]*domain.User),
		byCallsign: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[u.ID]; ok {
		return domain.ErrDuplicateKey
	}
	if _, ok := r.byCallsign[u.Callsign]; ok {
		return domain.ErrCallsignTaken
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byCallsign[u.Callsign] = u.ID
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) FindByCallsign(_ context.Context, callsign string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCallsign[callsign]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *UserRepository) List(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return out, nil
}

func (r *UserRepository) SetCallsign(_ context.Context, id, callsign string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byCallsign[callsign]; taken && owner != id {
		return domain.ErrCallsignTaken
	}
	delete(r.byCallsign, u.Callsign)
	u.Callsign = callsign
	u.UpdatedAt = time.Now().UTC()
	r.byCallsign[callsign] = id
	return nil
}

func (r *UserRepository) SetBlocked(_ context.Context, id string, blocked bool) error {
	return r.update(id, func(u *domain.User) { u.IsBlocked = blocked })
}

func (r *UserRepository) SetAdmin(_ context.Context, id string, admin bool) error {
	return r.update(id, func(u *domain.User) { u.IsAdmin = admin })
}

func (r *UserRepository) SetBiometric(_ context.Context, id, ref string) error {
	return r.update(id, func(u *domain.User) { u.BiometricRef = ref })
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	delete(r.byCallsign, u.Callsign)
	delete(r.byID, id)
	return nil
}

func (r *UserRepository) update(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// AdminRoleRepository is an in-memory ports.AdminRoleRepository.
type AdminRoleRepository struct {
	mu    sync.RWMutex
	roles map[string]*domain.AdminRole
}

// NewAdminRoleRepository returns an empty AdminRoleRepository.
func NewAdminRoleRepository() *AdminRoleRepository {
	return &AdminRoleRepository{roles: make(map[string]*domain.AdminRole)}
}

func (r *AdminRoleRepository) Grant(_ context.Context, role *domain.AdminRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[role.UserID]; ok {
		return nil
	}
	cp := *role
	r.roles[role.UserID] = &cp
	return nil
}

func (r *AdminRoleRepository) Find(_ context.Context, userID string) (*domain.AdminRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r *AdminRoleRepository) SetCallsign(_ context.Context, userID, callsign string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	role.Callsign = callsign
	return nil
}

func (r *AdminRoleRepository) Revoke(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles, userID)
	return nil
}

func (r *AdminRoleRepository) List(_ context.Context) ([]*domain.AdminRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AdminRole, 0, len(r.roles))
	for _, role := range r.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}
