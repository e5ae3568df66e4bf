package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// SessionRequestRepository is an in-memory ports.SessionRequestRepository.
type SessionRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.SessionRequest
}

// NewSessionRequestRepository returns an empty SessionRequestRepository.
func NewSessionRequestRepository() *SessionRequestRepository {
	return &SessionRequestRepository{requests: make(map[string]*domain.SessionRequest)}
}

func (r *SessionRequestRepository) Create(_ context.Context, req *domain.SessionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.requests[req.ID]; ok {
		return domain.ErrDuplicateKey
	}
	if req.Status == domain.RequestPending && r.pendingFor(req.UserID) != nil {
		return domain.ErrDuplicatePendingRequest
	}
	r.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *SessionRequestRepository) FindByID(_ context.Context, id string) (*domain.SessionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return copyRequest(req), nil
}

func (r *SessionRequestRepository) FindPendingByUser(_ context.Context, userID string) (*domain.SessionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := r.pendingFor(userID)
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	return copyRequest(req), nil
}

func (r *SessionRequestRepository) ListByStatus(_ context.Context, status domain.RequestStatus) ([]*domain.SessionRequest, error) {
	return r.list(func(req *domain.SessionRequest) bool { return req.Status == status }), nil
}

func (r *SessionRequestRepository) ListStale(_ context.Context, cutoff time.Time) ([]*domain.SessionRequest, error) {
	return r.list(func(req *domain.SessionRequest) bool {
		switch req.Status {
		case domain.RequestPending:
			return req.CreatedAt.Before(cutoff)
		case domain.RequestApproved:
			return req.ConfirmedAt == nil && req.ResolvedAt != nil && req.ResolvedAt.Before(cutoff)
		}
		return false
	}), nil
}

func (r *SessionRequestRepository) Resolve(_ context.Context, id string, status domain.RequestStatus, code, by string, at time.Time) (*domain.SessionRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, false, domain.ErrRequestNotFound
	}
	if req.Status != domain.RequestPending {
		return copyRequest(req), false, nil
	}
	req.Status = status
	req.SessionCode = code
	req.ResolvedBy = by
	req.ResolvedAt = &at
	return copyRequest(req), true, nil
}

func (r *SessionRequestRepository) Expire(_ context.Context, id string, from domain.RequestStatus, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = domain.RequestExpired
	return true, nil
}

func (r *SessionRequestRepository) Confirm(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if req.Status != domain.RequestApproved {
		return domain.ErrRequestNotPending
	}
	req.ConfirmedAt = &at
	return nil
}

func (r *SessionRequestRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.requests[id]; !ok {
		return domain.ErrRequestNotFound
	}
	delete(r.requests, id)
	return nil
}

func (r *SessionRequestRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, req := range r.requests {
		if req.UserID == userID {
			delete(r.requests, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionRequestRepository) pendingFor(userID string) *domain.SessionRequest {
	for _, req := range r.requests {
		if req.UserID == userID && req.Status == domain.RequestPending {
			return req
		}
	}
	return nil
}

func (r *SessionRequestRepository) list(keep func(*domain.SessionRequest) bool) []*domain.SessionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.SessionRequest, 0)
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func copyRequest(req *domain.SessionRequest) *domain.SessionRequest {
	cp := *req
	if req.ResolvedAt != nil {
		t := *req.ResolvedAt
		cp.ResolvedAt = &t
	}
	if req.ConfirmedAt != nil {
		t := *req.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}

// IdentityChangeRepository is an in-memory ports.IdentityChangeRepository.
type IdentityChangeRepository struct {
	mu      sync.Mutex
	changes map[string]*domain.IdentityChangeRequest
}

// NewIdentityChangeRepository returns an empty IdentityChangeRepository.
func NewIdentityChangeRepository() *IdentityChangeRepository {
	return &IdentityChangeRepository{changes: make(map[string]*domain.IdentityChangeRequest)}
}

func (r *IdentityChangeRepository) Create(_ context.Context, req *domain.IdentityChangeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.changes {
		if c.UserID == req.UserID {
			return domain.ErrDuplicatePendingRequest
		}
	}
	cp := *req
	r.changes[req.ID] = &cp
	return nil
}

func (r *IdentityChangeRepository) FindByID(_ context.Context, id string) (*domain.IdentityChangeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.changes[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *IdentityChangeRepository) List(_ context.Context) ([]*domain.IdentityChangeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.IdentityChangeRequest, 0, len(r.changes))
	for _, c := range r.changes {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *IdentityChangeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.changes[id]; !ok {
		return domain.ErrRequestNotFound
	}
	delete(r.changes, id)
	return nil
}

func (r *IdentityChangeRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.changes {
		if c.UserID == userID {
			delete(r.changes, id)
			n++
		}
	}
	return n, nil
}
