package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const defaultApprovalTimeout = 15 * time.Minute

// ApprovalService implements the session-request and identity-change queues.
type ApprovalService struct {
	requests ports.SessionRequestRepository
	changes  ports.IdentityChangeRepository
	users    ports.UserRepository
	roles    ports.AdminRoleRepository
	guard    adminGuard
	events   ports.EventPublisher
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewApprovalService returns an ApprovalService. A zero timeout selects 15m.
func NewApprovalService(
	requests ports.SessionRequestRepository,
	changes ports.IdentityChangeRepository,
	users ports.UserRepository,
	roles ports.AdminRoleRepository,
	events ports.EventPublisher,
	timeout time.Duration,
	log zerolog.Logger,
) *ApprovalService {
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	return &ApprovalService{
		requests: requests,
		changes:  changes,
		users:    users,
		roles:    roles,
		guard:    adminGuard{roles: roles},
		events:   events,
		timeout:  timeout,
		log:      log,
		now:      utcNow,
	}
}

// Submit queues a session request for userID. A user already waiting gets
// the existing pending request back so a returning client can resume.
func (s *ApprovalService) Submit(ctx context.Context, userID, callsign string) (*domain.SessionRequest, error) {
	now := s.now()
	req := &domain.SessionRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Callsign:  callsign,
		Status:    domain.RequestPending,
		CreatedAt: now,
	}

	err := s.requests.Create(ctx, req)
	if errors.Is(err, domain.ErrDuplicatePendingRequest) {
		existing, findErr := s.requests.FindPendingByUser(ctx, userID)
		if findErr == nil {
			s.log.Debug().Str("user_id", userID).Str("request_id", existing.ID).Msg("resuming pending session request")
			return existing, nil
		}
		// resolved between the two calls; surface the conflict
		return nil, fmt.Errorf("submit request: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}

	metrics.SessionRequestsTotal.WithLabelValues("submitted").Inc()
	publish(s.events, ports.RequestTopic(req.ID), ports.KindCreated, req.ID, req, now)
	publish(s.events, ports.TopicAdminQueue, ports.KindCreated, req.ID, req, now)
	s.log.Info().Str("user_id", userID).Str("callsign", callsign).Str("request_id", req.ID).Msg("session request submitted")
	return req, nil
}

// Get returns a request by id.
func (s *ApprovalService) Get(ctx context.Context, id string) (*domain.SessionRequest, error) {
	return s.requests.FindByID(ctx, id)
}

// Approve assigns a four digit session code to a pending request. When two
// administrators race, both receive the single code that was persisted.
func (s *ApprovalService) Approve(ctx context.Context, actor domain.Actor, id string) (string, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return "", err
	}
	code, err := newSessionCode()
	if err != nil {
		return "", err
	}

	now := s.now()
	req, won, err := s.requests.Resolve(ctx, id, domain.RequestApproved, code, actor.UserID, now)
	if err != nil {
		return "", fmt.Errorf("approve request: %w", err)
	}
	if !won {
		if req.Status == domain.RequestApproved {
			return req.SessionCode, nil
		}
		return "", fmt.Errorf("approve request: %w (status %s)", domain.ErrRequestNotPending, req.Status)
	}

	metrics.SessionRequestsTotal.WithLabelValues("approved").Inc()
	s.notify(req, now)
	s.log.Info().
		Str("request_id", id).
		Str("user_id", req.UserID).
		Str("callsign", req.Callsign).
		Str("approved_by", actor.UserID).
		Msg("session request approved")
	return req.SessionCode, nil
}

// Deny marks a pending request denied. Denying twice is a no-op.
func (s *ApprovalService) Deny(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}

	now := s.now()
	req, won, err := s.requests.Resolve(ctx, id, domain.RequestDenied, "", actor.UserID, now)
	if err != nil {
		return fmt.Errorf("deny request: %w", err)
	}
	if !won {
		if req.Status == domain.RequestDenied {
			return nil
		}
		return fmt.Errorf("deny request: %w (status %s)", domain.ErrRequestNotPending, req.Status)
	}

	metrics.SessionRequestsTotal.WithLabelValues("denied").Inc()
	s.notify(req, now)
	s.log.Info().Str("request_id", id).Str("user_id", req.UserID).Str("denied_by", actor.UserID).Msg("session request denied")
	return nil
}

// Confirm records that the client redeemed the session code.
func (s *ApprovalService) Confirm(ctx context.Context, id string) error {
	if err := s.requests.Confirm(ctx, id, s.now()); err != nil {
		return fmt.Errorf("confirm request: %w", err)
	}
	metrics.SessionRequestsTotal.WithLabelValues("confirmed").Inc()
	return nil
}

// Withdraw deletes a request on behalf of its owner.
func (s *ApprovalService) Withdraw(ctx context.Context, id string) error {
	req, err := s.requests.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("withdraw request: %w", err)
	}
	if err := s.requests.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("withdraw request: %w", err)
	}

	now := s.now()
	metrics.SessionRequestsTotal.WithLabelValues("withdrawn").Inc()
	publish(s.events, ports.RequestTopic(id), ports.KindDeleted, id, nil, now)
	publish(s.events, ports.TopicAdminQueue, ports.KindDeleted, id, nil, now)
	s.log.Info().Str("request_id", id).Str("user_id", req.UserID).Msg("session request withdrawn")
	return nil
}

// ListPending returns the approval queue.
func (s *ApprovalService) ListPending(ctx context.Context, actor domain.Actor) ([]*domain.SessionRequest, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	return s.requests.ListByStatus(ctx, domain.RequestPending)
}

// ExpireStale marks requests that outlived the approval timeout as expired:
// pending ones by age, approved ones that were never redeemed by approval age.
func (s *ApprovalService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.requests.ListStale(ctx, now.Add(-s.timeout))
	if err != nil {
		return 0, fmt.Errorf("expire requests: %w", err)
	}

	expired := 0
	for _, req := range stale {
		if !req.Expired(now, s.timeout) {
			continue
		}
		ok, err := s.requests.Expire(ctx, req.ID, req.Status, now)
		if err != nil {
			s.log.Error().Err(err).Str("request_id", req.ID).Msg("failed to expire session request")
			continue
		}
		if !ok {
			continue
		}
		expired++
		req.Status = domain.RequestExpired
		metrics.SessionRequestsTotal.WithLabelValues("expired").Inc()
		s.notify(req, now)
	}
	return expired, nil
}

func (s *ApprovalService) notify(req *domain.SessionRequest, at time.Time) {
	publish(s.events, ports.RequestTopic(req.ID), ports.KindUpdated, req.ID, req, at)
	publish(s.events, ports.AdmissionTopic(req.UserID), ports.KindUpdated, req.UserID, nil, at)
	publish(s.events, ports.TopicAdminQueue, ports.KindUpdated, req.ID, req, at)
}

func newSessionCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(domain.SessionCodeMax-domain.SessionCodeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+domain.SessionCodeMin, 10), nil
}

// SubmitIdentityChange queues a callsign change for approval. Administrators
// are applied immediately and get a nil request.
func (s *ApprovalService) SubmitIdentityChange(ctx context.Context, actor domain.Actor, callsign string) (*domain.IdentityChangeRequest, error) {
	requested, err := domain.ParseCallsign(callsign)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("identity change: %w", err)
	}
	if user.Callsign == requested {
		return nil, fmt.Errorf("identity change: %w: unchanged", domain.ErrInvalidCallsign)
	}
	if holder, err := s.users.FindByCallsign(ctx, requested); err == nil && holder.ID != user.ID {
		return nil, domain.ErrCallsignTaken
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("identity change: %w", err)
	}

	admin, err := s.guard.isAdmin(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if admin {
		return nil, s.applyCallsign(ctx, user.ID, requested)
	}

	now := s.now()
	req := &domain.IdentityChangeRequest{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		CurrentCallsign:   user.Callsign,
		RequestedCallsign: requested,
		Status:            domain.IdentityChangePending,
		CreatedAt:         now,
	}
	if err := s.changes.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("identity change: %w", err)
	}
	publish(s.events, ports.TopicAdminQueue, ports.KindCreated, req.ID, req, now)
	s.log.Info().Str("user_id", user.ID).Str("callsign", user.Callsign).Str("requested", requested).Msg("identity change submitted")
	return req, nil
}

// ApproveIdentityChange applies the requested callsign to the live user and
// its AdminRole mirror, then removes the request.
func (s *ApprovalService) ApproveIdentityChange(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}
	req, err := s.changes.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("approve identity change: %w", err)
	}
	if err := s.applyCallsign(ctx, req.UserID, req.RequestedCallsign); err != nil {
		return err
	}
	if err := s.changes.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("approve identity change: %w", err)
	}
	publish(s.events, ports.TopicAdminQueue, ports.KindDeleted, id, nil, s.now())
	return nil
}

// DenyIdentityChange removes the request without touching the user.
func (s *ApprovalService) DenyIdentityChange(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}
	if err := s.changes.Delete(ctx, id); err != nil {
		return fmt.Errorf("deny identity change: %w", err)
	}
	publish(s.events, ports.TopicAdminQueue, ports.KindDeleted, id, nil, s.now())
	s.log.Info().Str("change_id", id).Str("denied_by", actor.UserID).Msg("identity change denied")
	return nil
}

// ListIdentityChanges returns the pending identity changes.
func (s *ApprovalService) ListIdentityChanges(ctx context.Context, actor domain.Actor) ([]*domain.IdentityChangeRequest, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	return s.changes.List(ctx)
}

func (s *ApprovalService) applyCallsign(ctx context.Context, userID, callsign string) error {
	if err := s.users.SetCallsign(ctx, userID, callsign); err != nil {
		return fmt.Errorf("set callsign: %w", err)
	}
	if err := s.roles.SetCallsign(ctx, userID, callsign); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("set admin callsign: %w", err)
	}
	publish(s.events, ports.UserTopic(userID), ports.KindUpdated, userID, nil, s.now())
	s.log.Info().Str("user_id", userID).Str("callsign", callsign).Msg("callsign changed")
	return nil
}
