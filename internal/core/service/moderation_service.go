package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// ModerationDeps groups the collaborators of the moderation controls.
type ModerationDeps struct {
	Users     ports.UserRepository
	Roles     ports.AdminRoleRepository
	Requests  ports.SessionRequestRepository
	Changes   ports.IdentityChangeRepository
	Blobs     ports.BlobStore
	Admission ports.AdmissionService
	Messaging ports.MessagingService
	Events    ports.EventPublisher
}

// ModerationService implements the administrator controls over users. Every
// operation checks the actor's AdminRole before it writes anything.
type ModerationService struct {
	users     ports.UserRepository
	requests  ports.SessionRequestRepository
	changes   ports.IdentityChangeRepository
	blobs     ports.BlobStore
	admission ports.AdmissionService
	messaging ports.MessagingService
	events    ports.EventPublisher
	guard     adminGuard
	log       zerolog.Logger
	now       func() time.Time
}

// NewModerationService returns a ModerationService.
func NewModerationService(deps ModerationDeps, log zerolog.Logger) *ModerationService {
	return &ModerationService{
		users:     deps.Users,
		requests:  deps.Requests,
		changes:   deps.Changes,
		blobs:     deps.Blobs,
		admission: deps.Admission,
		messaging: deps.Messaging,
		events:    deps.Events,
		guard:     adminGuard{roles: deps.Roles},
		log:       log,
		now:       utcNow,
	}
}

// target resolves a moderation target. Administrators are never valid targets.
func (s *ModerationService) target(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	protected, err := s.guard.isAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if protected || user.IsAdmin {
		return nil, domain.ErrProtectedUser
	}
	return user, nil
}

func (s *ModerationService) done(actor domain.Actor, action string, user *domain.User, kind string) {
	metrics.ModerationActionsTotal.WithLabelValues(action).Inc()
	publish(s.events, ports.UserTopic(user.ID), kind, user.ID, nil, s.now())
	s.log.Info().
		Str("action", action).
		Str("user_id", user.ID).
		Str("callsign", user.Callsign).
		Str("by", actor.UserID).
		Msg("moderation action")
}

// Block flags the user and ends their session. Any client of theirs is
// sent back to the gateway on its next read.
func (s *ModerationService) Block(ctx context.Context, actor domain.Actor, userID string) error {
	user, err := s.target(ctx, actor, userID)
	if err != nil {
		return err
	}
	if err := s.users.SetBlocked(ctx, userID, true); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if err := s.admission.Terminate(ctx, userID, domain.NoticeBlocked); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	s.done(actor, "block", user, ports.KindUpdated)
	return nil
}

// Unblock clears the blocked flag. The user has to go through admission again.
func (s *ModerationService) Unblock(ctx context.Context, actor domain.Actor, userID string) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.SetBlocked(ctx, userID, false); err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	s.done(actor, "unblock", user, ports.KindUpdated)
	return nil
}

// DeleteUser removes the user together with their queued requests and
// biometric capture. Their messages stay in the log.
func (s *ModerationService) DeleteUser(ctx context.Context, actor domain.Actor, userID string) error {
	user, err := s.target(ctx, actor, userID)
	if err != nil {
		return err
	}

	if _, err := s.requests.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: requests: %w", err)
	}
	if _, err := s.changes.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: identity changes: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if user.BiometricRef != "" {
		if err := s.blobs.Delete(ctx, user.BiometricRef); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete biometric")
		}
	}
	if err := s.admission.Terminate(ctx, userID, domain.NoticeUserRemoved); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	publish(s.events, ports.TopicAdminQueue, ports.KindDeleted, userID, nil, s.now())
	s.done(actor, "delete", user, ports.KindDeleted)
	return nil
}

// Terminate ends the user's live session without blocking them.
func (s *ModerationService) Terminate(ctx context.Context, actor domain.Actor, userID string) error {
	user, err := s.target(ctx, actor, userID)
	if err != nil {
		return err
	}
	if err := s.admission.Terminate(ctx, userID, domain.NoticeSessionTerminated); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	s.done(actor, "terminate", user, ports.KindUpdated)
	return nil
}

// Broadcast posts content as the administrator, to everyone or to one callsign.
func (s *ModerationService) Broadcast(ctx context.Context, actor domain.Actor, recipient, content string) (*domain.Message, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	msg, err := s.messaging.Send(ctx, actor, ports.SendInput{Recipient: recipient, Content: content})
	if err != nil {
		return nil, err
	}
	metrics.ModerationActionsTotal.WithLabelValues("broadcast").Inc()
	return msg, nil
}

// ListUsers returns every registered user.
func (s *ModerationService) ListUsers(ctx context.Context, actor domain.Actor) ([]*domain.User, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}
