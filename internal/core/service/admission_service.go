package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	lockStripes = 64
	// watchPoll re-reads the admission even without notifications so that
	// expiries and lost events are still observed.
	watchPoll = 15 * time.Second
)

// AdmissionDeps groups the collaborators of the admission flow.
type AdmissionDeps struct {
	Store     ports.AdmissionStore
	Access    ports.AccessService
	Approvals ports.ApprovalService
	Users     ports.UserRepository
	Roles     ports.AdminRoleRepository
	Blobs     ports.BlobStore
	Tokens    ports.TokenService
	Notifier  ports.Notifier
	Events    ports.EventPublisher
}

// AdmissionService runs the admission state machine for each anonymous
// client. Operations on the same user id are serialised in-process.
type AdmissionService struct {
	store     ports.AdmissionStore
	access    ports.AccessService
	approvals ports.ApprovalService
	users     ports.UserRepository
	blobs     ports.BlobStore
	tokens    ports.TokenService
	notifier  ports.Notifier
	events    ports.EventPublisher
	guard     adminGuard
	log       zerolog.Logger
	now       func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewAdmissionService returns an AdmissionService.
func NewAdmissionService(deps AdmissionDeps, log zerolog.Logger) *AdmissionService {
	return &AdmissionService{
		store:     deps.Store,
		access:    deps.Access,
		approvals: deps.Approvals,
		users:     deps.Users,
		blobs:     deps.Blobs,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		events:    deps.Events,
		guard:     adminGuard{roles: deps.Roles},
		log:       log,
		now:       utcNow,
	}
}

func (s *AdmissionService) lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// begin loads the caller's admission and folds in the server-side view of
// its user record and session request. The refreshed admission is persisted
// before it is returned. forced is the notice of a reset begin performed.
func (s *AdmissionService) begin(ctx context.Context, userID string) (a domain.Admission, forced string, err error) {
	stored, err := s.store.Load(ctx, userID)
	if err != nil {
		return a, "", fmt.Errorf("load admission: %w", err)
	}
	prev := domain.NewAdmission(userID, s.now())
	if stored != nil {
		prev = *stored
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return prev, "", err
	}

	now := s.now()
	next, eff, wasForced := prev.Enforce(user, now)
	if wasForced {
		forced = next.Notice
		if eff.RevokeSession {
			if err := s.tokens.Revoke(ctx, userID); err != nil {
				return prev, "", err
			}
		}
	} else if prev.RequestID != "" {
		req, err := s.findRequest(ctx, prev.RequestID)
		if err != nil {
			return prev, "", err
		}
		next = prev.OnRequest(req, now)
	}

	if err := s.persist(ctx, prev, next); err != nil {
		return prev, "", err
	}
	return next, forced, nil
}

func (s *AdmissionService) findUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *AdmissionService) findRequest(ctx context.Context, id string) (*domain.SessionRequest, error) {
	req, err := s.approvals.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return req, nil
}

// persist stores next when it differs from prev and announces the change.
func (s *AdmissionService) persist(ctx context.Context, prev, next domain.Admission) error {
	if prev == next {
		return nil
	}
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save admission: %w", err)
	}
	if prev.State != next.State {
		metrics.AdmissionTransitionsTotal.WithLabelValues(string(prev.State), string(next.State)).Inc()
		s.log.Info().
			Str("user_id", next.UserID).
			Str("callsign", next.Callsign).
			Str("request_id", next.RequestID).
			Str("from", string(prev.State)).
			Str("state", string(next.State)).
			Str("notice", next.Notice).
			Msg("admission transition")
	}
	publish(s.events, ports.AdmissionTopic(next.UserID), ports.KindUpdated, next.UserID, nil, next.UpdatedAt)
	return nil
}

// reject records a refused step and passes err through.
func (s *AdmissionService) reject(userID string, state domain.AdmissionState, err error) error {
	if reason := rejectionReason(err); reason != "" {
		metrics.AdmissionRejectionsTotal.WithLabelValues(reason).Inc()
		s.log.Debug().Str("user_id", userID).Str("state", string(state)).Str("reason", reason).Msg("admission step rejected")
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrGatewayMismatch):
		return "GATEWAY_MISMATCH"
	case errors.Is(err, domain.ErrIdentityDenied):
		return "IDENTITY_DENIED"
	case errors.Is(err, domain.ErrInvalidSessionCode):
		return "INVALID_SESSION_CODE"
	case errors.Is(err, domain.ErrBlocked):
		return "BLOCKED"
	case errors.Is(err, domain.ErrCallsignTaken):
		return "CALLSIGN_TAKEN"
	case errors.Is(err, domain.ErrInvalidCallsign):
		return "INVALID_CALLSIGN"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrRequestNotPending):
		return "REQUEST_NOT_PENDING"
	case errors.Is(err, domain.ErrBiometricTooLarge):
		return "BIOMETRIC_TOO_LARGE"
	}
	return ""
}

// State returns the caller's admission. A client whose user was blocked is
// sent back to the gateway and gets domain.ErrBlocked once.
func (s *AdmissionService) State(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, forced, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if forced == domain.NoticeBlocked {
		return nil, domain.ErrBlocked
	}
	return &ports.AdmissionResult{Admission: a}, nil
}

// SubmitGateway checks phrase and, on a match, opens the identity step on the
// matched track.
func (s *AdmissionService) SubmitGateway(ctx context.Context, userID, phrase string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, _, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.State != domain.StateAwaitingGateway {
		return nil, s.reject(userID, a.State, domain.ErrInvalidTransition)
	}

	track, err := s.access.CheckGateway(ctx, phrase)
	if err != nil && !errors.Is(err, domain.ErrGatewayMismatch) {
		return nil, err
	}
	next, _, err := a.OnGateway(track, s.now())
	if err != nil {
		return nil, s.reject(userID, a.State, err)
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	return &ports.AdmissionResult{Admission: next}, nil
}

// SubmitIdentity resolves the identity step for callsign, consuming
// inviteKey when the caller registers with one.
func (s *AdmissionService) SubmitIdentity(ctx context.Context, userID, callsign, inviteKey string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, forced, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if forced == domain.NoticeBlocked {
		return nil, s.reject(userID, a.State, domain.ErrBlocked)
	}
	if a.State != domain.StateAwaitingIdentity {
		return nil, s.reject(userID, a.State, domain.ErrInvalidTransition)
	}

	facts, err := s.identityFacts(ctx, userID, callsign, inviteKey)
	if err != nil {
		return nil, s.reject(userID, a.State, err)
	}

	now := s.now()
	next, eff, err := a.OnIdentity(facts, now)
	if err != nil {
		if perr := s.persist(ctx, a, next); perr != nil {
			return nil, perr
		}
		return nil, s.reject(userID, a.State, err)
	}

	user := facts.User
	if eff.RegisterUser {
		if err := s.checkCallsignFree(ctx, userID, next.Callsign); err != nil {
			return nil, s.reject(userID, a.State, err)
		}
	}
	if eff.ConsumeInvite != "" {
		ok, err := s.access.ConsumeInviteKey(ctx, eff.ConsumeInvite, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.reject(userID, a.State, domain.ErrIdentityDenied)
		}
	}
	if eff.RegisterUser {
		user = &domain.User{
			ID:           userID,
			Callsign:     next.Callsign,
			IsAdmin:      next.IsAdminTrack(),
			RegisteredAt: now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if eff.ConsumeInvite != "" {
				if rerr := s.access.ReleaseInviteKey(ctx, eff.ConsumeInvite, userID); rerr != nil {
					s.log.Error().Err(rerr).Str("user_id", userID).Str("invite_key", eff.ConsumeInvite).Msg("invite not released after failed registration")
				}
			}
			return nil, s.reject(userID, a.State, fmt.Errorf("register user: %w", err))
		}
		publish(s.events, ports.UserTopic(userID), ports.KindCreated, userID, user, now)
		s.log.Info().Str("user_id", userID).Str("callsign", user.Callsign).Bool("invited", eff.ConsumeInvite != "").Msg("user registered")
	}
	if eff.GrantAdmin {
		if err := s.guard.roles.Grant(ctx, &domain.AdminRole{UserID: userID, Callsign: next.Callsign, GrantedAt: now}); err != nil {
			return nil, fmt.Errorf("grant admin: %w", err)
		}
		if !user.IsAdmin {
			if err := s.users.SetAdmin(ctx, userID, true); err != nil {
				return nil, fmt.Errorf("grant admin: %w", err)
			}
			user.IsAdmin = true
		}
		s.log.Info().Str("user_id", userID).Str("callsign", next.Callsign).Msg("admin role granted")
	}
	if eff.SubmitRequest {
		req, err := s.approvals.Submit(ctx, userID, next.Callsign)
		if err != nil {
			return nil, err
		}
		next.RequestID = req.ID
		next = next.OnRequest(req, now)
	}

	res := &ports.AdmissionResult{}
	if eff.IssueSession {
		if res.Session, err = s.tokens.IssueSession(ctx, user, true); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	res.Admission = next
	return res, nil
}

func (s *AdmissionService) identityFacts(ctx context.Context, userID, callsign, inviteKey string) (domain.IdentityFacts, error) {
	var f domain.IdentityFacts
	if strings.TrimSpace(callsign) != "" {
		c, err := domain.ParseCallsign(callsign)
		if err != nil {
			return f, err
		}
		f.Callsign = c
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return f, err
	}
	f.User = user

	if f.HasAdminRole, err = s.guard.isAdmin(ctx, userID); err != nil {
		return f, err
	}
	if f.Policy, err = s.access.Policy(ctx); err != nil {
		return f, err
	}

	f.InviteKey = domain.CanonicalInviteKey(inviteKey)
	if user == nil && f.InviteKey != "" {
		if f.InviteValid, err = s.access.ValidInviteKey(ctx, f.InviteKey); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (s *AdmissionService) checkCallsignFree(ctx context.Context, userID, callsign string) error {
	holder, err := s.users.FindByCallsign(ctx, callsign)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find callsign: %w", err)
	}
	if holder.ID != userID {
		return domain.ErrCallsignTaken
	}
	return nil
}

// AwaitApproval blocks while the caller waits in the approval queue.
func (s *AdmissionService) AwaitApproval(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
	updates, err := s.Watch(ctx, userID)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case a, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return s.State(ctx, userID)
			}
			if a.State != domain.StateAwaitingApproval {
				return &ports.AdmissionResult{Admission: a}, nil
			}
		}
	}
}

// Watch streams the caller's admission, starting with the current one.
// Cancelling ctx releases the subscription; the underlying session request
// is left in place so the client can resume.
func (s *AdmissionService) Watch(ctx context.Context, userID string) (<-chan domain.Admission, error) {
	sub, err := s.notifier.Subscribe(ctx, ports.AdmissionTopic(userID), ports.UserTopic(userID))
	if err != nil {
		return nil, fmt.Errorf("watch admission: %w", err)
	}

	out := make(chan domain.Admission, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		ticker := time.NewTicker(watchPoll)
		defer ticker.Stop()

		var last domain.Admission
		emit := func() bool {
			a, err := s.current(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error().Err(err).Str("user_id", userID).Msg("watch admission read failed")
				}
				return ctx.Err() == nil
			}
			if a == last {
				return true
			}
			last = a
			select {
			case out <- a:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
				if !emit() {
					return
				}
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *AdmissionService) current(ctx context.Context, userID string) (domain.Admission, error) {
	unlock := s.lock(userID)
	defer unlock()
	a, _, err := s.begin(ctx, userID)
	return a, err
}

// SubmitBiometric enrols an opaque capture of at most 1 MiB.
func (s *AdmissionService) SubmitBiometric(ctx context.Context, userID string, data []byte, contentType string) (*ports.AdmissionResult, error) {
	if len(data) == 0 {
		return nil, domain.ErrBiometricMissing
	}
	if len(data) > domain.MaxAttachmentBytes {
		return nil, s.reject(userID, domain.StateAwaitingBiometric, domain.ErrBiometricTooLarge)
	}

	unlock := s.lock(userID)
	defer unlock()

	a, forced, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if forced == domain.NoticeBlocked {
		return nil, s.reject(userID, a.State, domain.ErrBlocked)
	}
	now := s.now()
	next, eff, err := a.OnBiometric(now)
	if err != nil {
		return nil, s.reject(userID, a.State, err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if eff.RecordBiometric {
		key := biometricKey(userID)
		if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
			return nil, fmt.Errorf("store biometric: %w", err)
		}
		if err := s.users.SetBiometric(ctx, userID, key); err != nil {
			_ = s.blobs.Delete(ctx, key)
			return nil, fmt.Errorf("record biometric: %w", err)
		}
		if user.BiometricRef != "" {
			if err := s.blobs.Delete(ctx, user.BiometricRef); err != nil {
				s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete replaced biometric")
			}
		}
		user.BiometricRef = key
	}

	res := &ports.AdmissionResult{}
	if eff.IssueSession {
		if res.Session, err = s.tokens.IssueSession(ctx, user, next.IsAdminTrack()); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	res.Admission = next
	return res, nil
}

func biometricKey(userID string) string {
	return "biometrics/" + userID + "/" + uuid.NewString()
}

// SubmitSessionCode redeems the code issued on approval. A mismatch leaves
// the client where it is.
func (s *AdmissionService) SubmitSessionCode(ctx context.Context, userID, code string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, forced, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if forced == domain.NoticeBlocked {
		return nil, s.reject(userID, a.State, domain.ErrBlocked)
	}
	if a.State != domain.StateAwaitingSessionCode {
		return nil, s.reject(userID, a.State, domain.ErrInvalidTransition)
	}

	req, err := s.findRequest(ctx, a.RequestID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next, eff, err := a.OnSessionCode(code, req, now)
	if err != nil {
		if perr := s.persist(ctx, a, next); perr != nil {
			return nil, perr
		}
		return nil, s.reject(userID, a.State, err)
	}

	if eff.ConfirmRequest {
		if err := s.approvals.Confirm(ctx, req.ID); err != nil {
			return nil, err
		}
	}
	res := &ports.AdmissionResult{}
	if eff.IssueSession {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		if res.Session, err = s.tokens.IssueSession(ctx, user, false); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	res.Admission = next
	return res, nil
}

// Cancel abandons the admission in progress and withdraws its request.
func (s *AdmissionService) Cancel(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, _, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, eff, err := a.Cancel(s.now())
	if err != nil {
		return nil, s.reject(userID, a.State, err)
	}
	if eff.CancelRequest != "" {
		if err := s.approvals.Withdraw(ctx, eff.CancelRequest); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	return &ports.AdmissionResult{Admission: next}, nil
}

// Logout ends the caller's active session.
func (s *AdmissionService) Logout(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
	unlock := s.lock(userID)
	defer unlock()

	a, _, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, eff, err := a.Logout(s.now())
	if err != nil {
		return nil, s.reject(userID, a.State, err)
	}
	if eff.RevokeSession {
		if err := s.tokens.Revoke(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, a, next); err != nil {
		return nil, err
	}
	return &ports.AdmissionResult{Admission: next}, nil
}

// Terminate revokes the user's session and sends the client back to the
// gateway with notice, whatever its current state.
func (s *AdmissionService) Terminate(ctx context.Context, userID, notice string) error {
	unlock := s.lock(userID)
	defer unlock()

	if err := s.tokens.Revoke(ctx, userID); err != nil {
		return err
	}
	stored, err := s.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load admission: %w", err)
	}
	if stored == nil {
		return nil
	}
	return s.persist(ctx, *stored, stored.Reset(notice, s.now()))
}
