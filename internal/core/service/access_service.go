package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	inviteKeyPrefix   = "KEY-"
	inviteKeyLen      = 6
	inviteKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteKeyAttempts = 5

	// bcrypt ignores input past 72 bytes.
	maxPhraseLen = 72
)

// AccessService implements the gateway check and invite-key registry.
type AccessService struct {
	gateway ports.GatewayRepository
	invites ports.InviteKeyRepository
	guard   adminGuard
	cost    int
	log     zerolog.Logger
	now     func() time.Time
}

// NewAccessService returns an AccessService. A zero cost selects bcrypt.DefaultCost.
func NewAccessService(
	gateway ports.GatewayRepository,
	invites ports.InviteKeyRepository,
	roles ports.AdminRoleRepository,
	cost int,
	log zerolog.Logger,
) *AccessService {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccessService{
		gateway: gateway,
		invites: invites,
		guard:   adminGuard{roles: roles},
		cost:    cost,
		log:     log,
		now:     utcNow,
	}
}

// EnsureGateway seeds the gateway singleton when none is stored. Existing
// phrases are never overwritten. An empty admin phrase leaves the admin track
// closed until an administrator sets one.
func (s *AccessService) EnsureGateway(ctx context.Context, operative, admin string, policy domain.AdmissionPolicy) (bool, error) {
	if _, err := s.gateway.Get(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("ensure gateway: %w", err)
	}

	if domain.CanonicalPhrase(operative) == "" {
		operative = domain.DefaultOperativePhrase
	}
	opHash, err := s.hash(operative)
	if err != nil {
		return false, fmt.Errorf("ensure gateway: %w", err)
	}
	g := &domain.Gateway{ID: domain.GatewayID, OperativeHash: opHash, Policy: policy, UpdatedAt: s.now()}
	if domain.CanonicalPhrase(admin) != "" {
		if g.AdminHash, err = s.hash(admin); err != nil {
			return false, fmt.Errorf("ensure gateway: %w", err)
		}
	}

	created, err := s.gateway.Seed(ctx, g)
	if err != nil {
		return false, fmt.Errorf("ensure gateway: %w", err)
	}
	if created {
		s.log.Info().Bool("admin_track", g.AdminHash != "").Msg("gateway seeded")
	}
	return created, nil
}

// CheckGateway matches input against the admin phrase first, then the
// operative phrase. Comparison is on the trimmed, lower-cased input.
func (s *AccessService) CheckGateway(ctx context.Context, input string) (domain.GatewayTrack, error) {
	track, err := s.match(ctx, input)
	if err != nil {
		return domain.TrackRejected, err
	}
	metrics.GatewayChecksTotal.WithLabelValues(string(track)).Inc()
	if track == domain.TrackRejected {
		return track, domain.ErrGatewayMismatch
	}
	return track, nil
}

func (s *AccessService) match(ctx context.Context, input string) (domain.GatewayTrack, error) {
	phrase := domain.CanonicalPhrase(input)
	if phrase == "" || len(phrase) > maxPhraseLen {
		return domain.TrackRejected, nil
	}

	g, err := s.gateway.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		if phrase == domain.DefaultOperativePhrase {
			return domain.TrackOperative, nil
		}
		return domain.TrackRejected, nil
	}
	if err != nil {
		return domain.TrackRejected, fmt.Errorf("check gateway: %w", err)
	}

	if g.AdminHash != "" && bcrypt.CompareHashAndPassword([]byte(g.AdminHash), []byte(phrase)) == nil {
		return domain.TrackAdmin, nil
	}
	if g.OperativeHash != "" && bcrypt.CompareHashAndPassword([]byte(g.OperativeHash), []byte(phrase)) == nil {
		return domain.TrackOperative, nil
	}
	return domain.TrackRejected, nil
}

// UpdateGateway replaces one of the two phrases. No history is kept.
func (s *AccessService) UpdateGateway(ctx context.Context, actor domain.Actor, kind domain.GatewayKind, phrase string) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("update gateway: %w: unknown kind %q", domain.ErrInvalidPhrase, kind)
	}
	hash, err := s.hash(phrase)
	if err != nil {
		return err
	}
	if err := s.gateway.SetPhrase(ctx, kind, hash, s.now()); err != nil {
		return fmt.Errorf("update gateway: %w", err)
	}
	s.log.Info().Str("user_id", actor.UserID).Str("kind", string(kind)).Msg("gateway phrase updated")
	return nil
}

func (s *AccessService) hash(phrase string) (string, error) {
	p := domain.CanonicalPhrase(phrase)
	if p == "" || len(p) > maxPhraseLen {
		return "", domain.ErrInvalidPhrase
	}
	h, err := bcrypt.GenerateFromPassword([]byte(p), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash phrase: %w", err)
	}
	return string(h), nil
}

// Policy returns the stored admission policy, or the zero policy when the
// gateway was never seeded.
func (s *AccessService) Policy(ctx context.Context) (domain.AdmissionPolicy, error) {
	g, err := s.gateway.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AdmissionPolicy{}, nil
	}
	if err != nil {
		return domain.AdmissionPolicy{}, fmt.Errorf("get policy: %w", err)
	}
	return g.Policy, nil
}

// UpdatePolicy replaces the admission policy flags.
func (s *AccessService) UpdatePolicy(ctx context.Context, actor domain.Actor, policy domain.AdmissionPolicy) error {
	if err := s.guard.require(ctx, actor); err != nil {
		return err
	}
	if err := s.gateway.SetPolicy(ctx, policy, s.now()); err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	s.log.Info().
		Str("user_id", actor.UserID).
		Bool("invited_skip_approval", policy.InvitedSkipApproval).
		Bool("allow_uninvited_queue", policy.AllowUninvitedQueue).
		Msg("admission policy updated")
	return nil
}

// IssueInviteKey mints a fresh single-use key of the form KEY-XXXXXX.
func (s *AccessService) IssueInviteKey(ctx context.Context, actor domain.Actor) (*domain.InviteKey, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < inviteKeyAttempts; attempt++ {
		key, err := newInviteKey()
		if err != nil {
			return nil, err
		}
		k := &domain.InviteKey{Key: key, CreatedAt: s.now(), CreatedBy: actor.UserID}
		err = s.invites.Create(ctx, k)
		if errors.Is(err, domain.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issue invite key: %w", err)
		}
		s.log.Info().Str("user_id", actor.UserID).Str("invite_key", key).Msg("invite key issued")
		return k, nil
	}
	return nil, fmt.Errorf("issue invite key: %w after %d attempts", domain.ErrDuplicateKey, inviteKeyAttempts)
}

func newInviteKey() (string, error) {
	buf := make([]byte, inviteKeyLen)
	base := big.NewInt(int64(len(inviteKeyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate invite key: %w", err)
		}
		buf[i] = inviteKeyAlphabet[n.Int64()]
	}
	return inviteKeyPrefix + string(buf), nil
}

// ValidInviteKey reports whether key exists and is unused. It does not
// reserve the key.
func (s *AccessService) ValidInviteKey(ctx context.Context, key string) (bool, error) {
	key = domain.CanonicalInviteKey(key)
	if key == "" {
		return false, nil
	}
	k, err := s.invites.Find(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("validate invite key: %w", err)
	}
	return !k.IsUsed, nil
}

// ConsumeInviteKey marks key as used. Exactly one of any number of concurrent
// callers succeeds; everyone else gets false.
func (s *AccessService) ConsumeInviteKey(ctx context.Context, key, userID string) (bool, error) {
	key = domain.CanonicalInviteKey(key)
	if key == "" {
		return false, nil
	}
	ok, err := s.invites.Consume(ctx, key, userID, s.now())
	if err != nil {
		return false, fmt.Errorf("consume invite key: %w", err)
	}
	return ok, nil
}

// ReleaseInviteKey makes a key consumed by userID usable again. It is called
// when the registration the key was spent on did not go through.
func (s *AccessService) ReleaseInviteKey(ctx context.Context, key, userID string) error {
	key = domain.CanonicalInviteKey(key)
	ok, err := s.invites.Release(ctx, key, userID)
	if err != nil {
		return fmt.Errorf("release invite key: %w", err)
	}
	if !ok {
		s.log.Warn().Str("invite_key", key).Str("user_id", userID).Msg("invite key not held by user, nothing released")
	}
	return nil
}

// ListInviteKeys returns every issued key.
func (s *AccessService) ListInviteKeys(ctx context.Context, actor domain.Actor) ([]*domain.InviteKey, error) {
	if err := s.guard.require(ctx, actor); err != nil {
		return nil, err
	}
	return s.invites.List(ctx)
}
