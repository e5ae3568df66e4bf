package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	defaultSessionTTL = 12 * time.Hour
	clientTokenTTL    = 30 * 24 * time.Hour
	tokenIssuer       = "raven-portal"
)

// portalClaims is the JWT body of both token kinds. Session tokens carry the
// session id in jti; it must match the live entry in the session registry.
type portalClaims struct {
	Kind      ports.TokenKind `json:"knd"`
	Callsign  string          `json:"cs,omitempty"`
	Admin     bool            `json:"adm,omitempty"`
	StartedAt int64           `json:"ssa,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs HS256 tokens and keeps session tokens revocable.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	registry   ports.SessionRegistry
	now        func() time.Time
}

// NewTokenService returns a TokenService. A zero sessionTTL selects 12h.
func NewTokenService(secret string, sessionTTL time.Duration, registry ports.SessionRegistry) *TokenService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		registry:   registry,
		now:        utcNow,
	}
}

// Anonymous mints a client token for a new opaque user id.
func (s *TokenService) Anonymous() (string, string, error) {
	userID := uuid.NewString()
	now := s.now()
	token, err := s.sign(portalClaims{
		Kind: ports.TokenClient,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(clientTokenTTL)),
		},
	})
	if err != nil {
		return "", "", err
	}
	return userID, token, nil
}

// IssueSession starts a new channel session for user. Any previous session of
// the same user stops verifying.
func (s *TokenService) IssueSession(ctx context.Context, user *domain.User, isAdmin bool) (*ports.SessionGrant, error) {
	now := s.now()
	grant := &ports.SessionGrant{
		SessionID: uuid.NewString(),
		StartedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.registry.Register(ctx, user.ID, grant.SessionID, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	token, err := s.sign(portalClaims{
		Kind:      ports.TokenSession,
		Callsign:  user.Callsign,
		Admin:     isAdmin,
		StartedAt: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ID:        grant.SessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(grant.ExpiresAt),
		},
	})
	if err != nil {
		return nil, err
	}
	grant.Token = token
	return grant, nil
}

func (s *TokenService) sign(c portalClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw, checks its kind and, for session tokens, that the
// session has not been revoked.
func (s *TokenService) Verify(ctx context.Context, raw string, kind ports.TokenKind) (*ports.Principal, error) {
	var claims portalClaims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil || !tkn.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}

	p := &ports.Principal{UserID: claims.Subject, Kind: claims.Kind}
	if kind != ports.TokenSession {
		return p, nil
	}

	active, err := s.registry.IsActive(ctx, claims.Subject, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if !active {
		return nil, domain.ErrSessionRevoked
	}
	p.Callsign = claims.Callsign
	p.IsAdmin = claims.Admin
	p.SessionID = claims.ID
	p.SessionStartedAt = time.UnixMilli(claims.StartedAt).UTC()
	return p, nil
}

// Revoke invalidates the user's current session, if any.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.registry.Revoke(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
