package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
	"github.com/raven-oracle/portal/internal/infrastructure/db/memory"
)

func TestTokenService_Anonymous(t *testing.T) {
	svc := NewTokenService(testSecret, time.Hour, memory.NewSessionRegistry())

	userID, token, err := svc.Anonymous()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	p, err := svc.Verify(context.Background(), token, ports.TokenClient)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.UserID != userID || p.Kind != ports.TokenClient {
		t.Errorf("expected client principal %s, got: %+v", userID, p)
	}
	if _, err := svc.Verify(context.Background(), token, ports.TokenSession); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected a client token refused as session, got: %v", err)
	}
}

func TestTokenService_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService(testSecret, time.Hour, memory.NewSessionRegistry())
	user := &domain.User{ID: "u1", Callsign: "WOLF"}

	first, err := svc.IssueSession(ctx, user, false)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	p, err := svc.Verify(ctx, first.Token, ports.TokenSession)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.Callsign != "WOLF" || p.IsAdmin || p.SessionID != first.SessionID {
		t.Errorf("unexpected principal: %+v", p)
	}
	if p.SessionStartedAt.UnixMilli() != first.StartedAt.UnixMilli() {
		t.Errorf("expected session start %v, got: %v", first.StartedAt, p.SessionStartedAt)
	}

	second, _ := svc.IssueSession(ctx, user, false)
	if _, err := svc.Verify(ctx, first.Token, ports.TokenSession); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("expected the older session superseded, got: %v", err)
	}

	_ = svc.Revoke(ctx, "u1")
	if _, err := svc.Verify(ctx, second.Token, ports.TokenSession); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("expected revoked session refused, got: %v", err)
	}
}

func TestTokenService_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService(testSecret, time.Hour, memory.NewSessionRegistry())
	other := NewTokenService("another-secret", time.Hour, memory.NewSessionRegistry())

	_, token, _ := other.Anonymous()
	if _, err := svc.Verify(ctx, token, ports.TokenClient); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected foreign signature refused, got: %v", err)
	}
	if _, err := svc.Verify(ctx, "not-a-jwt", ports.TokenClient); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected garbage refused, got: %v", err)
	}
}

func TestTokenService_Expiry(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService(testSecret, time.Minute, memory.NewSessionRegistry())
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	grant, _ := svc.IssueSession(ctx, &domain.User{ID: "u1", Callsign: "WOLF"}, false)
	now = now.Add(2 * time.Minute)
	if _, err := svc.Verify(ctx, grant.Token, ports.TokenSession); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected expired token refused, got: %v", err)
	}
}
