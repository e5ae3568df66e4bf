package service

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/infrastructure/db/memory"
)

func TestAccessService_CheckGateway(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()

	tests := []struct {
		input   string
		want    domain.GatewayTrack
		wantErr error
	}{
		{input: "raven.oracle", want: domain.TrackOperative},
		{input: "  RAVEN.Oracle\t", want: domain.TrackOperative},
		{input: "night.owl", want: domain.TrackAdmin},
		{input: "raven", want: domain.TrackRejected, wantErr: domain.ErrGatewayMismatch},
		{input: "", want: domain.TrackRejected, wantErr: domain.ErrGatewayMismatch},
	}
	for _, tt := range tests {
		got, err := f.access.CheckGateway(ctx, tt.input)
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("CheckGateway(%q): expected %s/%v, got: %s/%v", tt.input, tt.want, tt.wantErr, got, err)
		}
	}
}

func TestAccessService_UnseededGatewayUsesDefault(t *testing.T) {
	svc := NewAccessService(memory.NewGatewayRepository(), memory.NewInviteKeyRepository(), memory.NewAdminRoleRepository(), bcrypt.MinCost, zerolog.Nop())

	track, err := svc.CheckGateway(context.Background(), "Raven.Oracle")
	if err != nil || track != domain.TrackOperative {
		t.Errorf("expected OPERATIVE, got: %s %v", track, err)
	}
	if _, err := svc.CheckGateway(context.Background(), "night.owl"); !errors.Is(err, domain.ErrGatewayMismatch) {
		t.Errorf("expected no admin track before seeding, got: %v", err)
	}
}

func TestAccessService_EnsureGatewayKeepsExisting(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	created, err := f.access.EnsureGateway(context.Background(), "other.phrase", "", domain.AdmissionPolicy{})
	if err != nil || created {
		t.Fatalf("expected existing gateway kept, got: %v %v", created, err)
	}
	if track, _ := f.access.CheckGateway(context.Background(), operativePhrase); track != domain.TrackOperative {
		t.Errorf("expected original phrase still valid, got: %s", track)
	}
}

func TestAccessService_EnsureGatewayLogsSeedOnce(t *testing.T) {
	var buf bytes.Buffer
	access := NewAccessService(memory.NewGatewayRepository(), memory.NewInviteKeyRepository(),
		memory.NewAdminRoleRepository(), bcrypt.MinCost, zerolog.New(&buf))

	for i := 0; i < 2; i++ {
		if _, err := access.EnsureGateway(context.Background(), operativePhrase, "", domain.AdmissionPolicy{}); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}
	if n := strings.Count(buf.String(), "gateway seeded"); n != 1 {
		t.Errorf("expected one seed log line, got: %d", n)
	}
}

func TestAccessService_UpdateGateway(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	outsider := domain.Actor{UserID: "op-1", IsAdmin: true}
	if err := f.access.UpdateGateway(ctx, outsider, domain.GatewayOperative, "new.phrase"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got: %v", err)
	}

	if err := f.access.UpdateGateway(ctx, admin, domain.GatewayOperative, " New.Phrase "); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, err := f.access.CheckGateway(ctx, operativePhrase); !errors.Is(err, domain.ErrGatewayMismatch) {
		t.Errorf("expected old phrase rejected, got: %v", err)
	}
	if track, _ := f.access.CheckGateway(ctx, "new.phrase"); track != domain.TrackOperative {
		t.Errorf("expected new phrase accepted, got: %s", track)
	}

	if err := f.access.UpdateGateway(ctx, admin, domain.GatewayKind("root"), "x"); !errors.Is(err, domain.ErrInvalidPhrase) {
		t.Errorf("expected ErrInvalidPhrase for unknown kind, got: %v", err)
	}
	if err := f.access.UpdateGateway(ctx, admin, domain.GatewayAdmin, "   "); !errors.Is(err, domain.ErrInvalidPhrase) {
		t.Errorf("expected ErrInvalidPhrase for a blank phrase, got: %v", err)
	}
}

func TestAccessService_UpdatePolicy(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	want := domain.AdmissionPolicy{InvitedSkipApproval: true}
	if err := f.access.UpdatePolicy(ctx, admin, want); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	got, _ := f.access.Policy(ctx)
	if got != want {
		t.Errorf("expected %+v, got: %+v", want, got)
	}
}

var inviteKeyPattern = regexp.MustCompile(`^KEY-[A-Z0-9]{6}$`)

func TestAccessService_InviteKeys(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	k, err := f.access.IssueInviteKey(ctx, admin)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !inviteKeyPattern.MatchString(k.Key) {
		t.Errorf("expected KEY-XXXXXX, got: %s", k.Key)
	}

	if ok, _ := f.access.ValidInviteKey(ctx, " "+k.Key[4:]+" "); ok {
		t.Error("expected a key without prefix to be invalid")
	}
	if ok, _ := f.access.ValidInviteKey(ctx, "  key-"+k.Key[4:]); !ok {
		t.Error("expected lower-case input to validate")
	}
	if ok, _ := f.access.ConsumeInviteKey(ctx, k.Key, "op-1"); !ok {
		t.Fatal("expected first consume to succeed")
	}
	if ok, _ := f.access.ConsumeInviteKey(ctx, k.Key, "op-2"); ok {
		t.Error("expected second consume to fail")
	}
	if ok, _ := f.access.ValidInviteKey(ctx, k.Key); ok {
		t.Error("expected used key invalid")
	}

	keys, _ := f.access.ListInviteKeys(ctx, admin)
	if len(keys) != 1 || !keys[0].IsUsed || keys[0].UsedBy != "op-1" {
		t.Errorf("expected one used key, got: %+v", keys)
	}
}
