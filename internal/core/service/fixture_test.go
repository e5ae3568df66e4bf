package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
	"github.com/raven-oracle/portal/internal/infrastructure/blob"
	"github.com/raven-oracle/portal/internal/infrastructure/db/memory"
)

const (
	operativePhrase = "raven.oracle"
	adminPhrase     = "Night.Owl"
	testSecret      = "test-secret"
)

// ---------------------------------------------------------------------------
// Fixture: every service wired over the in-memory stores.
// ---------------------------------------------------------------------------

// syncEvents publishes change events inline instead of through the dispatcher.
type syncEvents struct {
	n ports.Notifier
}

func (e syncEvents) Enqueue(ev ports.ChangeEvent) {
	_ = e.n.Publish(context.Background(), ev)
}

type fixture struct {
	users    *memory.UserRepository
	roles    *memory.AdminRoleRepository
	gateway  *memory.GatewayRepository
	invites  *memory.InviteKeyRepository
	requests *memory.SessionRequestRepository
	changes  *memory.IdentityChangeRepository
	messages *memory.MessageRepository
	store    *memory.AdmissionStore
	registry *memory.SessionRegistry
	notifier *memory.Notifier
	blobs    *blob.MemoryStore

	access     *AccessService
	tokens     *TokenService
	approvals  *ApprovalService
	admission  *AdmissionService
	messaging  *MessagingService
	moderation *ModerationService
}

func newFixture(t *testing.T, policy domain.AdmissionPolicy) *fixture {
	t.Helper()
	log := zerolog.Nop()

	f := &fixture{
		users:    memory.NewUserRepository(),
		roles:    memory.NewAdminRoleRepository(),
		gateway:  memory.NewGatewayRepository(),
		invites:  memory.NewInviteKeyRepository(),
		requests: memory.NewSessionRequestRepository(),
		changes:  memory.NewIdentityChangeRepository(),
		messages: memory.NewMessageRepository(),
		store:    memory.NewAdmissionStore(),
		registry: memory.NewSessionRegistry(),
		notifier: memory.NewNotifier(),
		blobs:    blob.NewMemoryStore(),
	}
	events := syncEvents{n: f.notifier}

	f.access = NewAccessService(f.gateway, f.invites, f.roles, bcrypt.MinCost, log)
	f.tokens = NewTokenService(testSecret, 0, f.registry)
	f.approvals = NewApprovalService(f.requests, f.changes, f.users, f.roles, events, 0, log)
	f.admission = NewAdmissionService(AdmissionDeps{
		Store:     f.store,
		Access:    f.access,
		Approvals: f.approvals,
		Users:     f.users,
		Roles:     f.roles,
		Blobs:     f.blobs,
		Tokens:    f.tokens,
		Notifier:  f.notifier,
		Events:    events,
	}, log)
	f.messaging = NewMessagingService(f.messages, f.users, f.roles, f.blobs, f.notifier, events, log)
	f.moderation = NewModerationService(ModerationDeps{
		Users:     f.users,
		Roles:     f.roles,
		Requests:  f.requests,
		Changes:   f.changes,
		Blobs:     f.blobs,
		Admission: f.admission,
		Messaging: f.messaging,
		Events:    events,
	}, log)

	if _, err := f.access.EnsureGateway(context.Background(), operativePhrase, adminPhrase, policy); err != nil {
		t.Fatalf("expected gateway seeded, got: %v", err)
	}
	return f
}

// admitAdmin walks a new administrator from the gateway into the channel.
func (f *fixture) admitAdmin(t *testing.T, userID, callsign string) (domain.Actor, *ports.SessionGrant) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.admission.SubmitGateway(ctx, userID, "  NIGHT.OWL "); err != nil {
		t.Fatalf("admin gateway: %v", err)
	}
	res, err := f.admission.SubmitIdentity(ctx, userID, callsign, "")
	if err != nil {
		t.Fatalf("admin identity: %v", err)
	}
	if res.Admission.State != domain.StateAwaitingBiometric {
		t.Fatalf("expected AWAITING_BIOMETRIC, got: %s", res.Admission.State)
	}
	res, err = f.admission.SubmitBiometric(ctx, userID, []byte("scan"), "image/png")
	if err != nil {
		t.Fatalf("admin biometric: %v", err)
	}
	if res.Admission.State != domain.StateActive || res.Session == nil {
		t.Fatalf("expected ACTIVE with a session, got: %+v", res)
	}
	return f.actor(t, res.Session), res.Session
}

// admitOperative walks an invited operative through approval into the channel.
func (f *fixture) admitOperative(t *testing.T, admin domain.Actor, userID, callsign string) (domain.Actor, *ports.SessionGrant) {
	t.Helper()
	ctx := context.Background()

	key, err := f.access.IssueInviteKey(ctx, admin)
	if err != nil {
		t.Fatalf("issue invite: %v", err)
	}
	if _, err := f.admission.SubmitGateway(ctx, userID, operativePhrase); err != nil {
		t.Fatalf("operative gateway: %v", err)
	}
	res, err := f.admission.SubmitIdentity(ctx, userID, callsign, key.Key)
	if err != nil {
		t.Fatalf("operative identity: %v", err)
	}
	if res.Admission.State != domain.StateAwaitingApproval {
		t.Fatalf("expected AWAITING_APPROVAL, got: %s", res.Admission.State)
	}
	code, err := f.approvals.Approve(ctx, admin, res.Admission.RequestID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.admission.SubmitBiometric(ctx, userID, []byte("scan"), "image/png"); err != nil {
		t.Fatalf("operative biometric: %v", err)
	}
	res, err = f.admission.SubmitSessionCode(ctx, userID, code)
	if err != nil {
		t.Fatalf("session code: %v", err)
	}
	if res.Admission.State != domain.StateActive || res.Session == nil {
		t.Fatalf("expected ACTIVE with a session, got: %+v", res)
	}
	return f.actor(t, res.Session), res.Session
}

func (f *fixture) actor(t *testing.T, grant *ports.SessionGrant) domain.Actor {
	t.Helper()
	p, err := f.tokens.Verify(context.Background(), grant.Token, ports.TokenSession)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	return p.Actor()
}
