package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

func TestAdmissionService_AdminRoundTrip(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()

	actor, grant := f.admitAdmin(t, "admin-1", "overseer")
	if !actor.IsAdmin || actor.Callsign != "OVERSEER" {
		t.Errorf("expected admin actor OVERSEER, got: %+v", actor)
	}
	if _, err := f.roles.Find(ctx, "admin-1"); err != nil {
		t.Errorf("expected admin role granted, got: %v", err)
	}
	u, _ := f.users.FindByID(ctx, "admin-1")
	if !u.IsAdmin || !u.HasBiometric() {
		t.Errorf("expected admin user with biometric, got: %+v", u)
	}

	// A returning admin with a biometric on file goes straight to ACTIVE.
	if _, err := f.admission.Logout(ctx, "admin-1"); err != nil {
		t.Fatalf("expected logout, got: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, grant.Token, ports.TokenSession); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("expected old session revoked, got: %v", err)
	}
	if _, err := f.admission.SubmitGateway(ctx, "admin-1", adminPhrase); err != nil {
		t.Fatalf("expected gateway pass, got: %v", err)
	}
	res, err := f.admission.SubmitIdentity(ctx, "admin-1", "", "")
	if err != nil {
		t.Fatalf("expected identity pass, got: %v", err)
	}
	if res.Admission.State != domain.StateActive || res.Session == nil {
		t.Errorf("expected ACTIVE with a session, got: %+v", res)
	}
}

func TestAdmissionService_AdminRoleSkipsApprovalOnOperativeGateway(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	f.admitAdmin(t, "admin-1", "OVERSEER")
	_, _ = f.admission.Logout(ctx, "admin-1")

	_, _ = f.admission.SubmitGateway(ctx, "admin-1", operativePhrase)
	res, err := f.admission.SubmitIdentity(ctx, "admin-1", "", "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Admission.State != domain.StateActive {
		t.Errorf("expected ACTIVE, got: %s", res.Admission.State)
	}
}

func TestAdmissionService_OperativeRoundTrip(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	key, _ := f.access.IssueInviteKey(ctx, admin)
	_, _ = f.admission.SubmitGateway(ctx, "op-1", "Raven.Oracle")
	res, err := f.admission.SubmitIdentity(ctx, "op-1", "wolf", key.Key)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Admission.State != domain.StateAwaitingApproval || res.Admission.RequestID == "" {
		t.Fatalf("expected queued request, got: %+v", res.Admission)
	}

	code, err := f.approvals.Approve(ctx, admin, res.Admission.RequestID)
	if err != nil {
		t.Fatalf("expected approval, got: %v", err)
	}

	state, _ := f.admission.State(ctx, "op-1")
	if state.Admission.State != domain.StateAwaitingBiometric {
		t.Fatalf("expected AWAITING_BIOMETRIC, got: %s", state.Admission.State)
	}
	res, err = f.admission.SubmitBiometric(ctx, "op-1", []byte("scan"), "image/png")
	if err != nil || res.Admission.State != domain.StateAwaitingSessionCode {
		t.Fatalf("expected AWAITING_SESSION_CODE, got: %+v %v", res, err)
	}

	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	if _, err := f.admission.SubmitSessionCode(ctx, "op-1", wrong); !errors.Is(err, domain.ErrInvalidSessionCode) {
		t.Fatalf("expected ErrInvalidSessionCode, got: %v", err)
	}
	state, _ = f.admission.State(ctx, "op-1")
	if state.Admission.State != domain.StateAwaitingSessionCode {
		t.Errorf("expected state unchanged after mismatch, got: %s", state.Admission.State)
	}

	res, err = f.admission.SubmitSessionCode(ctx, "op-1", " "+code+" ")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Admission.State != domain.StateActive || res.Session == nil {
		t.Fatalf("expected ACTIVE with a session, got: %+v", res)
	}
	req, _ := f.requests.FindByID(ctx, res.Admission.RequestID)
	if req.ConfirmedAt == nil {
		t.Error("expected request confirmed")
	}
}

func TestAdmissionService_GatewayMismatch(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()

	_, err := f.admission.SubmitGateway(ctx, "u1", "wrong.phrase")
	if !errors.Is(err, domain.ErrGatewayMismatch) {
		t.Fatalf("expected ErrGatewayMismatch, got: %v", err)
	}
	state, _ := f.admission.State(ctx, "u1")
	if state.Admission.State != domain.StateAwaitingGateway {
		t.Errorf("expected AWAITING_GATEWAY, got: %s", state.Admission.State)
	}
}

func TestAdmissionService_IdentityPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    domain.AdmissionPolicy
		invited   bool
		wantErr   error
		wantState domain.AdmissionState
	}{
		{name: "uninvited denied", wantErr: domain.ErrIdentityDenied},
		{name: "uninvited queued", policy: domain.AdmissionPolicy{AllowUninvitedQueue: true}, wantState: domain.StateAwaitingApproval},
		{name: "invited queued", invited: true, wantState: domain.StateAwaitingApproval},
		{name: "invited skips approval", policy: domain.AdmissionPolicy{InvitedSkipApproval: true}, invited: true, wantState: domain.StateAwaitingBiometric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.policy)
			ctx := context.Background()
			admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

			key := ""
			if tt.invited {
				k, _ := f.access.IssueInviteKey(ctx, admin)
				key = k.Key
			}
			_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
			res, err := f.admission.SubmitIdentity(ctx, "op-1", "WOLF", key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got: %v", tt.wantErr, err)
				}
				if _, err := f.users.FindByID(ctx, "op-1"); !errors.Is(err, domain.ErrNotFound) {
					t.Errorf("expected no user registered, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if res.Admission.State != tt.wantState {
				t.Errorf("expected %s, got: %s", tt.wantState, res.Admission.State)
			}
		})
	}
}

func TestAdmissionService_InvitedSkipApprovalReachesChannel(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{InvitedSkipApproval: true})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	k, _ := f.access.IssueInviteKey(ctx, admin)
	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	_, _ = f.admission.SubmitIdentity(ctx, "op-1", "WOLF", k.Key)
	res, err := f.admission.SubmitBiometric(ctx, "op-1", []byte("scan"), "image/jpeg")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Admission.State != domain.StateActive || res.Session == nil {
		t.Errorf("expected ACTIVE with a session, got: %+v", res)
	}
	if pending, _ := f.requests.ListByStatus(ctx, domain.RequestPending); len(pending) != 0 {
		t.Errorf("expected no queued request, got: %d", len(pending))
	}
}

func TestAdmissionService_InviteConsumedOnce(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")
	k, _ := f.access.IssueInviteKey(ctx, admin)

	users := []string{"op-1", "op-2", "op-3", "op-4"}
	for _, u := range users {
		_, _ = f.admission.SubmitGateway(ctx, u, operativePhrase)
	}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, errs[i] = f.admission.SubmitIdentity(ctx, u, "CALL-"+u, k.Key)
		}(i, u)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrIdentityDenied):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != 1 {
		t.Errorf("expected exactly one registration per invite, got: %d", admitted)
	}
}

func TestAdmissionService_CallsignTaken(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{AllowUninvitedQueue: true})
	ctx := context.Background()
	f.admitAdmin(t, "admin-1", "OVERSEER")

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	_, err := f.admission.SubmitIdentity(ctx, "op-1", "overseer", "")
	if !errors.Is(err, domain.ErrCallsignTaken) {
		t.Fatalf("expected ErrCallsignTaken, got: %v", err)
	}
	state, _ := f.admission.State(ctx, "op-1")
	if state.Admission.State != domain.StateAwaitingIdentity {
		t.Errorf("expected to stay at identity, got: %s", state.Admission.State)
	}
}

// racingUsers lets another registration land between the callsign check and
// Create.
type racingUsers struct {
	ports.UserRepository
	beforeCreate func(ctx context.Context)
}

func (r *racingUsers) Create(ctx context.Context, u *domain.User) error {
	if r.beforeCreate != nil {
		hook := r.beforeCreate
		r.beforeCreate = nil
		hook(ctx)
	}
	return r.UserRepository.Create(ctx, u)
}

func TestAdmissionService_FailedRegistrationKeepsInvite(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")
	k, _ := f.access.IssueInviteKey(ctx, admin)

	f.admission.users = &racingUsers{
		UserRepository: f.users,
		beforeCreate: func(ctx context.Context) {
			_ = f.users.Create(ctx, &domain.User{ID: "rival", Callsign: "NIGHTHAWK", RegisteredAt: time.Now()})
		},
	}

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	_, err := f.admission.SubmitIdentity(ctx, "op-1", "nighthawk", k.Key)
	if !errors.Is(err, domain.ErrCallsignTaken) {
		t.Fatalf("expected ErrCallsignTaken, got: %v", err)
	}

	stored, _ := f.invites.Find(ctx, k.Key)
	if stored.IsUsed {
		t.Fatalf("expected invite released after rejected registration, got: %+v", stored)
	}
	state, _ := f.admission.State(ctx, "op-1")
	if state.Admission.State != domain.StateAwaitingIdentity {
		t.Fatalf("expected to stay at identity, got: %s", state.Admission.State)
	}

	res, err := f.admission.SubmitIdentity(ctx, "op-1", "nightjar", k.Key)
	if err != nil {
		t.Fatalf("expected retry with same invite to succeed, got: %v", err)
	}
	if res.Admission.State != domain.StateAwaitingApproval {
		t.Errorf("expected AWAITING_APPROVAL, got: %s", res.Admission.State)
	}
	stored, _ = f.invites.Find(ctx, k.Key)
	if !stored.IsUsed || stored.UsedBy != "op-1" {
		t.Errorf("expected invite consumed by op-1, got: %+v", stored)
	}
}

func TestAdmissionService_DenialResetsClient(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{AllowUninvitedQueue: true})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	res, _ := f.admission.SubmitIdentity(ctx, "op-1", "WOLF", "")
	if err := f.approvals.Deny(ctx, admin, res.Admission.RequestID); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	state, err := f.admission.State(ctx, "op-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if state.Admission.State != domain.StateAwaitingGateway || state.Admission.Notice != domain.NoticeRequestDenied {
		t.Errorf("expected reset with REQUEST_DENIED, got: %+v", state.Admission)
	}
}

func TestAdmissionService_ResumeKeepsSingleRequest(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{AllowUninvitedQueue: true})
	ctx := context.Background()
	f.admitAdmin(t, "admin-1", "OVERSEER")

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	first, _ := f.admission.SubmitIdentity(ctx, "op-1", "WOLF", "")

	// the client reloads on a fresh admission record and comes back
	_ = f.store.Delete(ctx, "op-1")
	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	second, err := f.admission.SubmitIdentity(ctx, "op-1", "", "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if second.Admission.RequestID != first.Admission.RequestID {
		t.Errorf("expected the pending request to be resumed, got: %s vs %s", second.Admission.RequestID, first.Admission.RequestID)
	}
	pending, _ := f.requests.ListByStatus(ctx, domain.RequestPending)
	if len(pending) != 1 {
		t.Errorf("expected one pending request, got: %d", len(pending))
	}
}

func TestAdmissionService_CancelWithdrawsRequest(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{AllowUninvitedQueue: true})
	ctx := context.Background()
	f.admitAdmin(t, "admin-1", "OVERSEER")

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	res, _ := f.admission.SubmitIdentity(ctx, "op-1", "WOLF", "")

	out, err := f.admission.Cancel(ctx, "op-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out.Admission.State != domain.StateAwaitingGateway || out.Admission.Notice != domain.NoticeCancelled {
		t.Errorf("expected cancelled reset, got: %+v", out.Admission)
	}
	if _, err := f.requests.FindByID(ctx, res.Admission.RequestID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected request withdrawn, got: %v", err)
	}

	if _, err := f.admission.Cancel(ctx, "op-1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition at gateway, got: %v", err)
	}
}

func TestAdmissionService_BlockedClientIsReset(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")
	_, grant := f.admitOperative(t, admin, "op-1", "WOLF")

	// flag the user directly so the reset is observed by the client's next read
	_ = f.users.SetBlocked(ctx, "op-1", true)

	if _, err := f.admission.State(ctx, "op-1"); !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, grant.Token, ports.TokenSession); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("expected session revoked, got: %v", err)
	}

	state, err := f.admission.State(ctx, "op-1")
	if err != nil {
		t.Fatalf("expected the notice only once, got: %v", err)
	}
	if state.Admission.State != domain.StateAwaitingGateway || state.Admission.Notice != domain.NoticeBlocked {
		t.Errorf("expected gateway with BLOCKED notice, got: %+v", state.Admission)
	}

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	if _, err := f.admission.SubmitIdentity(ctx, "op-1", "", ""); !errors.Is(err, domain.ErrBlocked) {
		t.Errorf("expected ErrBlocked at identity, got: %v", err)
	}
}

func TestAdmissionService_AwaitApproval(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{AllowUninvitedQueue: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	admin, _ := f.admitAdmin(t, "admin-1", "OVERSEER")

	_, _ = f.admission.SubmitGateway(ctx, "op-1", operativePhrase)
	res, _ := f.admission.SubmitIdentity(ctx, "op-1", "WOLF", "")

	done := make(chan *ports.AdmissionResult, 1)
	go func() {
		out, err := f.admission.AwaitApproval(ctx, "op-1")
		if err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
		done <- out
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := f.approvals.Approve(ctx, admin, res.Admission.RequestID); err != nil {
		t.Fatalf("expected approval, got: %v", err)
	}

	select {
	case out := <-done:
		if out == nil || out.Admission.State != domain.StateAwaitingBiometric {
			t.Errorf("expected AWAITING_BIOMETRIC, got: %+v", out)
		}
	case <-ctx.Done():
		t.Fatal("expected AwaitApproval to return after approval")
	}
}

func TestAdmissionService_BiometricLimit(t *testing.T) {
	f := newFixture(t, domain.AdmissionPolicy{})
	ctx := context.Background()
	_, _ = f.admission.SubmitGateway(ctx, "admin-1", adminPhrase)
	_, _ = f.admission.SubmitIdentity(ctx, "admin-1", "OVERSEER", "")

	_, err := f.admission.SubmitBiometric(ctx, "admin-1", make([]byte, domain.MaxAttachmentBytes+1), "image/png")
	if !errors.Is(err, domain.ErrBiometricTooLarge) {
		t.Fatalf("expected ErrBiometricTooLarge, got: %v", err)
	}
	res, err := f.admission.SubmitBiometric(ctx, "admin-1", make([]byte, domain.MaxAttachmentBytes), "image/png")
	if err != nil || res.Admission.State != domain.StateActive {
		t.Errorf("expected a 1 MiB capture accepted, got: %+v %v", res, err)
	}
}
