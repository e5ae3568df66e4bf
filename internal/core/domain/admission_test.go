package domain

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func atIdentity(track GatewayTrack) Admission {
	a, _, err := NewAdmission("u-1", t0).OnGateway(track, t0)
	if err != nil {
		panic(err)
	}
	return a
}

func TestAdmission_OnGateway(t *testing.T) {
	a := NewAdmission("u-1", t0)

	same, _, err := a.OnGateway(TrackRejected, t0)
	if !errors.Is(err, ErrGatewayMismatch) {
		t.Fatalf("expected ErrGatewayMismatch, got: %v", err)
	}
	if same.State != StateAwaitingGateway {
		t.Errorf("expected state unchanged, got %s", same.State)
	}

	next, _, err := a.OnGateway(TrackOperative, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.State != StateAwaitingIdentity || next.Track != TrackOperative {
		t.Errorf("unexpected admission: %+v", next)
	}

	if _, _, err := next.OnGateway(TrackOperative, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second gateway, got: %v", err)
	}
}

func TestAdmission_OnIdentity_AdminTrackFirstLogin(t *testing.T) {
	next, eff, err := atIdentity(TrackAdmin).OnIdentity(IdentityFacts{Callsign: "WARDEN"}, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.State != StateAwaitingBiometric {
		t.Errorf("expected AWAITING_BIOMETRIC, got %s", next.State)
	}
	if !eff.RegisterUser || !eff.GrantAdmin || eff.SubmitRequest {
		t.Errorf("unexpected effect: %+v", eff)
	}
}

func TestAdmission_OnIdentity_AdminRoleEnrolledGoesActive(t *testing.T) {
	user := &User{ID: "u-1", Callsign: "WARDEN", BiometricRef: "bio/u-1"}
	next, eff, err := atIdentity(TrackOperative).OnIdentity(IdentityFacts{User: user, HasAdminRole: true}, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.State != StateActive || next.Track != TrackAdmin {
		t.Errorf("expected ACTIVE admin admission, got %+v", next)
	}
	if !eff.IssueSession || eff.GrantAdmin || eff.RegisterUser {
		t.Errorf("unexpected effect: %+v", eff)
	}
}

func TestAdmission_OnIdentity_RegisteredOperativeUsesStoredCallsign(t *testing.T) {
	user := &User{ID: "u-1", Callsign: "NIGHTHAWK", BiometricRef: "bio/u-1"}
	next, eff, err := atIdentity(TrackOperative).OnIdentity(IdentityFacts{Callsign: "OTHER", User: user}, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.State != StateAwaitingApproval || next.Callsign != "NIGHTHAWK" {
		t.Errorf("unexpected admission: %+v", next)
	}
	if next.NeedsBiometric {
		t.Errorf("enrolled user should not need a biometric")
	}
	if !eff.SubmitRequest || eff.RegisterUser {
		t.Errorf("unexpected effect: %+v", eff)
	}
}

func TestAdmission_OnIdentity_NoInviteDenied(t *testing.T) {
	a := atIdentity(TrackOperative)
	next, _, err := a.OnIdentity(IdentityFacts{Callsign: "NIGHTHAWK", InviteKey: "KEY-AAAAAA"}, t0)
	if !errors.Is(err, ErrIdentityDenied) {
		t.Fatalf("expected ErrIdentityDenied, got: %v", err)
	}
	if next != a {
		t.Errorf("expected admission unchanged, got %+v", next)
	}
}

func TestAdmission_OnIdentity_InvitePolicies(t *testing.T) {
	tests := []struct {
		name      string
		facts     IdentityFacts
		wantState AdmissionState
		wantSkip  bool
	}{
		{
			name:      "invite queues for approval",
			facts:     IdentityFacts{Callsign: "NIGHTHAWK", InviteKey: "KEY-AAAAAA", InviteValid: true},
			wantState: StateAwaitingApproval,
		},
		{
			name: "invite skips approval when configured",
			facts: IdentityFacts{
				Callsign: "NIGHTHAWK", InviteKey: "KEY-AAAAAA", InviteValid: true,
				Policy: AdmissionPolicy{InvitedSkipApproval: true},
			},
			wantState: StateAwaitingBiometric,
			wantSkip:  true,
		},
		{
			name: "uninvited queues when allowed",
			facts: IdentityFacts{
				Callsign: "NIGHTHAWK",
				Policy:   AdmissionPolicy{AllowUninvitedQueue: true},
			},
			wantState: StateAwaitingApproval,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, eff, err := atIdentity(TrackOperative).OnIdentity(tc.facts, t0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next.State != tc.wantState || next.SkipApproval != tc.wantSkip {
				t.Errorf("got state=%s skip=%v", next.State, next.SkipApproval)
			}
			if !eff.RegisterUser || !next.NeedsBiometric {
				t.Errorf("newcomer must register and enrol: %+v", eff)
			}
			if tc.facts.InviteValid && eff.ConsumeInvite != tc.facts.InviteKey {
				t.Errorf("expected invite consumed, got %q", eff.ConsumeInvite)
			}
		})
	}
}

func TestAdmission_OnIdentity_BlockedResets(t *testing.T) {
	user := &User{ID: "u-1", Callsign: "NIGHTHAWK", IsBlocked: true}
	next, _, err := atIdentity(TrackOperative).OnIdentity(IdentityFacts{User: user}, t0)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got: %v", err)
	}
	if next.State != StateAwaitingGateway || next.Notice != NoticeBlocked {
		t.Errorf("expected reset with notice, got %+v", next)
	}
}

func TestAdmission_OperativeRoundTrip(t *testing.T) {
	a, _, err := atIdentity(TrackOperative).OnIdentity(IdentityFacts{
		Callsign: "NIGHTHAWK", InviteKey: "KEY-AAAAAA", InviteValid: true,
	}, t0)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	a.RequestID = "req-1"

	pending := &SessionRequest{ID: "req-1", Status: RequestPending}
	if got := a.OnRequest(pending, t0); got.State != StateAwaitingApproval {
		t.Fatalf("pending request must hold the admission, got %s", got.State)
	}

	approved := &SessionRequest{ID: "req-1", Status: RequestApproved, SessionCode: "4471"}
	a = a.OnRequest(approved, t0)
	if a.State != StateAwaitingBiometric {
		t.Fatalf("expected AWAITING_BIOMETRIC, got %s", a.State)
	}

	a, eff, err := a.OnBiometric(t0)
	if err != nil || !eff.RecordBiometric {
		t.Fatalf("biometric: %v %+v", err, eff)
	}
	if a.State != StateAwaitingSessionCode {
		t.Fatalf("expected AWAITING_SESSION_CODE, got %s", a.State)
	}

	same, _, err := a.OnSessionCode("1000", approved, t0)
	if !errors.Is(err, ErrInvalidSessionCode) {
		t.Fatalf("expected ErrInvalidSessionCode, got: %v", err)
	}
	if same.State != StateAwaitingSessionCode {
		t.Fatalf("mismatch must not move the admission, got %s", same.State)
	}

	a, eff, err = a.OnSessionCode(" 4471 ", approved, t0)
	if err != nil {
		t.Fatalf("session code: %v", err)
	}
	if a.State != StateActive || !eff.IssueSession || !eff.ConfirmRequest {
		t.Errorf("expected ACTIVE with session issued, got %+v %+v", a, eff)
	}
}

func TestAdmission_OnRequest_TerminalOutcomes(t *testing.T) {
	base := Admission{UserID: "u-1", State: StateAwaitingApproval, RequestID: "req-1", Callsign: "NIGHTHAWK"}

	tests := []struct {
		name   string
		req    *SessionRequest
		notice string
	}{
		{"denied", &SessionRequest{ID: "req-1", Status: RequestDenied}, NoticeRequestDenied},
		{"expired", &SessionRequest{ID: "req-1", Status: RequestExpired}, NoticeRequestExpired},
		{"missing", nil, NoticeRequestWithdrawn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := base.OnRequest(tc.req, t0)
			if got.State != StateAwaitingGateway || got.Notice != tc.notice {
				t.Errorf("got %+v", got)
			}
			if got.Callsign != "" || got.RequestID != "" {
				t.Errorf("reset must discard session state: %+v", got)
			}
		})
	}
}

func TestAdmission_OnSessionCode_ExpiredRequestResets(t *testing.T) {
	a := Admission{UserID: "u-1", State: StateAwaitingSessionCode, RequestID: "req-1"}
	next, _, err := a.OnSessionCode("4471", &SessionRequest{ID: "req-1", Status: RequestExpired}, t0)
	if !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending, got: %v", err)
	}
	if next.State != StateAwaitingGateway || next.Notice != NoticeRequestExpired {
		t.Errorf("expected reset, got %+v", next)
	}
}

func TestAdmission_CancelWithdrawsPendingRequest(t *testing.T) {
	a := Admission{UserID: "u-1", State: StateAwaitingApproval, RequestID: "req-1"}
	next, eff, err := a.Cancel(t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eff.CancelRequest != "req-1" || next.State != StateAwaitingGateway {
		t.Errorf("unexpected cancel result: %+v %+v", next, eff)
	}

	if _, _, err := (Admission{State: StateActive}).Cancel(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel from ACTIVE should fail, got: %v", err)
	}
}

func TestAdmission_Enforce(t *testing.T) {
	states := []AdmissionState{
		StateAwaitingGateway, StateAwaitingIdentity, StateAwaitingApproval,
		StateAwaitingBiometric, StateAwaitingSessionCode, StateActive,
	}
	blocked := &User{ID: "u-1", IsBlocked: true}

	for _, s := range states {
		a := Admission{UserID: "u-1", State: s, Callsign: "NIGHTHAWK"}
		next, eff, forced := a.Enforce(blocked, t0)
		if !forced || next.State != StateAwaitingGateway || next.Notice != NoticeBlocked {
			t.Errorf("%s: expected forced reset, got %+v forced=%v", s, next, forced)
		}
		if eff.RevokeSession != (s == StateActive) {
			t.Errorf("%s: unexpected revoke=%v", s, eff.RevokeSession)
		}
	}

	active := Admission{UserID: "u-1", State: StateActive}
	next, _, forced := active.Enforce(nil, t0)
	if !forced || next.Notice != NoticeUserRemoved {
		t.Errorf("deleted user must be reset, got %+v", next)
	}

	if _, _, forced := active.Enforce(&User{ID: "u-1"}, t0); forced {
		t.Errorf("healthy user must not be reset")
	}
}

func TestAdmissionState_CanTransitionTo(t *testing.T) {
	if !StateAwaitingApproval.CanTransitionTo(StateAwaitingSessionCode) {
		t.Error("approval -> session code should be allowed")
	}
	if StateAwaitingGateway.CanTransitionTo(StateActive) {
		t.Error("gateway -> active must not be allowed")
	}
	if !StateActive.CanTransitionTo(StateAwaitingGateway) {
		t.Error("every state may fall back to the gateway")
	}
}
