package domain

import (
	"crypto/subtle"
	"strings"
	"time"
)

// AdmissionState is a step of the admission flow a client walks through
// before joining the channel.
type AdmissionState string

const (
	StateAwaitingGateway     AdmissionState = "AWAITING_GATEWAY"
	StateAwaitingIdentity    AdmissionState = "AWAITING_IDENTITY"
	StateAwaitingApproval    AdmissionState = "AWAITING_APPROVAL"
	StateAwaitingBiometric   AdmissionState = "AWAITING_BIOMETRIC"
	StateAwaitingSessionCode AdmissionState = "AWAITING_SESSION_CODE"
	StateActive              AdmissionState = "ACTIVE"
)

// admissionTransitions lists every forward edge of the flow. Any state may
// also fall back to AWAITING_GATEWAY.
var admissionTransitions = map[AdmissionState][]AdmissionState{
	StateAwaitingGateway:     {StateAwaitingIdentity},
	StateAwaitingIdentity:    {StateAwaitingApproval, StateAwaitingBiometric, StateActive},
	StateAwaitingApproval:    {StateAwaitingBiometric, StateAwaitingSessionCode},
	StateAwaitingBiometric:   {StateAwaitingSessionCode, StateActive},
	StateAwaitingSessionCode: {StateActive},
}

// CanTransitionTo reports whether the flow may move from s to next.
func (s AdmissionState) CanTransitionTo(next AdmissionState) bool {
	if next == StateAwaitingGateway {
		return s != StateAwaitingGateway
	}
	for _, allowed := range admissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reasons attached to an admission that was sent back to the gateway.
const (
	NoticeBlocked           = "BLOCKED"
	NoticeUserRemoved       = "USER_REMOVED"
	NoticeRequestDenied     = "REQUEST_DENIED"
	NoticeRequestExpired    = "REQUEST_EXPIRED"
	NoticeRequestWithdrawn  = "REQUEST_WITHDRAWN"
	NoticeSessionTerminated = "SESSION_TERMINATED"
	NoticeCancelled         = "CANCELLED"
	NoticeLoggedOut         = "LOGGED_OUT"
)

// Admission is the server-held admission state of one anonymous client.
type Admission struct {
	UserID         string         `json:"user_id"`
	State          AdmissionState `json:"state"`
	Track          GatewayTrack   `json:"track,omitempty"`
	Callsign       string         `json:"callsign,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
	NeedsBiometric bool           `json:"needs_biometric,omitempty"`
	SkipApproval   bool           `json:"skip_approval,omitempty"`
	InviteKey      string         `json:"invite_key,omitempty"`
	Notice         string         `json:"notice,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Effect lists the side effects a transition asks the caller to perform.
// Transitions themselves never touch storage.
type Effect struct {
	RegisterUser    bool
	GrantAdmin      bool
	ConsumeInvite   string
	SubmitRequest   bool
	RecordBiometric bool
	ConfirmRequest  bool
	IssueSession    bool
	RevokeSession   bool
	CancelRequest   string
}

// IdentityFacts is everything the identity step needs to know about the
// caller, gathered by the service before the transition runs.
type IdentityFacts struct {
	// Callsign is the canonical requested callsign, empty when none was given.
	Callsign string
	// User is the record registered to the caller's id, nil when unknown.
	User *User
	// HasAdminRole is true when the caller's id holds an AdminRole.
	HasAdminRole bool
	InviteKey    string
	InviteValid  bool
	Policy       AdmissionPolicy
}

// NewAdmission returns a fresh admission at the gateway.
func NewAdmission(userID string, now time.Time) Admission {
	return Admission{UserID: userID, State: StateAwaitingGateway, UpdatedAt: now}
}

// IsAdminTrack reports whether the admission follows the privileged path.
func (a Admission) IsAdminTrack() bool {
	return a.Track == TrackAdmin
}

func (a Admission) to(state AdmissionState, now time.Time) Admission {
	a.State = state
	a.Notice = ""
	a.UpdatedAt = now
	return a
}

// Reset discards all progress and returns to the gateway with notice.
func (a Admission) Reset(notice string, now time.Time) Admission {
	return Admission{UserID: a.UserID, State: StateAwaitingGateway, Notice: notice, UpdatedAt: now}
}

// OnGateway applies the result of a gateway check.
func (a Admission) OnGateway(track GatewayTrack, now time.Time) (Admission, Effect, error) {
	if a.State != StateAwaitingGateway {
		return a, Effect{}, ErrInvalidTransition
	}
	if track != TrackOperative && track != TrackAdmin {
		return a, Effect{}, ErrGatewayMismatch
	}
	next := a.to(StateAwaitingIdentity, now)
	next.Track = track
	return next, Effect{}, nil
}

// OnIdentity resolves the identity step. Admin-track callers skip approval
// and enrol a biometric only when none is on record. Operative callers that
// are already registered reuse their stored callsign; newcomers need a valid
// invite unless the policy lets them queue uninvited.
func (a Admission) OnIdentity(f IdentityFacts, now time.Time) (Admission, Effect, error) {
	if a.State != StateAwaitingIdentity {
		return a, Effect{}, ErrInvalidTransition
	}
	if f.User != nil && f.User.IsBlocked {
		return a.Reset(NoticeBlocked, now), Effect{}, ErrBlocked
	}

	var eff Effect
	next := a
	next.Callsign = f.Callsign
	if f.User != nil {
		next.Callsign = f.User.Callsign
	} else if f.Callsign == "" {
		return a, Effect{}, ErrInvalidCallsign
	}

	if a.IsAdminTrack() || f.HasAdminRole {
		next.Track = TrackAdmin
		eff.RegisterUser = f.User == nil
		eff.GrantAdmin = !f.HasAdminRole
		if f.User.HasBiometric() {
			eff.IssueSession = true
			return next.to(StateActive, now), eff, nil
		}
		next.NeedsBiometric = true
		return next.to(StateAwaitingBiometric, now), eff, nil
	}

	switch {
	case f.User != nil:
		next.NeedsBiometric = !f.User.HasBiometric()
	case f.InviteValid:
		eff.RegisterUser = true
		eff.ConsumeInvite = f.InviteKey
		next.InviteKey = f.InviteKey
		next.NeedsBiometric = true
		if f.Policy.InvitedSkipApproval {
			next.SkipApproval = true
			return next.to(StateAwaitingBiometric, now), eff, nil
		}
	case f.Policy.AllowUninvitedQueue:
		eff.RegisterUser = true
		next.NeedsBiometric = true
	default:
		return a, Effect{}, ErrIdentityDenied
	}

	eff.SubmitRequest = true
	return next.to(StateAwaitingApproval, now), eff, nil
}

// OnRequest folds the latest view of the caller's session request into the
// admission. A nil request means it no longer exists.
func (a Admission) OnRequest(req *SessionRequest, now time.Time) Admission {
	if a.RequestID == "" {
		return a
	}
	switch a.State {
	case StateAwaitingApproval, StateAwaitingBiometric, StateAwaitingSessionCode:
	default:
		return a
	}

	switch {
	case req == nil:
		return a.Reset(NoticeRequestWithdrawn, now)
	case req.Status == RequestDenied:
		return a.Reset(NoticeRequestDenied, now)
	case req.Status == RequestExpired:
		return a.Reset(NoticeRequestExpired, now)
	case req.Status == RequestApproved && a.State == StateAwaitingApproval:
		if a.NeedsBiometric {
			return a.to(StateAwaitingBiometric, now)
		}
		return a.to(StateAwaitingSessionCode, now)
	}
	return a
}

// OnBiometric records that an enrollment capture was provided.
func (a Admission) OnBiometric(now time.Time) (Admission, Effect, error) {
	if a.State != StateAwaitingBiometric {
		return a, Effect{}, ErrInvalidTransition
	}
	next := a
	next.NeedsBiometric = false
	eff := Effect{RecordBiometric: true}
	if a.IsAdminTrack() || a.SkipApproval {
		eff.IssueSession = true
		return next.to(StateActive, now), eff, nil
	}
	return next.to(StateAwaitingSessionCode, now), eff, nil
}

// OnSessionCode checks code against the approved request. A mismatch leaves
// the admission untouched; a request that is no longer approved sends the
// client back to the gateway.
func (a Admission) OnSessionCode(code string, req *SessionRequest, now time.Time) (Admission, Effect, error) {
	if a.State != StateAwaitingSessionCode {
		return a, Effect{}, ErrInvalidTransition
	}
	if req == nil || req.Status != RequestApproved {
		return a.OnRequest(req, now), Effect{}, ErrRequestNotPending
	}
	code = strings.TrimSpace(code)
	if code == "" || subtle.ConstantTimeCompare([]byte(code), []byte(req.SessionCode)) != 1 {
		return a, Effect{}, ErrInvalidSessionCode
	}
	return a.to(StateActive, now), Effect{IssueSession: true, ConfirmRequest: true}, nil
}

// Cancel abandons an admission in progress and withdraws its request.
func (a Admission) Cancel(now time.Time) (Admission, Effect, error) {
	if a.State == StateAwaitingGateway || a.State == StateActive {
		return a, Effect{}, ErrInvalidTransition
	}
	return a.Reset(NoticeCancelled, now), Effect{CancelRequest: a.RequestID}, nil
}

// Logout ends an active session.
func (a Admission) Logout(now time.Time) (Admission, Effect, error) {
	if a.State != StateActive {
		return a, Effect{}, ErrInvalidTransition
	}
	return a.Reset(NoticeLoggedOut, now), Effect{RevokeSession: true}, nil
}

// Enforce applies the server-side view of the caller's user record. A blocked
// or deleted user is sent back to the gateway from any state. The returned
// bool reports whether the admission was forced.
func (a Admission) Enforce(user *User, now time.Time) (Admission, Effect, bool) {
	var notice string
	switch {
	case user != nil && user.IsBlocked:
		notice = NoticeBlocked
	case user == nil && a.State != StateAwaitingGateway && a.State != StateAwaitingIdentity:
		notice = NoticeUserRemoved
	default:
		return a, Effect{}, false
	}
	if a.State == StateAwaitingGateway && a.Notice == notice {
		return a, Effect{}, false
	}
	return a.Reset(notice, now), Effect{RevokeSession: a.State == StateActive}, true
}
