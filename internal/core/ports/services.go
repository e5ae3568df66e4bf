package ports

import (
	"context"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// TokenKind distinguishes anonymous client tokens from channel session tokens.
type TokenKind string

const (
	TokenClient  TokenKind = "client"
	TokenSession TokenKind = "session"
)

// Principal is the verified bearer of a token.
type Principal struct {
	UserID           string
	Kind             TokenKind
	Callsign         string
	IsAdmin          bool
	SessionID        string
	SessionStartedAt time.Time
}

// Actor returns the principal as a service actor.
func (p Principal) Actor() domain.Actor {
	return domain.Actor{
		UserID:           p.UserID,
		Callsign:         p.Callsign,
		IsAdmin:          p.IsAdmin,
		SessionStartedAt: p.SessionStartedAt,
	}
}

// SessionGrant is a freshly issued channel session.
type SessionGrant struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService mints and verifies bearer tokens.
type TokenService interface {
	// Anonymous mints a client token for a brand new anonymous identity.
	Anonymous() (userID, token string, err error)
	IssueSession(ctx context.Context, user *domain.User, isAdmin bool) (*SessionGrant, error)
	// Verify parses raw and checks it is of kind. Session tokens are also
	// checked against the session registry.
	Verify(ctx context.Context, raw string, kind TokenKind) (*Principal, error)
	Revoke(ctx context.Context, userID string) error
}

// AccessService guards the gateway and invite keys.
type AccessService interface {
	CheckGateway(ctx context.Context, input string) (domain.GatewayTrack, error)
	UpdateGateway(ctx context.Context, actor domain.Actor, kind domain.GatewayKind, phrase string) error
	Policy(ctx context.Context) (domain.AdmissionPolicy, error)
	UpdatePolicy(ctx context.Context, actor domain.Actor, policy domain.AdmissionPolicy) error
	IssueInviteKey(ctx context.Context, actor domain.Actor) (*domain.InviteKey, error)
	ValidInviteKey(ctx context.Context, key string) (bool, error)
	ConsumeInviteKey(ctx context.Context, key, userID string) (bool, error)
	ReleaseInviteKey(ctx context.Context, key, userID string) error
	ListInviteKeys(ctx context.Context, actor domain.Actor) ([]*domain.InviteKey, error)
}

// AdmissionResult is the admission after an operation, plus the session
// when the operation made the client ACTIVE.
type AdmissionResult struct {
	Admission domain.Admission `json:"admission"`
	Session   *SessionGrant    `json:"session,omitempty"`
}

// AdmissionService drives clients through the admission flow.
type AdmissionService interface {
	State(ctx context.Context, userID string) (*AdmissionResult, error)
	SubmitGateway(ctx context.Context, userID, phrase string) (*AdmissionResult, error)
	SubmitIdentity(ctx context.Context, userID, callsign, inviteKey string) (*AdmissionResult, error)
	// AwaitApproval blocks until the caller leaves AWAITING_APPROVAL or ctx ends.
	AwaitApproval(ctx context.Context, userID string) (*AdmissionResult, error)
	// Watch emits the admission every time it changes until ctx ends.
	Watch(ctx context.Context, userID string) (<-chan domain.Admission, error)
	SubmitBiometric(ctx context.Context, userID string, data []byte, contentType string) (*AdmissionResult, error)
	SubmitSessionCode(ctx context.Context, userID, code string) (*AdmissionResult, error)
	Cancel(ctx context.Context, userID string) (*AdmissionResult, error)
	Logout(ctx context.Context, userID string) (*AdmissionResult, error)
	// Terminate force-resets a client and revokes its session.
	Terminate(ctx context.Context, userID, notice string) error
}

// ApprovalService manages the session-request and identity-change queues.
type ApprovalService interface {
	Submit(ctx context.Context, userID, callsign string) (*domain.SessionRequest, error)
	Get(ctx context.Context, id string) (*domain.SessionRequest, error)
	Approve(ctx context.Context, actor domain.Actor, id string) (string, error)
	Deny(ctx context.Context, actor domain.Actor, id string) error
	Confirm(ctx context.Context, id string) error
	Withdraw(ctx context.Context, id string) error
	ListPending(ctx context.Context, actor domain.Actor) ([]*domain.SessionRequest, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)

	// SubmitIdentityChange queues a callsign change. Administrators change
	// their own callsign directly and get a nil request back.
	SubmitIdentityChange(ctx context.Context, actor domain.Actor, callsign string) (*domain.IdentityChangeRequest, error)
	ApproveIdentityChange(ctx context.Context, actor domain.Actor, id string) error
	DenyIdentityChange(ctx context.Context, actor domain.Actor, id string) error
	ListIdentityChanges(ctx context.Context, actor domain.Actor) ([]*domain.IdentityChangeRequest, error)
}

// AttachmentInput is an attachment as uploaded by a sender.
type AttachmentInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// SendInput carries a message to post on the channel.
type SendInput struct {
	Recipient  string
	Content    string
	Attachment *AttachmentInput
}

// MessagingService posts to and reads from the channel log.
type MessagingService interface {
	Send(ctx context.Context, actor domain.Actor, in SendInput) (*domain.Message, error)
	History(ctx context.Context, viewer domain.Viewer, afterSeq int64, limit int) ([]*domain.Message, error)
	// Subscribe replays visible history and then streams new messages in
	// ascending order until ctx ends.
	Subscribe(ctx context.Context, viewer domain.Viewer) (<-chan *domain.Message, error)
	Attachment(ctx context.Context, viewer domain.Viewer, messageID string) (*domain.Attachment, []byte, error)
	Purge(ctx context.Context, actor domain.Actor) (int, error)
}

// ModerationService holds the administrator controls over users.
type ModerationService interface {
	Block(ctx context.Context, actor domain.Actor, userID string) error
	Unblock(ctx context.Context, actor domain.Actor, userID string) error
	DeleteUser(ctx context.Context, actor domain.Actor, userID string) error
	Terminate(ctx context.Context, actor domain.Actor, userID string) error
	Broadcast(ctx context.Context, actor domain.Actor, recipient, content string) (*domain.Message, error)
	ListUsers(ctx context.Context, actor domain.Actor) ([]*domain.User, error)
}
