package ports

import (
	"context"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// UserRepository persists registered users. Callsigns are unique.
type UserRepository interface {
	// Create inserts u. Returns domain.ErrCallsignTaken on a callsign collision.
	Create(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByCallsign(ctx context.Context, callsign string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	SetCallsign(ctx context.Context, id, callsign string) error
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetAdmin(ctx context.Context, id string, admin bool) error
	SetBiometric(ctx context.Context, id, ref string) error
	Delete(ctx context.Context, id string) error
}

// AdminRoleRepository persists administrative authority keyed by user id.
type AdminRoleRepository interface {
	// Grant is idempotent.
	Grant(ctx context.Context, role *domain.AdminRole) error
	Find(ctx context.Context, userID string) (*domain.AdminRole, error)
	SetCallsign(ctx context.Context, userID, callsign string) error
	Revoke(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*domain.AdminRole, error)
}

// GatewayRepository persists the gateway singleton. Writes are last-write-wins.
type GatewayRepository interface {
	// Get returns domain.ErrNotFound when the gateway was never seeded.
	Get(ctx context.Context) (*domain.Gateway, error)
	// Seed stores g only if no gateway exists yet and reports whether it did.
	Seed(ctx context.Context, g *domain.Gateway) (bool, error)
	SetPhrase(ctx context.Context, kind domain.GatewayKind, hash string, at time.Time) error
	SetPolicy(ctx context.Context, policy domain.AdmissionPolicy, at time.Time) error
}

// InviteKeyRepository persists single-use invite keys.
type InviteKeyRepository interface {
	// Create returns domain.ErrDuplicateKey when the key already exists.
	Create(ctx context.Context, k *domain.InviteKey) error
	Find(ctx context.Context, key string) (*domain.InviteKey, error)
	// Consume marks key used by userID if and only if it is still unused.
	// It reports false for unknown or already used keys.
	Consume(ctx context.Context, key, userID string, at time.Time) (bool, error)
	// Release undoes a Consume by userID. It reports false when the key is
	// unused or was consumed by someone else.
	Release(ctx context.Context, key, userID string) (bool, error)
	List(ctx context.Context) ([]*domain.InviteKey, error)
}

// SessionRequestRepository persists the approval queue. At most one pending
// request exists per user.
type SessionRequestRepository interface {
	// Create returns domain.ErrDuplicatePendingRequest when the user already
	// has a pending request.
	Create(ctx context.Context, r *domain.SessionRequest) error
	FindByID(ctx context.Context, id string) (*domain.SessionRequest, error)
	FindPendingByUser(ctx context.Context, userID string) (*domain.SessionRequest, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.SessionRequest, error)
	// ListStale returns pending requests created before cutoff and approved,
	// unconfirmed requests resolved before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*domain.SessionRequest, error)

	// Resolve moves a pending request to status. The returned request is the
	// stored state after the call; won is false when the request was no
	// longer pending, in which case nothing was written.
	Resolve(ctx context.Context, id string, status domain.RequestStatus, code, by string, at time.Time) (req *domain.SessionRequest, won bool, err error)
	// Expire moves a request from status from to expired. It reports false
	// when the request is no longer in status from.
	Expire(ctx context.Context, id string, from domain.RequestStatus, at time.Time) (bool, error)
	Confirm(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// IdentityChangeRepository persists callsign change requests.
type IdentityChangeRepository interface {
	// Create returns domain.ErrDuplicatePendingRequest when the user already
	// has a pending change.
	Create(ctx context.Context, r *domain.IdentityChangeRequest) error
	FindByID(ctx context.Context, id string) (*domain.IdentityChangeRequest, error)
	List(ctx context.Context) ([]*domain.IdentityChangeRequest, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// MessageQuery selects messages from the channel log.
type MessageQuery struct {
	// Viewer restricts results to what the viewer may see. Nil returns all.
	Viewer   *domain.Viewer
	AfterSeq int64
	Limit    int
}

// MessageRepository persists the append-only channel log.
type MessageRepository interface {
	// Append assigns m.Seq from a store-wide counter and inserts m.
	Append(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// List returns messages in ascending Seq order.
	List(ctx context.Context, q MessageQuery) ([]*domain.Message, error)
	// Purge deletes every message. It returns how many were removed and the
	// attachment refs they held.
	Purge(ctx context.Context) (int64, []string, error)
}
