package ports

import (
	"context"
	"time"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// BlobStore keeps opaque binary objects: biometric captures and attachments.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns domain.ErrBlobNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// AdmissionStore keeps the server-held admission of each client.
type AdmissionStore interface {
	// Load returns nil, nil when nothing is stored for userID.
	Load(ctx context.Context, userID string) (*domain.Admission, error)
	Save(ctx context.Context, a domain.Admission) error
	Delete(ctx context.Context, userID string) error
}

// SessionRegistry tracks the one live session id per user. Revoking it
// invalidates every token carrying that id.
type SessionRegistry interface {
	Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error
	IsActive(ctx context.Context, userID, sessionID string) (bool, error)
	Revoke(ctx context.Context, userID string) error
}
