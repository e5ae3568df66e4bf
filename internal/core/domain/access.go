package domain

import (
	"strings"
	"time"
)

// GatewayTrack is the outcome of a gateway check and the track a client
// follows through admission.
type GatewayTrack string

const (
	TrackRejected  GatewayTrack = "REJECTED"
	TrackOperative GatewayTrack = "OPERATIVE"
	TrackAdmin     GatewayTrack = "ADMIN"
)

// GatewayKind selects which of the two gateway phrases an update targets.
type GatewayKind string

const (
	GatewayOperative GatewayKind = "operative"
	GatewayAdmin     GatewayKind = "admin"
)

// Valid reports whether k names a known phrase.
func (k GatewayKind) Valid() bool {
	return k == GatewayOperative || k == GatewayAdmin
}

// GatewayID is the id of the gateway singleton document.
const GatewayID = "default"

// DefaultOperativePhrase is used when no gateway has been configured.
const DefaultOperativePhrase = "raven.oracle"

// AdmissionPolicy holds the admin-configurable branches of the identity step.
type AdmissionPolicy struct {
	// InvitedSkipApproval lets a first-time user holding a valid invite key
	// go straight to biometric enrollment and into the channel.
	InvitedSkipApproval bool `json:"invited_skip_approval" bson:"invited_skip_approval"`
	// AllowUninvitedQueue lets unknown users without an invite register and
	// wait in the approval queue instead of being denied.
	AllowUninvitedQueue bool `json:"allow_uninvited_queue" bson:"allow_uninvited_queue"`
}

// Gateway is the access gateway singleton. Phrases are stored as bcrypt
// hashes of their canonical form.
type Gateway struct {
	ID            string          `json:"-" bson:"_id"`
	OperativeHash string          `json:"-" bson:"operative_hash"`
	AdminHash     string          `json:"-" bson:"admin_hash"`
	Policy        AdmissionPolicy `json:"policy" bson:"policy"`
	UpdatedAt     time.Time       `json:"updated_at" bson:"updated_at"`
}

// CanonicalPhrase trims and lower-cases a gateway phrase.
func CanonicalPhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// InviteKey is a single-use registration key.
type InviteKey struct {
	Key       string     `json:"key" bson:"_id"`
	IsUsed    bool       `json:"is_used" bson:"is_used"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	CreatedBy string     `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UsedBy    string     `json:"used_by,omitempty" bson:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty" bson:"used_at,omitempty"`
}

// CanonicalInviteKey trims and upper-cases an invite key as typed by a user.
func CanonicalInviteKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
