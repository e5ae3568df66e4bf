package domain

import (
	"strings"
	"time"
)

// RecipientAll addresses every participant of the channel.
const RecipientAll = "ALL"

const (
	callsignMinLen = 2
	callsignMaxLen = 24
)

// User is a registered participant of the portal.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Callsign     string    `json:"callsign" bson:"callsign"`
	IsAdmin      bool      `json:"is_admin" bson:"is_admin"`
	IsBlocked    bool      `json:"is_blocked" bson:"is_blocked"`
	BiometricRef string    `json:"biometric_ref,omitempty" bson:"biometric_ref,omitempty"`
	RegisteredAt time.Time `json:"registered_at" bson:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// HasBiometric reports whether an enrollment capture is on record.
func (u *User) HasBiometric() bool {
	return u != nil && u.BiometricRef != ""
}

// AdminRole marks a user id as holding administrative authority. It is keyed
// by id only; the callsign is a mirror kept for display.
type AdminRole struct {
	UserID    string    `json:"user_id" bson:"_id"`
	Callsign  string    `json:"callsign" bson:"callsign"`
	GrantedAt time.Time `json:"granted_at" bson:"granted_at"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID           string
	Callsign         string
	IsAdmin          bool
	SessionStartedAt time.Time
}

// CanonicalCallsign trims and upper-cases a callsign.
func CanonicalCallsign(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseCallsign canonicalises s and validates it. Callsigns are 2-24
// characters of A-Z, 0-9, '_', '-' or '.'; "ALL" is reserved.
func ParseCallsign(s string) (string, error) {
	c := CanonicalCallsign(s)
	if len(c) < callsignMinLen || len(c) > callsignMaxLen || c == RecipientAll {
		return "", ErrInvalidCallsign
	}
	for _, r := range c {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return "", ErrInvalidCallsign
		}
	}
	return c, nil
}
