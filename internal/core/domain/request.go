package domain

import "time"

// RequestStatus is the lifecycle state of a SessionRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
	RequestExpired  RequestStatus = "expired"
)

// Session codes are four digit numbers in this range.
const (
	SessionCodeMin = 1000
	SessionCodeMax = 9999
)

// SessionRequest is an approval-queue entry gating a client's progression
// from registration to the channel.
type SessionRequest struct {
	ID          string        `json:"id" bson:"_id"`
	UserID      string        `json:"user_id" bson:"user_id"`
	Callsign    string        `json:"callsign" bson:"callsign"`
	Status      RequestStatus `json:"status" bson:"status"`
	SessionCode string        `json:"-" bson:"session_code,omitempty"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	ResolvedBy  string        `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
}

// Expired reports whether r has outlived timeout at now. Pending requests age
// from creation, approved but unconfirmed ones from approval.
func (r *SessionRequest) Expired(now time.Time, timeout time.Duration) bool {
	switch r.Status {
	case RequestPending:
		return now.Sub(r.CreatedAt) > timeout
	case RequestApproved:
		return r.ConfirmedAt == nil && r.ResolvedAt != nil && now.Sub(*r.ResolvedAt) > timeout
	}
	return false
}

// IdentityChangeRequest asks an administrator to change a user's callsign.
type IdentityChangeRequest struct {
	ID                string    `json:"id" bson:"_id"`
	UserID            string    `json:"user_id" bson:"user_id"`
	CurrentCallsign   string    `json:"current_callsign" bson:"current_callsign"`
	RequestedCallsign string    `json:"requested_callsign" bson:"requested_callsign"`
	Status            string    `json:"status" bson:"status"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// IdentityChangePending is the only stored status of an identity change;
// resolution deletes the request.
const IdentityChangePending = "pending"
