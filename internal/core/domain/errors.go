package domain

import "errors"

// Admission errors. All of them leave the admission state unchanged unless
// noted otherwise.
var (
	ErrGatewayMismatch    = errors.New("gateway sequence mismatch")
	ErrIdentityDenied     = errors.New("identity denied: valid invite key required")
	ErrInvalidSessionCode = errors.New("invalid session code")
	ErrInvalidTransition  = errors.New("invalid admission transition")
	// ErrBlocked is returned after the admission has been reset to the gateway.
	ErrBlocked = errors.New("identity blocked")
)

// Approval queue errors.
var (
	ErrDuplicatePendingRequest = errors.New("pending session request already exists")
	ErrRequestNotPending       = errors.New("request is no longer pending")
)

// Identity errors.
var (
	ErrInvalidCallsign = errors.New("invalid callsign")
	ErrCallsignTaken   = errors.New("callsign already registered")
	ErrProtectedUser   = errors.New("operation not permitted on an administrator")
)

// Messaging errors.
var (
	ErrEmptyMessage       = errors.New("message has no content")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrBiometricTooLarge  = errors.New("biometric capture exceeds size limit")
	ErrBiometricMissing   = errors.New("biometric capture is empty")
	ErrInvalidRecipient   = errors.New("unknown recipient")
)

// Generic errors.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrSessionRevoked = errors.New("session revoked")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidPhrase  = errors.New("invalid gateway phrase")
	ErrDuplicateKey   = errors.New("key already exists")
)

// Not-found errors specialise ErrNotFound so callers can match either.
var (
	ErrUserNotFound    = notFound("user not found")
	ErrRequestNotFound = notFound("request not found")
	ErrInviteNotFound  = notFound("invite key not found")
	ErrMessageNotFound = notFound("message not found")
	ErrBlobNotFound    = notFound("blob not found")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
