package handler

import (
	"github.com/raven-oracle/portal/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Identity ---

type anonymousResponse struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type callsignRequest struct {
	Callsign string `json:"callsign" validate:"required,max=64"`
}

type identityChangeResponse struct {
	// Status is "applied" when the callsign changed immediately and
	// "pending" when it waits for an administrator.
	Status  string                        `json:"status"`
	Request *domain.IdentityChangeRequest `json:"request,omitempty"`
}

// --- Admission ---

type gatewayRequest struct {
	Phrase string `json:"phrase" validate:"required,max=72"`
}

type identityRequest struct {
	Callsign  string `json:"callsign"   validate:"max=64"`
	InviteKey string `json:"invite_key" validate:"max=32"`
}

type sessionCodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// --- Messages ---

type attachmentRequest struct {
	Name     string `json:"name"      validate:"max=255"`
	MimeType string `json:"mime_type" validate:"max=127"`
	// Data is base64 in JSON.
	Data []byte `json:"data" validate:"required"`
}

type sendMessageRequest struct {
	Recipient  string             `json:"recipient" validate:"max=64"`
	Content    string             `json:"content"   validate:"max=8000"`
	Attachment *attachmentRequest `json:"attachment"`
}

type historyResponse struct {
	Messages []*domain.Message `json:"messages"`
	// NextSeq is the cursor for the following page, 0 when the page is empty.
	NextSeq int64 `json:"next_seq"`
}

// --- Admin ---

type updateGatewayRequest struct {
	Kind   string `json:"kind"   validate:"required,oneof=operative admin"`
	Phrase string `json:"phrase" validate:"required,max=72"`
}

type codeResponse struct {
	Code string `json:"code"`
}

type broadcastRequest struct {
	Recipient string `json:"recipient" validate:"max=64"`
	Content   string `json:"content"   validate:"required,max=8000"`
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

type statusResponse struct {
	Status string `json:"status"`
}
