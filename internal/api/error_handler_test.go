package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/core/domain"
)

func render(t *testing.T, err error) (int, errorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/admission/gateway", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return rec.Code, resp
}

func TestHTTPErrorHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrGatewayMismatch, http.StatusUnauthorized, "GATEWAY_MISMATCH"},
		{domain.ErrIdentityDenied, http.StatusForbidden, "IDENTITY_DENIED"},
		{domain.ErrInvalidSessionCode, http.StatusUnauthorized, "INVALID_SESSION_CODE"},
		{domain.ErrDuplicatePendingRequest, http.StatusConflict, "DUPLICATE_PENDING_REQUEST"},
		{domain.ErrAttachmentTooLarge, http.StatusRequestEntityTooLarge, "ATTACHMENT_TOO_LARGE"},
		{domain.ErrBiometricTooLarge, http.StatusRequestEntityTooLarge, "BIOMETRIC_TOO_LARGE"},
		{domain.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
		{domain.ErrRequestNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{domain.ErrBlocked, http.StatusForbidden, "BLOCKED"},
		{domain.ErrCallsignTaken, http.StatusConflict, "CALLSIGN_TAKEN"},
		{domain.ErrEmptyMessage, http.StatusUnprocessableEntity, "EMPTY_MESSAGE"},
		{domain.ErrProtectedUser, http.StatusForbidden, "PROTECTED_USER"},
		{domain.ErrRequestNotPending, http.StatusConflict, "REQUEST_NOT_PENDING"},
		{domain.ErrSessionRevoked, http.StatusUnauthorized, "SESSION_REVOKED"},
		{fmt.Errorf("approve: %w", domain.ErrRequestNotPending), http.StatusConflict, "REQUEST_NOT_PENDING"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, resp := render(t, tt.err)
			if status != tt.status {
				t.Errorf("expected %d, got: %d", tt.status, status)
			}
			if resp.Code != tt.code {
				t.Errorf("expected code %s, got: %s", tt.code, resp.Code)
			}
		})
	}
}

func TestHTTPErrorHandler_EchoErrors(t *testing.T) {
	status, resp := render(t, echo.NewHTTPError(http.StatusUnprocessableEntity, "callsign is required"))
	if status != http.StatusUnprocessableEntity || resp.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected 422 VALIDATION_FAILED, got: %d %s", status, resp.Code)
	}
	if resp.Error != "callsign is required" {
		t.Fatalf("expected message kept, got: %s", resp.Error)
	}

	wrapped := echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(domain.ErrSessionRevoked)
	status, resp = render(t, wrapped)
	if status != http.StatusUnauthorized || resp.Code != "SESSION_REVOKED" {
		t.Fatalf("expected internal domain error to win, got: %d %s", status, resp.Code)
	}
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	status, resp := render(t, errors.New("mongo exploded"))
	if status != http.StatusInternalServerError || resp.Code != "INTERNAL" {
		t.Fatalf("expected 500 INTERNAL, got: %d %s", status, resp.Code)
	}
	if resp.Error != "internal server error" {
		t.Fatalf("expected generic message, got: %s", resp.Error)
	}
}
