package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// domainErrors maps sentinel errors to their HTTP status and machine code.
// Order matters: the first match wins.
var domainErrors = []struct {
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
	{domain.ErrBiometricMissing, http.StatusUnprocessableEntity, "BIOMETRIC_MISSING"},
	{domain.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrBlocked, http.StatusForbidden, "BLOCKED"},
	{domain.ErrCallsignTaken, http.StatusConflict, "CALLSIGN_TAKEN"},
	{domain.ErrInvalidCallsign, http.StatusUnprocessableEntity, "INVALID_CALLSIGN"},
	{domain.ErrEmptyMessage, http.StatusUnprocessableEntity, "EMPTY_MESSAGE"},
	{domain.ErrInvalidRecipient, http.StatusUnprocessableEntity, "INVALID_RECIPIENT"},
	{domain.ErrInvalidPhrase, http.StatusUnprocessableEntity, "INVALID_PHRASE"},
	{domain.ErrProtectedUser, http.StatusForbidden, "PROTECTED_USER"},
	{domain.ErrRequestNotPending, http.StatusConflict, "REQUEST_NOT_PENDING"},
	{domain.ErrDuplicateKey, http.StatusConflict, "DUPLICATE_KEY"},
	{domain.ErrSessionRevoked, http.StatusUnauthorized, "SESSION_REVOKED"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and a stable code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<CODE>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, validation, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			if status, resp, ok := matchDomain(he.Internal); ok {
				return status, resp
			}
		}
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: statusCode(he.Code)}
	}

	if status, resp, ok := matchDomain(err); ok {
		log.Debug().Err(err).Str("path", c.Path()).Str("code", resp.Code).Msg("request rejected")
		return status, resp
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "INTERNAL"}
}

func matchDomain(err error) (int, errorResponse, bool) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return m.status, errorResponse{Error: err.Error(), Code: m.code}, true
		}
	}
	return 0, errorResponse{}, false
}

// statusCode derives a code for errors raised by echo or the handlers.
func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
