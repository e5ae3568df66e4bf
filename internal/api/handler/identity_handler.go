package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/ports"
)

// IdentityHandler mints anonymous identities and takes callsign changes.
type IdentityHandler struct {
	tokens    ports.TokenService
	approvals ports.ApprovalService
}

func NewIdentityHandler(tokens ports.TokenService, approvals ports.ApprovalService) *IdentityHandler {
	return &IdentityHandler{tokens: tokens, approvals: approvals}
}

// Anonymous handles POST /v1/identity/anonymous.
//
// @Summary      Create an anonymous identity
// @Description  Mints a client token for a new opaque user id. Every admission call is keyed by it.
// @Tags         identity
// @Produce      json
// @Success      201  {object}  anonymousResponse
// @Failure      500  {object}  errorResponse
// @Router       /v1/identity/anonymous [post]
func (h *IdentityHandler) Anonymous(c echo.Context) error {
	userID, token, err := h.tokens.Anonymous()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, anonymousResponse{UserID: userID, Token: token})
}

// ChangeCallsign handles POST /v1/identity/callsign.
//
// @Summary      Request a callsign change
// @Description  Administrators change their own callsign at once; everyone else queues a request.
// @Tags         identity
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      callsignRequest  true  "Requested callsign"
// @Success      200   {object}  identityChangeResponse
// @Success      202   {object}  identityChangeResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/identity/callsign [post]
func (h *IdentityHandler) ChangeCallsign(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req callsignRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	change, err := h.approvals.SubmitIdentityChange(c.Request().Context(), a, req.Callsign)
	if err != nil {
		return err
	}
	if change == nil {
		return c.JSON(http.StatusOK, identityChangeResponse{Status: "applied"})
	}
	return c.JSON(http.StatusAccepted, identityChangeResponse{Status: "pending", Request: change})
}
