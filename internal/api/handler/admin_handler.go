package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

// AdminHandler groups the administrator console endpoints. Every service it
// calls re-checks the caller's AdminRole.
type AdminHandler struct {
	access     ports.AccessService
	approvals  ports.ApprovalService
	moderation ports.ModerationService
	messaging  ports.MessagingService
}

func NewAdminHandler(
	access ports.AccessService,
	approvals ports.ApprovalService,
	moderation ports.ModerationService,
	messaging ports.MessagingService,
) *AdminHandler {
	return &AdminHandler{access: access, approvals: approvals, moderation: moderation, messaging: messaging}
}

// --- Access control ---

// UpdateGateway handles PUT /v1/admin/gateway.
//
// @Summary      Change a gateway phrase
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateGatewayRequest  true  "Phrase kind and new phrase"
// @Success      200   {object}  statusResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admin/gateway [put]
func (h *AdminHandler) UpdateGateway(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req updateGatewayRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if err := h.access.UpdateGateway(c.Request().Context(), a, domain.GatewayKind(req.Kind), req.Phrase); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "updated"})
}

// Policy handles GET /v1/admin/policy.
//
// @Summary      Read the admission policy
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AdmissionPolicy
// @Router       /v1/admin/policy [get]
func (h *AdminHandler) Policy(c echo.Context) error {
	policy, err := h.access.Policy(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, policy)
}

// UpdatePolicy handles PUT /v1/admin/policy.
//
// @Summary      Change the admission policy
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      domain.AdmissionPolicy  true  "Policy flags"
// @Success      200   {object}  domain.AdmissionPolicy
// @Failure      403   {object}  errorResponse
// @Router       /v1/admin/policy [put]
func (h *AdminHandler) UpdatePolicy(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var policy domain.AdmissionPolicy
	if err := c.Bind(&policy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.access.UpdatePolicy(c.Request().Context(), a, policy); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, policy)
}

// IssueInvite handles POST /v1/admin/invites.
//
// @Summary      Issue an invite key
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  domain.InviteKey
// @Failure      403  {object}  errorResponse
// @Router       /v1/admin/invites [post]
func (h *AdminHandler) IssueInvite(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	key, err := h.access.IssueInviteKey(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, key)
}

// ListInvites handles GET /v1/admin/invites.
//
// @Summary      List invite keys
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.InviteKey
// @Router       /v1/admin/invites [get]
func (h *AdminHandler) ListInvites(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	keys, err := h.access.ListInviteKeys(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

// --- Approval queue ---

// ListRequests handles GET /v1/admin/session-requests.
//
// @Summary      List pending session requests
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.SessionRequest
// @Router       /v1/admin/session-requests [get]
func (h *AdminHandler) ListRequests(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	reqs, err := h.approvals.ListPending(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reqs)
}

// ApproveRequest handles POST /v1/admin/session-requests/:id/approve.
//
// @Summary      Approve a session request
// @Description  Returns the four digit session code to hand to the operative.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  codeResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/admin/session-requests/{id}/approve [post]
func (h *AdminHandler) ApproveRequest(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	code, err := h.approvals.Approve(c.Request().Context(), a, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, codeResponse{Code: code})
}

// DenyRequest handles POST /v1/admin/session-requests/:id/deny.
//
// @Summary      Deny a session request
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  statusResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/admin/session-requests/{id}/deny [post]
func (h *AdminHandler) DenyRequest(c echo.Context) error {
	return h.simple(c, "denied", func(a domain.Actor) error {
		return h.approvals.Deny(c.Request().Context(), a, c.Param("id"))
	})
}

// ListIdentityChanges handles GET /v1/admin/identity-changes.
//
// @Summary      List callsign change requests
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.IdentityChangeRequest
// @Router       /v1/admin/identity-changes [get]
func (h *AdminHandler) ListIdentityChanges(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	changes, err := h.approvals.ListIdentityChanges(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changes)
}

// ApproveIdentityChange handles POST /v1/admin/identity-changes/:id/approve.
//
// @Summary      Approve a callsign change
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Change request id"
// @Success      200  {object}  statusResponse
// @Failure      409  {object}  errorResponse
// @Router       /v1/admin/identity-changes/{id}/approve [post]
func (h *AdminHandler) ApproveIdentityChange(c echo.Context) error {
	return h.simple(c, "approved", func(a domain.Actor) error {
		return h.approvals.ApproveIdentityChange(c.Request().Context(), a, c.Param("id"))
	})
}

// DenyIdentityChange handles POST /v1/admin/identity-changes/:id/deny.
//
// @Summary      Deny a callsign change
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Change request id"
// @Success      200  {object}  statusResponse
// @Router       /v1/admin/identity-changes/{id}/deny [post]
func (h *AdminHandler) DenyIdentityChange(c echo.Context) error {
	return h.simple(c, "denied", func(a domain.Actor) error {
		return h.approvals.DenyIdentityChange(c.Request().Context(), a, c.Param("id"))
	})
}

// --- Moderation ---

// ListUsers handles GET /v1/admin/users.
//
// @Summary      List registered users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.User
// @Router       /v1/admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	users, err := h.moderation.ListUsers(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// Block handles POST /v1/admin/users/:id/block.
//
// @Summary      Block a user and end their session
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  statusResponse
// @Failure      403  {object}  errorResponse
// @Router       /v1/admin/users/{id}/block [post]
func (h *AdminHandler) Block(c echo.Context) error {
	return h.simple(c, "blocked", func(a domain.Actor) error {
		return h.moderation.Block(c.Request().Context(), a, c.Param("id"))
	})
}

// Unblock handles POST /v1/admin/users/:id/unblock.
//
// @Summary      Unblock a user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  statusResponse
// @Router       /v1/admin/users/{id}/unblock [post]
func (h *AdminHandler) Unblock(c echo.Context) error {
	return h.simple(c, "unblocked", func(a domain.Actor) error {
		return h.moderation.Unblock(c.Request().Context(), a, c.Param("id"))
	})
}

// Terminate handles POST /v1/admin/users/:id/terminate.
//
// @Summary      Terminate a user's session
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  statusResponse
// @Router       /v1/admin/users/{id}/terminate [post]
func (h *AdminHandler) Terminate(c echo.Context) error {
	return h.simple(c, "terminated", func(a domain.Actor) error {
		return h.moderation.Terminate(c.Request().Context(), a, c.Param("id"))
	})
}

// DeleteUser handles DELETE /v1/admin/users/:id.
//
// @Summary      Delete a user
// @Description  Removes the user, their pending requests and biometric capture. Messages stay in the log.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  statusResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	return h.simple(c, "deleted", func(a domain.Actor) error {
		return h.moderation.DeleteUser(c.Request().Context(), a, c.Param("id"))
	})
}

// Broadcast handles POST /v1/admin/broadcast.
//
// @Summary      Send a message as an administrator
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      broadcastRequest  true  "Message"
// @Success      201   {object}  domain.Message
// @Router       /v1/admin/broadcast [post]
func (h *AdminHandler) Broadcast(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req broadcastRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	msg, err := h.moderation.Broadcast(c.Request().Context(), a, req.Recipient, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// Purge handles DELETE /v1/admin/messages.
//
// @Summary      Purge the channel log
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  purgeResponse
// @Router       /v1/admin/messages [delete]
func (h *AdminHandler) Purge(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	n, err := h.messaging.Purge(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, purgeResponse{Purged: n})
}

func (h *AdminHandler) simple(c echo.Context, status string, op func(a domain.Actor) error) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	if err := op(a); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: status})
}
