package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	defaultAwait = 25 * time.Second
	maxAwait     = 60 * time.Second
)

// AdmissionHandler exposes the admission flow to clients holding a client
// token.
type AdmissionHandler struct {
	service ports.AdmissionService
}

func NewAdmissionHandler(service ports.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

// State handles GET /v1/admission.
//
// @Summary      Current admission state
// @Tags         admission
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.AdmissionResult
// @Failure      403  {object}  errorResponse
// @Router       /v1/admission [get]
func (h *AdmissionHandler) State(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.State(ctx, userID)
	})
}

// Gateway handles POST /v1/admission/gateway.
//
// @Summary      Submit the gateway phrase
// @Tags         admission
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      gatewayRequest  true  "Gateway phrase"
// @Success      200   {object}  ports.AdmissionResult
// @Failure      401   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/admission/gateway [post]
func (h *AdmissionHandler) Gateway(c echo.Context) error {
	var req gatewayRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.SubmitGateway(ctx, userID, req.Phrase)
	})
}

// Identity handles POST /v1/admission/identity.
//
// @Summary      Register or recall an identity
// @Tags         admission
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      identityRequest  true  "Callsign and optional invite key"
// @Success      200   {object}  ports.AdmissionResult
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admission/identity [post]
func (h *AdmissionHandler) Identity(c echo.Context) error {
	var req identityRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.SubmitIdentity(ctx, userID, req.Callsign, req.InviteKey)
	})
}

// Await handles GET /v1/admission/await, a long poll for the approval outcome.
//
// @Summary      Wait for approval
// @Tags         admission
// @Produce      json
// @Security     BearerAuth
// @Param        timeout  query     int  false  "Seconds to wait (max 60)"
// @Success      200      {object}  ports.AdmissionResult
// @Router       /v1/admission/await [get]
func (h *AdmissionHandler) Await(c echo.Context) error {
	wait := defaultAwait
	if raw := c.QueryParam("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "timeout must be a positive number of seconds")
		}
		wait = min(time.Duration(secs)*time.Second, maxAwait)
	}

	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()

		res, err := h.service.AwaitApproval(waitCtx, userID)
		if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
			// still waiting; report the unchanged state
			return h.service.State(ctx, userID)
		}
		return res, err
	})
}

// Biometric handles POST /v1/admission/biometric. The capture is either a
// multipart file named "capture" or the raw request body.
//
// @Summary      Submit a biometric capture
// @Tags         admission
// @Accept       multipart/form-data
// @Accept       image/png
// @Produce      json
// @Security     BearerAuth
// @Param        capture  formData  file  false  "Biometric capture (max 1 MiB)"
// @Success      200      {object}  ports.AdmissionResult
// @Failure      413      {object}  errorResponse
// @Failure      422      {object}  errorResponse
// @Router       /v1/admission/biometric [post]
func (h *AdmissionHandler) Biometric(c echo.Context) error {
	data, contentType, err := readCapture(c)
	if err != nil {
		return err
	}
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.SubmitBiometric(ctx, userID, data, contentType)
	})
}

// SessionCode handles POST /v1/admission/session-code.
//
// @Summary      Submit the session code
// @Tags         admission
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      sessionCodeRequest  true  "Four digit code"
// @Success      200   {object}  ports.AdmissionResult
// @Failure      401   {object}  errorResponse
// @Router       /v1/admission/session-code [post]
func (h *AdmissionHandler) SessionCode(c echo.Context) error {
	var req sessionCodeRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.SubmitSessionCode(ctx, userID, req.Code)
	})
}

// Cancel handles POST /v1/admission/cancel.
//
// @Summary      Abandon the admission
// @Tags         admission
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.AdmissionResult
// @Router       /v1/admission/cancel [post]
func (h *AdmissionHandler) Cancel(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.Cancel(ctx, userID)
	})
}

// Logout handles POST /v1/admission/logout.
//
// @Summary      Leave the channel
// @Tags         admission
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ports.AdmissionResult
// @Router       /v1/admission/logout [post]
func (h *AdmissionHandler) Logout(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, userID string) (*ports.AdmissionResult, error) {
		return h.service.Logout(ctx, userID)
	})
}

func (h *AdmissionHandler) respond(c echo.Context, op func(ctx context.Context, userID string) (*ports.AdmissionResult, error)) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	res, err := op(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// readCapture reads at most one byte past the limit so the service can
// report an oversized capture.
func readCapture(c echo.Context) ([]byte, string, error) {
	limit := int64(domain.MaxAttachmentBytes + 1)
	ct := c.Request().Header.Get(echo.HeaderContentType)

	if strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		fh, err := c.FormFile("capture")
		if err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, "capture file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, "unreadable capture")
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, limit))
		if err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, "unreadable capture")
		}
		return data, fh.Header.Get(echo.HeaderContentType), nil
	}

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, limit))
	if err != nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "unreadable capture")
	}
	return data, ct, nil
}
