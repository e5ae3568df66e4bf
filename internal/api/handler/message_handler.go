package handler

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// MessageHandler serves the channel to holders of a live session token.
type MessageHandler struct {
	service ports.MessagingService
}

func NewMessageHandler(service ports.MessagingService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Send handles POST /v1/messages.
//
// @Summary      Post a message
// @Description  Recipient defaults to ALL. A directed recipient must be a registered callsign.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      sendMessageRequest  true  "Message"
// @Success      201   {object}  domain.Message
// @Failure      401   {object}  errorResponse
// @Failure      413   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/messages [post]
func (h *MessageHandler) Send(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	in := ports.SendInput{Recipient: req.Recipient, Content: req.Content}
	if req.Attachment != nil {
		in.Attachment = &ports.AttachmentInput{
			Name:     req.Attachment.Name,
			MimeType: req.Attachment.MimeType,
			Data:     req.Attachment.Data,
		}
	}

	msg, err := h.service.Send(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// History handles GET /v1/messages.
//
// @Summary      Read the channel log
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        after_seq  query     int  false  "Return messages after this sequence number"
// @Param        limit      query     int  false  "Page size (max 500)"
// @Success      200        {object}  historyResponse
// @Failure      400        {object}  errorResponse
// @Router       /v1/messages [get]
func (h *MessageHandler) History(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}

	var after int64
	if raw := c.QueryParam("after_seq"); raw != "" {
		if after, err = strconv.ParseInt(raw, 10, 64); err != nil || after < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "after_seq must be a non-negative integer")
		}
	}
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(limit, maxHistoryLimit)
	}

	msgs, err := h.service.History(c.Request().Context(), domain.ViewerOf(a), after, limit)
	if err != nil {
		return err
	}
	resp := historyResponse{Messages: msgs}
	if n := len(msgs); n > 0 {
		resp.NextSeq = msgs[n-1].Seq
	}
	return c.JSON(http.StatusOK, resp)
}

// Attachment handles GET /v1/messages/:id/attachment.
//
// @Summary      Download a message attachment
// @Tags         messages
// @Produce      octet-stream
// @Security     BearerAuth
// @Param        id   path      string  true  "Message id"
// @Success      200  {file}    binary
// @Failure      404  {object}  errorResponse
// @Router       /v1/messages/{id}/attachment [get]
func (h *MessageHandler) Attachment(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}

	att, data, err := h.service.Attachment(c.Request().Context(), domain.ViewerOf(a), c.Param("id"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	c.Response().Header().Set(echo.HeaderContentLength, fmt.Sprint(len(data)))
	return c.Blob(http.StatusOK, att.MimeType, data)
}
