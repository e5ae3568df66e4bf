package handler

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/raven-oracle/portal/internal/api/metrics"
	"github.com/raven-oracle/portal/internal/api/middleware"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
)

const writeTimeout = 10 * time.Second

// Close reasons sent to stream clients.
const (
	closeSessionEnded = "SESSION_ENDED"
	closeStreamFailed = "STREAM_FAILED"
)

// StreamHandler serves live websocket feeds of the channel and of a
// client's admission.
type StreamHandler struct {
	messaging ports.MessagingService
	admission ports.AdmissionService
	tokens    ports.TokenService
	notifier  ports.Notifier
	origins   []string
	log       zerolog.Logger
}

func NewStreamHandler(
	messaging ports.MessagingService,
	admission ports.AdmissionService,
	tokens ports.TokenService,
	notifier ports.Notifier,
	origins []string,
	log zerolog.Logger,
) *StreamHandler {
	return &StreamHandler{
		messaging: messaging,
		admission: admission,
		tokens:    tokens,
		notifier:  notifier,
		origins:   origins,
		log:       log,
	}
}

// Messages handles GET /v1/messages/stream. It replays the visible log and
// then pushes each new message. The stream closes when the session is
// revoked by a block, delete or terminate.
//
// @Summary      Live channel stream (websocket)
// @Tags         messages
// @Security     BearerAuth
// @Param        access_token  query  string  false  "Session token when headers cannot be set"
// @Success      101
// @Router       /v1/messages/stream [get]
func (h *StreamHandler) Messages(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	raw := middleware.BearerToken(c)

	conn, err := h.accept(c)
	if err != nil {
		return nil
	}
	defer conn.CloseNow()

	gauge := metrics.StreamSubscribers.WithLabelValues("messages")
	gauge.Inc()
	defer gauge.Dec()

	ctx, cancel := context.WithCancel(conn.CloseRead(c.Request().Context()))
	defer cancel()

	// user events signal a possible revocation; the token is re-verified
	// before the stream is allowed to continue.
	userSub, err := h.notifier.Subscribe(ctx, ports.UserTopic(p.UserID))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("stream subscribe failed")
		conn.Close(websocket.StatusInternalError, closeStreamFailed)
		return nil
	}
	defer userSub.Close()

	msgs, err := h.messaging.Subscribe(ctx, domain.ViewerOf(p.Actor()))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("stream subscribe failed")
		conn.Close(websocket.StatusInternalError, closeStreamFailed)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-userSub.Events():
			if _, err := h.tokens.Verify(ctx, raw, ports.TokenSession); err != nil {
				h.log.Info().Str("user_id", p.UserID).Err(err).Msg("closing stream of ended session")
				conn.Close(websocket.StatusPolicyViolation, closeSessionEnded)
				return nil
			}
		case m, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			if err := h.write(ctx, conn, m); err != nil {
				return nil
			}
		}
	}
}

// Admission handles GET /v1/admission/stream. It pushes the caller's
// admission every time it changes.
//
// @Summary      Live admission stream (websocket)
// @Tags         admission
// @Security     BearerAuth
// @Param        access_token  query  string  false  "Client token when headers cannot be set"
// @Success      101
// @Router       /v1/admission/stream [get]
func (h *StreamHandler) Admission(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	conn, err := h.accept(c)
	if err != nil {
		return nil
	}
	defer conn.CloseNow()

	gauge := metrics.StreamSubscribers.WithLabelValues("admission")
	gauge.Inc()
	defer gauge.Dec()

	ctx := conn.CloseRead(c.Request().Context())
	states, err := h.admission.Watch(ctx, p.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("admission watch failed")
		conn.Close(websocket.StatusInternalError, closeStreamFailed)
		return nil
	}

	for a := range states {
		if err := h.write(ctx, conn, a); err != nil {
			return nil
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// accept upgrades the connection. On failure the websocket library has
// already written the HTTP error.
func (h *StreamHandler) accept(c echo.Context) (*websocket.Conn, error) {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil, err
	}
	return conn, nil
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := wsjson.Write(wctx, conn, v)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Debug().Err(err).Msg("stream write failed")
	}
	return err
}
