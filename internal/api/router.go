package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/raven-oracle/portal/docs"
	"github.com/raven-oracle/portal/internal/api/handler"
	"github.com/raven-oracle/portal/internal/api/middleware"
	"github.com/raven-oracle/portal/internal/core/ports"
	"github.com/raven-oracle/portal/internal/infrastructure/http/handlers"
)

// sendBodyLimit leaves room for a base64 attachment at its size cap.
const sendBodyLimit = "2M"

// Deps carries everything the HTTP surface is built from.
type Deps struct {
	Tokens     ports.TokenService
	Access     ports.AccessService
	Admission  ports.AdmissionService
	Approvals  ports.ApprovalService
	Messaging  ports.MessagingService
	Moderation ports.ModerationService
	Notifier   ports.Notifier

	// Checks feed the readiness probe, keyed by dependency name.
	Checks map[string]handlers.Check
	// Origins lists the host patterns allowed to open websocket streams and
	// to call the API cross-origin. Empty means same-origin only.
	Origins []string
	Log     zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// HTTP metrics get a registry per router; /metrics serves it together
	// with the process-wide collectors.
	httpMetrics := prometheus.NewRegistry()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "portal",
		Registerer: httpMetrics,
	}))
	if len(d.Origins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: d.Origins}))
	}

	// --- Handlers ---
	identityHandler := handler.NewIdentityHandler(d.Tokens, d.Approvals)
	admissionHandler := handler.NewAdmissionHandler(d.Admission)
	messageHandler := handler.NewMessageHandler(d.Messaging)
	adminHandler := handler.NewAdminHandler(d.Access, d.Approvals, d.Moderation, d.Messaging)
	streamHandler := handler.NewStreamHandler(d.Messaging, d.Admission, d.Tokens, d.Notifier, d.Origins, d.Log)

	clientAuth := middleware.Auth(d.Tokens, ports.TokenClient)
	sessionAuth := middleware.Auth(d.Tokens, ports.TokenSession)

	v1 := e.Group("/v1")

	// --- Identity ---
	v1.POST("/identity/anonymous", identityHandler.Anonymous)
	v1.POST("/identity/callsign", identityHandler.ChangeCallsign, sessionAuth)

	// --- Admission (client token) ---
	adm := v1.Group("/admission", clientAuth)
	adm.GET("", admissionHandler.State)
	adm.POST("/gateway", admissionHandler.Gateway)
	adm.POST("/identity", admissionHandler.Identity)
	adm.GET("/await", admissionHandler.Await)
	adm.POST("/biometric", admissionHandler.Biometric)
	adm.POST("/session-code", admissionHandler.SessionCode)
	adm.POST("/cancel", admissionHandler.Cancel)
	adm.POST("/logout", admissionHandler.Logout)
	adm.GET("/stream", streamHandler.Admission)

	// --- Channel (session token) ---
	msgs := v1.Group("/messages", sessionAuth)
	msgs.POST("", messageHandler.Send, echomiddleware.BodyLimit(sendBodyLimit))
	msgs.GET("", messageHandler.History)
	msgs.GET("/stream", streamHandler.Messages)
	msgs.GET("/:id/attachment", messageHandler.Attachment)

	// --- Admin console (session token + admin) ---
	admin := v1.Group("/admin", sessionAuth, middleware.RequireAdmin())
	admin.PUT("/gateway", adminHandler.UpdateGateway)
	admin.GET("/policy", adminHandler.Policy)
	admin.PUT("/policy", adminHandler.UpdatePolicy)
	admin.POST("/invites", adminHandler.IssueInvite)
	admin.GET("/invites", adminHandler.ListInvites)
	admin.GET("/session-requests", adminHandler.ListRequests)
	admin.POST("/session-requests/:id/approve", adminHandler.ApproveRequest)
	admin.POST("/session-requests/:id/deny", adminHandler.DenyRequest)
	admin.GET("/identity-changes", adminHandler.ListIdentityChanges)
	admin.POST("/identity-changes/:id/approve", adminHandler.ApproveIdentityChange)
	admin.POST("/identity-changes/:id/deny", adminHandler.DenyIdentityChange)
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users/:id/block", adminHandler.Block)
	admin.POST("/users/:id/unblock", adminHandler.Unblock)
	admin.POST("/users/:id/terminate", adminHandler.Terminate)
	admin.DELETE("/users/:id", adminHandler.DeleteUser)
	admin.POST("/broadcast", adminHandler.Broadcast)
	admin.DELETE("/messages", adminHandler.Purge)

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, httpMetrics},
	}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
