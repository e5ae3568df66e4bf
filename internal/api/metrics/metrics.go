// Package metrics defines and registers all custom Prometheus metrics for the
// portal. It is the single source of truth for metric names, labels, and help
// strings.
//
// Metrics are registered with the default registry through promauto when the
// package is loaded; /metrics exposes them alongside the HTTP middleware
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Admission metrics ─────────────────────────────────────────────────────────

// GatewayChecksTotal counts gateway phrase checks.
// Label:
//   - result: "OPERATIVE", "ADMIN" or "REJECTED"
var GatewayChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_checks_total",
		Help:      "Total number of gateway phrase checks, by result.",
	},
	[]string{"result"},
)

// AdmissionTransitionsTotal counts admission state changes.
// Labels:
//   - from: state before the transition (e.g. "AWAITING_APPROVAL")
//   - to:   state after the transition (e.g. "AWAITING_SESSION_CODE")
var AdmissionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_transitions_total",
		Help:      "Total number of admission state transitions.",
	},
	[]string{"from", "to"},
)

// AdmissionRejectionsTotal counts admission steps refused with a reason code.
// Label:
//   - reason: e.g. "GATEWAY_MISMATCH", "IDENTITY_DENIED", "INVALID_SESSION_CODE"
var AdmissionRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_rejections_total",
		Help:      "Total number of rejected admission steps, by reason.",
	},
	[]string{"reason"},
)

// SessionRequestsTotal counts approval queue outcomes.
// Label:
//   - outcome: "submitted", "approved", "denied", "expired", "withdrawn", "confirmed"
var SessionRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_requests_total",
		Help:      "Total number of session request lifecycle events, by outcome.",
	},
	[]string{"outcome"},
)

// ── Channel metrics ───────────────────────────────────────────────────────────

// MessagesSentTotal counts messages appended to the channel log.
// Label:
//   - kind: "broadcast", "directed" or "attachment"
var MessagesSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total number of messages sent, by kind.",
	},
	[]string{"kind"},
)

// ModerationActionsTotal counts administrator actions against users.
// Label:
//   - action: "block", "unblock", "delete", "terminate", "broadcast", "purge"
var ModerationActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moderation_actions_total",
		Help:      "Total number of moderation actions, by action.",
	},
	[]string{"action"},
)

// StreamSubscribers tracks open websocket streams.
// Label:
//   - stream: "messages" or "admission"
var StreamSubscribers = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Current number of open live streams.",
	},
	[]string{"stream"},
)

// ── Dispatch metrics ──────────────────────────────────────────────────────────

// DispatchQueueDepth tracks the number of change events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var DispatchQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Current number of change events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// DispatchDuration measures how long publishing one change event takes.
// Label:
//   - result: "ok" or "error"
var DispatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of change event publication from dequeue to notifier.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)
