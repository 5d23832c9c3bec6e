// Package metrics declares the prometheus collectors shared by the
// webhook ingestor, the engines, and the event bus (SPEC_FULL.md DOMAIN
// STACK: "engine duration histograms, bus gauges, ingestion counters").
// Collectors are package-level, registered once via promauto against the
// default registry, and imported by value (no constructor) the way
// prometheus client instrumentation is conventionally wired in Go services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookDeliveries counts C6 outcomes by status (processing,
	// duplicate, ignored, workspace_not_found, branch_deleted). Requests
	// answered with a 4xx or 5xx are not counted.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelflow",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook deliveries processed, by outcome status.",
	}, []string{"status"})

	// WebhookDuration tracks §4.6's synchronous transaction latency.
	WebhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intelflow",
		Subsystem: "webhook",
		Name:      "handle_duration_seconds",
		Help:      "Duration of the synchronous webhook ingestion transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	// EngineRunDuration tracks each engine's per-invocation wall time
	// (§5 "suspension points: every DB operation").
	EngineRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intelflow",
		Subsystem: "engine",
		Name:      "run_duration_seconds",
		Help:      "Duration of one engine run, by engine name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"engine"})

	// EngineRunErrors counts engine runs that rolled back and were
	// swallowed-with-log rather than surfaced to the webhook ACK (§7).
	EngineRunErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelflow",
		Subsystem: "engine",
		Name:      "run_errors_total",
		Help:      "Engine runs that failed and were logged, by engine name.",
	}, []string{"engine"})

	// BlockersActive gauges the unresolved-blocker count per workspace and
	// type. Only the FILE_CONFLICT_RISK series is set, during each Health
	// Engine run.
	BlockersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "intelflow",
		Subsystem: "blockers",
		Name:      "active",
		Help:      "Unresolved blockers, by workspace and type.",
	}, []string{"workspace_id", "type"})

	// HealthScore gauges the last-computed workspace health score (§4.5).
	HealthScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "intelflow",
		Subsystem: "health",
		Name:      "score",
		Help:      "Current workspace health score (0-100).",
	}, []string{"workspace_id"})

	// BusSubscribers gauges the live subscriber count per workspace (C7).
	BusSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "intelflow",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Currently connected dashboard subscribers, by workspace.",
	}, []string{"workspace_id"})

	// BusBroadcasts counts events published on C7, by event type.
	BusBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelflow",
		Subsystem: "bus",
		Name:      "broadcasts_total",
		Help:      "Events broadcast to subscribers, by event type.",
	}, []string{"event_type"})

	// AlignmentCalls counts LM alignment calls by outcome (ok, fallback).
	AlignmentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelflow",
		Subsystem: "alignment",
		Name:      "calls_total",
		Help:      "Alignment analyzer calls, by outcome.",
	}, []string{"outcome"})
)
