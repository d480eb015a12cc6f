// Package metrics provides Prometheus metrics for nemshi.
// Counters, gauges, and histograms for triggers, stats, badges, push
// delivery, denormalized views, and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Triggers ───────────────────────────────────────────────────────────────

// TriggerInvocations counts trigger deliveries by handler and outcome
// ("ok", "skipped", "error").
var TriggerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "trigger_invocations_total",
	Help:      "Total trigger deliveries handled.",
}, []string{"handler", "outcome"})

// TriggerLatency tracks trigger handling duration in seconds.
var TriggerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "nemshi",
	Name:      "trigger_latency_seconds",
	Help:      "Trigger handling duration in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"handler"})

// ─── Stats & Badges ─────────────────────────────────────────────────────────

// StatsUpdates counts applied completions by kind ("full", "partial", "duplicate").
var StatsUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "stats_updates_total",
	Help:      "Total walk completions folded into user stats.",
}, []string{"kind"})

// BadgesEarned counts newly earned badges by badge id.
var BadgesEarned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "badges_earned_total",
	Help:      "Total badges earned.",
}, []string{"badge"})

// BadgeEvaluations counts evaluator runs.
var BadgeEvaluations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "badge_evaluations_total",
	Help:      "Total badge evaluations.",
})

// ─── Push ───────────────────────────────────────────────────────────────────

// PushSent counts per-token delivery outcomes ("success", "failure").
var PushSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "push_tokens_total",
	Help:      "Total push deliveries by outcome.",
}, []string{"outcome"})

// PushTokensRetired counts dead tokens removed.
var PushTokensRetired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "push_tokens_retired_total",
	Help:      "Total dead push tokens removed.",
})

// ─── Denormalized Views ─────────────────────────────────────────────────────

// ProfileSyncs counts friend profile writes by action ("refresh", "delete").
var ProfileSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "profile_syncs_total",
	Help:      "Total friend profile syncs.",
}, []string{"action"})

// SummaryWrites counts walk summary writes by action
// ("upsert", "delete", "prune").
var SummaryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "walk_summary_writes_total",
	Help:      "Total walk summary writes.",
}, []string{"action"})

// ─── Walks ──────────────────────────────────────────────────────────────────

// WalksAutoCompleted counts walks closed after their grace period.
var WalksAutoCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "walks_auto_completed_total",
	Help:      "Total walks auto-completed after the grace period.",
})

// SweepRuns counts scheduled auto-complete sweeps.
var SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "nemshi",
	Name:      "sweep_runs_total",
	Help:      "Total auto-complete sweeps run.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus tracks health check status per component (1=healthy, 0=unhealthy).
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "nemshi",
	Name:      "health_status",
	Help:      "Health check status per component (1=healthy, 0=unhealthy).",
}, []string{"component"})

// Uptime tracks process uptime in seconds.
var Uptime = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "nemshi",
	Name:      "uptime_seconds",
	Help:      "Process uptime in seconds.",
})
