// Package metrics exposes Prometheus collectors for the orchestration
// engine: session lifecycle counts, streamed event volume and cost
// accounting. All record methods are nil-safe so instrumentation stays
// optional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmapper/conductor/core"
)

// Collectors bundles the engine's Prometheus metrics.
type Collectors struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	progressEvents   prometheus.Counter
	errorEvents      prometheus.Counter
	tokens           *prometheus.CounterVec
	costUSD          prometheus.Counter
	activeSessions   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration; the collectors still record.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_sessions_started_total",
			Help: "Number of sessions started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_sessions_finished_total",
			Help: "Number of sessions reaching a terminal status.",
		}, []string{"status"}),
		progressEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_progress_events_total",
			Help: "Number of progress events streamed across all sessions.",
		}),
		errorEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_error_events_total",
			Help: "Number of error events streamed across all sessions.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_tokens_total",
			Help: "Token usage reported by transports.",
		}, []string{"direction"}),
		costUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_cost_usd_total",
			Help: "Accumulated session cost in USD.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_active_sessions",
			Help: "Number of non-terminal sessions (0 or 1).",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.sessionsStarted, c.sessionsFinished, c.progressEvents,
			c.errorEvents, c.tokens, c.costUSD, c.activeSessions,
		)
	}
	return c
}

// RecordSessionStart counts a session start.
func (c *Collectors) RecordSessionStart() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
	c.activeSessions.Set(1)
}

// RecordSessionEnd counts a terminal status.
func (c *Collectors) RecordSessionEnd(status core.SessionStatus) {
	if c == nil {
		return
	}
	c.sessionsFinished.WithLabelValues(string(status)).Inc()
	c.activeSessions.Set(0)
}

// RecordProgress counts one progress event.
func (c *Collectors) RecordProgress() {
	if c == nil {
		return
	}
	c.progressEvents.Inc()
}

// RecordError counts one error event.
func (c *Collectors) RecordError() {
	if c == nil {
		return
	}
	c.errorEvents.Inc()
}

// RecordCost accumulates a completed session's cost record.
func (c *Collectors) RecordCost(rec core.CostRecord) {
	if c == nil {
		return
	}
	c.tokens.WithLabelValues("input").Add(float64(rec.InputTokens))
	c.tokens.WithLabelValues("output").Add(float64(rec.OutputTokens))
	c.costUSD.Add(rec.TotalCost)
}
