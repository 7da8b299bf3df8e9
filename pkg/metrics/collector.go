// Package metrics exposes Prometheus instrumentation for the ordering workflow.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot updates handled labeled by kind and status",
		},
		[]string{"kind", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of workflow state transitions",
		},
		[]string{"from", "to"},
	)
	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsm_rejections_total",
			Help: "Inputs rejected by the workflow, per state",
		},
		[]string{"state"},
	)
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment orchestration outcomes",
		},
		[]string{"stage", "result"},
	)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Delivery simulations by method and how they finished",
		},
		[]string{"method", "result"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Current number of live ordering sessions",
		},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_by_state",
			Help: "Number of sessions per workflow state",
		},
		[]string{"state"},
	)
)

// RecordCommand increments update counters and records duration.
func RecordCommand(kind, status string, duration time.Duration) {
	kind = orUnknown(kind)
	botCommandsTotal.WithLabelValues(kind, orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStateTransition tracks workflow transitions.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// RecordRejection counts an input that did not match the state's options.
func RecordRejection(state string) {
	rejectionsTotal.WithLabelValues(orUnknown(state)).Inc()
}

// RecordPayment counts a payment stage outcome, e.g. ("initiate", "ok").
func RecordPayment(stage, result string) {
	paymentsTotal.WithLabelValues(orUnknown(stage), orUnknown(result)).Inc()
}

// RecordDelivery counts how a delivery simulation finished.
func RecordDelivery(method, result string) {
	deliveriesTotal.WithLabelValues(orUnknown(method), orUnknown(result)).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

// StateCounter reports live sessions grouped by state.
type StateCounter interface {
	CountByState() map[string]int
}

// SessionCollector periodically publishes session gauges.
type SessionCollector struct {
	source   StateCounter
	interval time.Duration
}

// NewSessionCollector builds a collector polling source every interval.
func NewSessionCollector(source StateCounter, interval time.Duration) *SessionCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SessionCollector{source: source, interval: interval}
}

// Run polls until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.source == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.collect()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SessionCollector) collect() {
	counts := c.source.CountByState()

	total := 0
	sessionsByState.Reset()
	for state, n := range counts {
		sessionsByState.WithLabelValues(orUnknown(state)).Set(float64(n))
		total += n
	}
	activeSessions.Set(float64(total))
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
