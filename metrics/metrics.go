// Package metrics exposes Prometheus collectors for the command dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for CommandsTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeRemoteError = "remote_error"
	OutcomeTimeout     = "timeout"
	OutcomeClosed      = "closed"
	OutcomeFailed      = "failed"
)

// Drop reasons for DroppedTotal.
const (
	DropUnmatched = "unmatched"
	DropMalformed = "malformed"
	DropOrphan    = "orphan_error"
)

// Collector groups the dispatcher metrics. A nil *Collector ignores every
// observation, so callers never need to check whether metrics are enabled.
type Collector struct {
	CommandsTotal  *prometheus.CounterVec
	CommandLatency *prometheus.HistogramVec
	InFlight       prometheus.Gauge
	EventsTotal    *prometheus.CounterVec
	DroppedTotal   *prometheus.CounterVec
	ObserverErrors *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bidi",
				Subsystem: "command",
				Name:      "total",
				Help:      "Commands issued, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		CommandLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bidi",
				Subsystem: "command",
				Name:      "latency_seconds",
				Help:      "Time from send to response",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"method"},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bidi",
				Subsystem: "command",
				Name:      "in_flight",
				Help:      "Commands awaiting a response",
			},
		),
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bidi",
				Subsystem: "event",
				Name:      "total",
				Help:      "Inbound events, by method and whether anything was registered for them",
			},
			[]string{"method", "handled"},
		),
		DroppedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bidi",
				Subsystem: "inbound",
				Name:      "dropped_total",
				Help:      "Inbound messages dropped, by reason",
			},
			[]string{"reason"},
		),
		ObserverErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bidi",
				Subsystem: "event",
				Name:      "observer_errors_total",
				Help:      "Event dispatches that failed to decode or whose observers returned errors",
			},
			[]string{"method"},
		),
	}
}

func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.InFlight.Inc()
}

func (c *Collector) CommandDone(method, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.InFlight.Dec()
	c.CommandsTotal.WithLabelValues(method, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeRemoteError {
		c.CommandLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

func (c *Collector) Event(method string, handled bool) {
	if c == nil {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	c.EventsTotal.WithLabelValues(method, h).Inc()
}

func (c *Collector) EventFailed(method string) {
	if c == nil {
		return
	}
	c.ObserverErrors.WithLabelValues(method).Inc()
}

func (c *Collector) Dropped(reason string) {
	if c == nil {
		return
	}
	c.DroppedTotal.WithLabelValues(reason).Inc()
}
