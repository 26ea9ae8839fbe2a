// Package metrics exposes Prometheus counters for simulated calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeReplied   = "replied"
	OutcomeSilent    = "silent"
	OutcomeFallback  = "fallback"
	OutcomeNoAudio   = "no_audio"
	OutcomeAborted   = "aborted"
	OutcomeMalformed = "malformed"
)

// UnknownScenario labels sessions whose scenario ID is not in the catalog.
const UnknownScenario = "unknown"

// Collector records call, turn and transport metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	sessionsActive   prometheus.Gauge
	sessionsTotal    *prometheus.CounterVec
	turnsTotal       *prometheus.CounterVec
	turnDuration     prometheus.Histogram
	serviceFailures  *prometheus.CounterVec
	framesSent       prometheus.Counter
	transportErrors  *prometheus.CounterVec
	persistenceFails prometheus.Counter
}

// NewCollector registers the collector's metrics with reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of media streams currently open",
		}),
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of media streams started, by scenario",
		}, []string{"scenario"}),
		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of dispatched turns, by outcome",
		}, []string{"outcome"}),
		turnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from dispatch to the last outbound frame of a turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
		}),
		serviceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_failures_total",
			Help:      "Failed or timed out calls to external AI services",
		}, []string{"service"}),
		framesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound media frames written to the stream",
		}),
		transportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Failed writes to the media stream",
		}, []string{"op"}),
		persistenceFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed transcript writes",
		}),
	}
}

func (c *Collector) SessionStarted(scenario string) {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.sessionsTotal.WithLabelValues(scenario).Inc()
}

func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// TurnCompleted records one dispatched turn.
func (c *Collector) TurnCompleted(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
	c.turnDuration.Observe(d.Seconds())
}

func (c *Collector) ServiceFailed(service string) {
	if c == nil {
		return
	}
	c.serviceFailures.WithLabelValues(service).Inc()
}

func (c *Collector) FramesSent(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.framesSent.Add(float64(n))
}

func (c *Collector) TransportFailed(op string) {
	if c == nil {
		return
	}
	c.transportErrors.WithLabelValues(op).Inc()
}

func (c *Collector) PersistenceFailed() {
	if c == nil {
		return
	}
	c.persistenceFails.Inc()
}
