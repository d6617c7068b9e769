// Package metrics exposes safeguard activity as Prometheus metrics. The
// Sink implements events.Sink so the enforcer feeds it the same stream the
// audit sinks receive.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swarmgate/safeguard/internal/events"
)

const namespace = "safeguard"

// Sink counts safeguard events by type, guardrail, and action.
type Sink struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	checksTotal     *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	checkLatency    prometheus.Histogram
}

// NewSink creates the sink and registers its collectors. A nil registry gets
// a private one, keeping tests isolated from the default registry.
func NewSink(registry *prometheus.Registry) *Sink {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Sink{
		registry: registry,
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total safeguard events by type",
			},
			[]string{"event_type"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total guardrail checks by guardrail type",
			},
			[]string{"guardrail_type"},
		),
		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total detected violations by source and target agent",
			},
			[]string{"source_agent", "target_agent"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total applied actions by action kind",
			},
			[]string{"action"},
		),
		checkLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "End-to-end safeguard check latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(s.eventsTotal, s.checksTotal, s.violationsTotal, s.actionsTotal, s.checkLatency)
	return s
}

// ObserveCheckLatency records one end-to-end check duration.
func (s *Sink) ObserveCheckLatency(d time.Duration) {
	s.checkLatency.Observe(d.Seconds())
}

func (s *Sink) Send(event *events.Event) {
	s.eventsTotal.WithLabelValues(event.Type.String()).Inc()
	switch event.Type {
	case events.TypeCheck:
		s.checksTotal.WithLabelValues(event.GuardrailType).Inc()
	case events.TypeViolation:
		s.violationsTotal.WithLabelValues(event.SourceAgent, event.TargetAgent).Inc()
	case events.TypeAction:
		s.actionsTotal.WithLabelValues(event.Action).Inc()
	}
}

func (s *Sink) Close() {}

// Handler serves the registry in Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
