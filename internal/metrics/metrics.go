package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	passes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aistack",
			Subsystem: "supervisor",
			Name:      "passes_total",
			Help:      "Number of completed supervisory passes.",
		},
	)
	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aistack",
			Subsystem: "supervisor",
			Name:      "outcomes_total",
			Help:      "Per-service outcomes across passes.",
		}, []string{"service", "outcome"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aistack",
			Subsystem: "supervisor",
			Name:      "probe_duration_seconds",
			Help:      "Observed liveness probe duration per service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aistack",
			Subsystem: "supervisor",
			Name:      "service_up",
			Help:      "Last observed liveness per service (1 = listener detected).",
		}, []string{"service"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{passes, outcomes, probeDuration, serviceUp}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncPass() {
	if regOK.Load() {
		passes.Inc()
	}
}

func IncOutcome(service, outcome string) {
	if regOK.Load() {
		outcomes.WithLabelValues(service, outcome).Inc()
	}
}

func ObserveProbeDuration(service string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(service).Observe(seconds)
	}
}

func SetServiceUp(service string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}
