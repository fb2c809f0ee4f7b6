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

	tasksRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filemetrics",
			Subsystem: "task",
			Name:      "recorded_total",
			Help:      "Number of completed tasks persisted to the history store.",
		},
	)
	tasksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filemetrics",
			Subsystem: "task",
			Name:      "dropped_total",
			Help:      "Number of tasks dropped before recording, by reason.",
		}, []string{"reason"},
	)
	sizeDelta = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "filemetrics",
			Subsystem: "task",
			Name:      "size_delta_bytes",
			Help:      "Destination minus source size per recorded task. Negative means the file shrank.",
			Buckets:   prometheus.LinearBuckets(-2e9, 5e8, 9),
		},
	)
	processingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "filemetrics",
			Subsystem: "task",
			Name:      "processing_duration_seconds",
			Help:      "Pipeline-reported wall time between task start and finish.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	panelRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filemetrics",
			Subsystem: "panel",
			Name:      "requests_total",
			Help:      "Panel view requests served, by view.",
		}, []string{"view"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{tasksRecorded, tasksDropped, sizeDelta, processingDuration, panelRequests}
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
// The caller is responsible for wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRecorded() {
	if regOK.Load() {
		tasksRecorded.Inc()
	}
}

func IncDropped(reason string) {
	if regOK.Load() {
		tasksDropped.WithLabelValues(reason).Inc()
	}
}

func ObserveSizeDelta(bytes float64) {
	if regOK.Load() {
		sizeDelta.Observe(bytes)
	}
}

func ObserveDuration(seconds float64) {
	if regOK.Load() {
		processingDuration.Observe(seconds)
	}
}

func IncPanelRequest(view string) {
	if regOK.Load() {
		panelRequests.WithLabelValues(view).Inc()
	}
}
