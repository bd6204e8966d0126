// Package metrics exposes the ambient Prometheus counters and histograms
// the ingest pipeline and bus update as they run. Concretizes spec.md
// §4.6's "increments a per-subscriber drop counter" as an externally
// observable metric instead of an internal-only field, grounded in the
// same prometheus/client_golang registry style the retrieval pack's
// telemetry tooling uses (99souls-ariadne/engine/telemetry/metrics).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "airwatch",
		Subsystem: "ingest",
		Name:      "pipeline_duration_seconds",
		Help:      "Time spent running the ingest pipeline for one telemetry sample.",
		Buckets:   prometheus.DefBuckets,
	})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airwatch",
		Subsystem: "alerts",
		Name:      "emitted_total",
		Help:      "Number of new alerts raised, by severity.",
	}, []string{"severity"})

	AlertsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airwatch",
		Subsystem: "alerts",
		Name:      "resolved_total",
		Help:      "Number of alerts resolved, by cause.",
	}, []string{"cause"})

	SubscriberDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airwatch",
		Subsystem: "bus",
		Name:      "subscriber_drops_total",
		Help:      "Events dropped because a subscriber's sink was full.",
	})

	SubscribersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "airwatch",
		Subsystem: "bus",
		Name:      "subscribers_connected",
		Help:      "Current count of live push-channel subscribers.",
	})

	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airwatch",
		Subsystem: "ingest",
		Name:      "errors_total",
		Help:      "Ingest pipeline failures, by error kind.",
	}, []string{"kind"})
)

// Handler returns the /metrics exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
