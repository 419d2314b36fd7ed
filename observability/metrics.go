// Package observability holds the Prometheus collectors shared by the axon and
// the dendrite.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parall4x/bittensor/wire"
)

var (
	registerOnce sync.Once

	axonRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bittensor",
			Subsystem: "axon",
			Name:      "requests_total",
			Help:      "Inbound Forward/Backward calls by return code.",
		},
		[]string{"method", "code"},
	)
	axonDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bittensor",
			Subsystem: "axon",
			Name:      "request_duration_seconds",
			Help:      "Inbound call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
	dendriteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bittensor",
			Subsystem: "dendrite",
			Name:      "requests_total",
			Help:      "Outbound Forward/Backward calls by return code.",
		},
		[]string{"method", "code"},
	)
	dendriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bittensor",
			Subsystem: "dendrite",
			Name:      "request_duration_seconds",
			Help:      "Outbound call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
	nucleusInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bittensor",
			Subsystem: "axon",
			Name:      "nucleus_in_flight",
			Help:      "Synapse calls currently holding a queue slot.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(axonRequests, axonDuration, dendriteRequests, dendriteDuration, nucleusInFlight)
	})
}

func RecordAxonCall(method string, code wire.ReturnCode, duration time.Duration) {
	RegisterMetrics()
	axonRequests.WithLabelValues(method, code.String()).Inc()
	axonDuration.WithLabelValues(method, code.String()).Observe(duration.Seconds())
}

func RecordDendriteCall(method string, code wire.ReturnCode, duration time.Duration) {
	RegisterMetrics()
	dendriteRequests.WithLabelValues(method, code.String()).Inc()
	dendriteDuration.WithLabelValues(method, code.String()).Observe(duration.Seconds())
}

// NucleusAcquired and NucleusReleased track queue occupancy.
func NucleusAcquired() {
	RegisterMetrics()
	nucleusInFlight.Inc()
}

func NucleusReleased() {
	RegisterMetrics()
	nucleusInFlight.Dec()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
