// Package metrics holds the Prometheus collectors shared by the client, the tick
// controller, the view layer and the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supersim"

var (
	// BackendRequests counts simulator calls by endpoint and outcome
	// (ok, rejected, unavailable, malformed).
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Simulator requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// BackendDuration tracks simulator round-trip latency.
	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Simulator round-trip duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"endpoint"})

	// TickTransitions counts committed controller transitions by target state.
	TickTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "transitions_total",
		Help:      "Tick controller transitions by target state",
	}, []string{"state"})

	// StaleResponses counts responses discarded because a newer request was issued.
	StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "stale_responses_total",
		Help:      "Simulator responses discarded as superseded",
	})

	// CurrentTick is the tick of the displayed snapshot.
	CurrentTick = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "current",
		Help:      "Tick of the currently displayed snapshot",
	})

	// SnapshotObjects is the number of identified objects in the displayed snapshot.
	SnapshotObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "objects",
		Help:      "Identified objects in the displayed snapshot",
	})

	// ViewLookups counts memoized view reads by view and result (hit, miss).
	ViewLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "views",
		Name:      "lookups_total",
		Help:      "Memoized view lookups by view and result",
	}, []string{"view", "result"})

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests by route and status",
	}, []string{"route", "status"})

	// StreamClients is the number of connected WebSocket subscribers.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "stream_clients",
		Help:      "Connected WebSocket status subscribers",
	})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
