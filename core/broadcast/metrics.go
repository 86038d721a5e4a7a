package broadcast

import "github.com/prometheus/client_golang/prometheus"

var (
	locationUpdates     *prometheus.CounterVec
	deliveries          *prometheus.CounterVec
	laggingTeardowns      prometheus.Counter
	activeSubscriptions prometheus.Gauge
	deliveryLatency     prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Gauge, prometheus.Histogram) {
	upd := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_location_updates_total",
			Help: "Number of location updates fanned out",
		},
		[]string{"source"},
	)
	del := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Number of deliveries to subscribers by result",
		},
		[]string{"result"},
	)
	lag := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_lagging_teardowns_total",
			Help: "Subscriptions torn down because their backlog reached the mailbox size",
		},
	)
	act := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_subscriptions",
			Help: "Number of live subscriptions",
		},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_delivery_latency_seconds",
			Help:    "Time between fan-out and delivery to a subscriber",
			Buckets: prometheus.DefBuckets,
		},
	)
	return upd, del, lag, act, lat
}

func init() {
	locationUpdates, deliveries, laggingTeardowns, activeSubscriptions, deliveryLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers broadcast metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(locationUpdates, deliveries, laggingTeardowns, activeSubscriptions, deliveryLatency)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	locationUpdates, deliveries, laggingTeardowns, activeSubscriptions, deliveryLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
