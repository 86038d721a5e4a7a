package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	messages    *prometheus.CounterVec
	pollReq     prometheus.Counter
	pollResp    prometheus.Counter
	pollTimeout prometheus.Counter
	lastCollect prometheus.Gauge
	latency     prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Gauge, prometheus.Histogram) {
	msg := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_messages_total",
			Help: "Position messages received over MQTT",
		},
		[]string{"mode", "result"},
	)
	req := prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_poll_requests_total", Help: "Number of telemetry poll requests"})
	resp := prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_poll_responses_total", Help: "Number of telemetry poll responses"})
	to := prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_poll_timeout_total", Help: "Number of vehicles that missed a poll"})
	last := prometheus.NewGauge(prometheus.GaugeOpts{Name: "telemetry_last_collect_timestamp_seconds", Help: "Unix timestamp of last telemetry collection"})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "telemetry_collect_latency_seconds", Help: "Latency of telemetry collection", Buckets: prometheus.DefBuckets})
	return msg, req, resp, to, last, lat
}

func init() {
	messages, pollReq, pollResp, pollTimeout, lastCollect, latency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on reg, the default
// registerer when nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(messages, pollReq, pollResp, pollTimeout, lastCollect, latency)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	messages, pollReq, pollResp, pollTimeout, lastCollect, latency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
