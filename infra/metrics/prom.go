package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/routecast/core/metrics"
)

// PromSink records dissemination events in Prometheus metrics.
type PromSink struct {
	locations     *prometheus.CounterVec
	recipients    prometheus.Histogram
	subscriptions *prometheus.CounterVec
	active        prometheus.Gauge
	deliveries    *prometheus.CounterVec
	latency       prometheus.Histogram
	routes        prometheus.Counter
	routePoints   prometheus.Histogram
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.locations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_updates_total",
		Help: "Total number of location updates dispatched",
	}, []string{"source"})); err != nil {
		return nil, err
	}
	if s.recipients, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "location_update_recipients",
		Help:    "Number of subscriptions a location update was offered to",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})); err != nil {
		return nil, err
	}
	if s.subscriptions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_events_total",
		Help: "Subscription lifecycle events by action",
	}, []string{"action"})); err != nil {
		return nil, err
	}
	if s.active, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subscriptions_active",
		Help: "Number of live subscriptions",
	})); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_deliveries_total",
		Help: "Deliveries to subscribers by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subscription_delivery_latency_seconds",
		Help:    "Time between fan-out and delivery",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.routes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "route_interpolations_total",
		Help: "Number of interpolated routes",
	})); err != nil {
		return nil, err
	}
	if s.routePoints, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_polyline_points",
		Help:    "Number of points of interpolated polylines",
		Buckets: prometheus.ExponentialBuckets(2, 4, 8),
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// register registers c or returns the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordLocation counts the update and how many subscribers it reached.
func (s *PromSink) RecordLocation(ev coremetrics.LocationEvent) error {
	src := ev.Source
	if src == "" {
		src = "unknown"
	}
	s.locations.WithLabelValues(src).Inc()
	s.recipients.Observe(float64(ev.Recipients))
	return nil
}

// RecordSubscription counts lifecycle events.
func (s *PromSink) RecordSubscription(ev coremetrics.SubscriptionEvent) error {
	s.subscriptions.WithLabelValues(ev.Action).Inc()
	return nil
}

// RecordActiveSubscriptions sets the gauge.
func (s *PromSink) RecordActiveSubscriptions(n int) error {
	s.active.Set(float64(n))
	return nil
}

// RecordDelivery records delivery outcome and latency.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	switch {
	case ev.Dropped:
		s.deliveries.WithLabelValues("dropped").Inc()
	case ev.Error != "":
		s.deliveries.WithLabelValues("failed").Inc()
	default:
		s.deliveries.WithLabelValues("delivered").Inc()
		s.latency.Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordRoute records an interpolation.
func (s *PromSink) RecordRoute(ev coremetrics.RouteEvent) error {
	s.routes.Inc()
	s.routePoints.Observe(float64(ev.Points))
	return nil
}
