// Package metrics defines the sinks that observe route building and location
// dissemination. A MetricsSink records every dispatched location update and
// may implement the optional recorder interfaces for route, subscription and
// delivery events. Sinks such as PromSink and InfluxSink live in infra/metrics
// and are combined with NewMultiSink. NewMetricsSink builds the configured
// sinks through the factory registry.
package metrics
