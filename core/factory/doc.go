// Package factory builds pluggable routecast components from configuration.
// A component is selected by a ModuleConfig type name; its settings arrive as
// a raw map and are decoded into the factory's own struct with Decode.
//
// The metrics sinks are registered this way:
//
//	coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
//		var c struct {
//			URL    string `json:"url"`
//			Bucket string `json:"bucket"`
//		}
//		if err := factory.Decode(conf, &c); err != nil {
//			return nil, err
//		}
//		return NewInfluxSinkWithFallback(c.URL, "", "", c.Bucket), nil
//	})
//	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
package factory
