package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordLocation forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordLocation(ev LocationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordLocation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRoute forwards route events.
func (m *MultiSink) RecordRoute(ev RouteEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RouteRecorder); ok {
			if err := rec.RecordRoute(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSubscription forwards subscription events.
func (m *MultiSink) RecordSubscription(ev SubscriptionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SubscriptionRecorder); ok {
			if err := rec.RecordSubscription(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDelivery forwards delivery events.
func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DeliveryRecorder); ok {
			if err := rec.RecordDelivery(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActiveSubscriptions forwards the gauge when supported by the sink.
func (m *MultiSink) RecordActiveSubscriptions(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ActiveSubscriptionsRecorder); ok {
			if err := rec.RecordActiveSubscriptions(n); err != nil {
				return err
			}
		}
	}
	return nil
}
