package metrics

import (
	"time"

	"github.com/kilianp07/routecast/core/model"
)

// LocationEvent describes one location update after fan-out.
type LocationEvent struct {
	VehicleID  string
	TripID     string
	Source     string
	Coordinate model.Coordinate
	// Recipients is the number of subscriptions the update was offered to.
	Recipients int
	Time       time.Time
}

// MetricsSink records location dissemination for observability purposes.
type MetricsSink interface {
	RecordLocation(ev LocationEvent) error
}

// RouteEvent captures the outcome of a route interpolation.
type RouteEvent struct {
	RouteID        string
	Waypoints      int
	Points         int
	DistanceMeters float64
	Duration       time.Duration
	Time           time.Time
}

// RouteRecorder records route interpolations.
type RouteRecorder interface {
	RecordRoute(ev RouteEvent) error
}

// Subscription lifecycle actions.
const (
	ActionSubscribed   = "subscribed"
	ActionUnsubscribed = "unsubscribed"
	ActionDenied       = "denied"
	ActionTornDown     = "torn_down"
)

// SubscriptionEvent records a change of the live subscription set.
type SubscriptionEvent struct {
	SubscriptionID string
	Subject        string
	Destination    string
	Action         string
	Reason         string
	Time           time.Time
}

// SubscriptionRecorder records subscription lifecycle events.
type SubscriptionRecorder interface {
	RecordSubscription(ev SubscriptionEvent) error
}

// DeliveryEvent captures a single delivery attempt to a subscriber.
type DeliveryEvent struct {
	SubscriptionID string
	Destination    string
	VehicleID      string
	Latency        time.Duration
	// Dropped is set when the update was refused because its subscriber
	// lagged too far behind.
	Dropped bool
	Error   string
	Time    time.Time
}

// DeliveryRecorder records deliveries.
type DeliveryRecorder interface {
	RecordDelivery(ev DeliveryEvent) error
}

// ActiveSubscriptionsRecorder records the size of the live subscription set.
type ActiveSubscriptionsRecorder interface {
	RecordActiveSubscriptions(n int) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordLocation(LocationEvent) error { return nil }

func (NopSink) RecordRoute(RouteEvent) error               { return nil }
func (NopSink) RecordSubscription(SubscriptionEvent) error { return nil }
func (NopSink) RecordDelivery(DeliveryEvent) error         { return nil }
func (NopSink) RecordActiveSubscriptions(int) error        { return nil }
