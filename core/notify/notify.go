// Package notify defines outbound notifications about routes.
package notify

import (
	"context"
	"time"

	"github.com/kilianp07/routecast/core/model"
)

// TypeRouteUpdated is sent after a route polyline has been rebuilt.
const TypeRouteUpdated = "route.updated"

// Notification is an event delivered to external collaborators.
type Notification struct {
	ID         string                `json:"id"`
	Type       string                `json:"type"`
	RouteID    string                `json:"route_id,omitempty"`
	Waypoints  int                   `json:"waypoints"`
	Statistics model.RouteStatistics `json:"statistics"`
	Time       time.Time             `json:"time"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
