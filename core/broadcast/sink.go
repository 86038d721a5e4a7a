package broadcast

import (
	"context"
	"time"

	"github.com/kilianp07/routecast/core/model"
)

// Delivery is one update addressed to one subscription.
type Delivery struct {
	// Destination is the path the subscriber subscribed to.
	Destination string
	Update      model.VehicleLocationUpdate
	Enqueued    time.Time
}

// Sink receives deliveries for a subscription. Deliver is called from a
// single goroutine per subscription. Returning an error ends the
// subscription.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Delivery) error

func (f SinkFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }
