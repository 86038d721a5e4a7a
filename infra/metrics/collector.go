package metrics

import (
	"context"

	"github.com/kilianp07/routecast/core/broadcast"
	coremetrics "github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/internal/eventbus"
)

// StartEventCollector subscribes to the dispatcher event bus and records
// subscription metrics. It stops when the context is canceled or the bus is
// closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[broadcast.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if r, ok := sink.(coremetrics.SubscriptionRecorder); ok {
					_ = r.RecordSubscription(coremetrics.SubscriptionEvent{
						SubscriptionID: ev.SubscriptionID,
						Subject:        ev.Subject,
						Destination:    ev.Destination,
						Action:         ev.Action,
						Reason:         ev.Reason,
						Time:           ev.Time,
					})
				}
				if r, ok := sink.(coremetrics.ActiveSubscriptionsRecorder); ok {
					_ = r.RecordActiveSubscriptions(ev.Active)
				}
			}
		}
	}()
}
