package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/core/workers"
	"github.com/kilianp07/routecast/internal/eventbus"
)

// channelSet holds an immutable snapshot of the subscriptions of a channel.
// Writers replace the snapshot under Dispatcher.mu, readers only load it.
type channelSet struct {
	subs atomic.Pointer[[]*Subscription]
}

func (c *channelSet) load() []*Subscription {
	if p := c.subs.Load(); p != nil {
		return *p
	}
	return nil
}

// Dispatcher distributes vehicle location updates to subscribers.
type Dispatcher struct {
	cfg    Config
	gate   authz.Gate
	pool   *workers.Pool
	sink   metrics.MetricsSink
	bus    *eventbus.TypedBus[Event]
	logger logger.Logger
	store  tracking.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	channels map[string]*channelSet
	closed   atomic.Bool
	active   atomic.Int64
}

// NewDispatcher creates a Dispatcher running fan-out on pool. sink and bus
// are optional.
func NewDispatcher(cfg Config, gate authz.Gate, pool *workers.Pool, sink metrics.MetricsSink, bus *eventbus.TypedBus[Event], log logger.Logger) (*Dispatcher, error) {
	if gate == nil || pool == nil || log == nil {
		return nil, fmt.Errorf("broadcast: nil parameter provided to NewDispatcher")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		gate:     gate,
		pool:     pool,
		sink:     sink,
		bus:      bus,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*channelSet),
	}, nil
}

// SetStore configures the store receiving the last known position of each
// vehicle.
func (d *Dispatcher) SetStore(store tracking.Store) {
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()
}

// Namespace returns the destination prefix served by the dispatcher.
func (d *Dispatcher) Namespace() string { return d.cfg.Namespace }

// Publish fans u out to the subscribers of its vehicle and trip channels.
func (d *Dispatcher) Publish(u model.VehicleLocationUpdate) error {
	return d.PublishFrom("", u)
}

// PublishFrom is Publish with the name of the ingestion source, used for
// metrics. It returns as soon as the fan-out is handed to the location pool,
// or after running it inline when the pool is saturated.
func (d *Dispatcher) PublishFrom(source string, u model.VehicleLocationUpdate) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if u.VehicleID == "" {
		return ErrInvalidUpdate
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	err := d.pool.Submit(u.VehicleID, func() { d.fanOut(source, u) })
	if errors.Is(err, workers.ErrPoolClosed) {
		return ErrClosed
	}
	return err
}

func (d *Dispatcher) fanOut(source string, u model.VehicleLocationUpdate) {
	d.mu.RLock()
	store := d.store
	d.mu.RUnlock()
	if store != nil {
		store.Record(u)
	}

	now := time.Now()
	n := d.offer(VehicleDestination(u.VehicleID).Channel(), u, now)
	if u.TripID != "" {
		n += d.offer(TripDestination(u.TripID).Channel(), u, now)
	}
	locationUpdates.WithLabelValues(source).Inc()
	if err := d.sink.RecordLocation(metrics.LocationEvent{
		VehicleID:  u.VehicleID,
		TripID:     u.TripID,
		Source:     source,
		Coordinate: u.Coordinate,
		Recipients: n,
		Time:       u.Timestamp,
	}); err != nil {
		d.logger.Warnf("record location for %s: %v", u.VehicleID, err)
	}
}

func (d *Dispatcher) offer(channel string, u model.VehicleLocationUpdate, now time.Time) int {
	d.mu.RLock()
	set := d.channels[channel]
	d.mu.RUnlock()
	if set == nil {
		return 0
	}
	subs := set.load()
	for _, s := range subs {
		s.offer(Delivery{Destination: s.destination, Update: u, Enqueued: now})
	}
	return len(subs)
}

// Subscribe registers sink on destination for principal p. Denials wrap
// ErrSubscriptionDenied, malformed destinations ErrInvalidDestination.
func (d *Dispatcher) Subscribe(p authz.Principal, destination string, sink Sink) (*Subscription, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if sink == nil {
		return nil, fmt.Errorf("broadcast: nil sink")
	}
	if dec := d.gate.Authorize(p, destination); !dec.Allowed {
		d.emit(Event{
			Action:      metrics.ActionDenied,
			Subject:     p.Subject,
			Destination: destination,
			Reason:      dec.Reason,
		})
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionDenied, dec.Reason)
	}
	dest, err := ParseDestination(d.cfg.Namespace, destination)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(d.ctx)
	s := &Subscription{
		id:          uuid.NewString(),
		principal:   p,
		destination: destination,
		channel:     dest.Channel(),
		d:           d,
		sink:        sink,
		limit:       d.cfg.MailboxSize,
		ready:       make(chan struct{}, 1),
		timeout:     d.cfg.DeliveryTimeout(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	set := d.channels[s.channel]
	if set == nil {
		set = &channelSet{}
		d.channels[s.channel] = set
	}
	old := set.load()
	next := make([]*Subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	set.subs.Store(&next)
	d.wg.Add(1)
	d.mu.Unlock()

	go s.run()

	n := d.active.Add(1)
	activeSubscriptions.Set(float64(n))
	d.emit(Event{
		Action:         metrics.ActionSubscribed,
		SubscriptionID: s.id,
		Subject:        p.Subject,
		Destination:    destination,
		Active:         int(n),
	})
	d.logger.Debugf("subscription %s: %s subscribed to %s", s.id, p.Subject, destination)
	return s, nil
}

// Unsubscribe ends s. It is equivalent to s.Close.
func (d *Dispatcher) Unsubscribe(s *Subscription) {
	if s != nil {
		s.Close()
	}
}

// Subscribers returns the number of live subscriptions on destination.
func (d *Dispatcher) Subscribers(dest Destination) int {
	d.mu.RLock()
	set := d.channels[dest.Channel()]
	d.mu.RUnlock()
	if set == nil {
		return 0
	}
	return len(set.load())
}

// Active returns the number of live subscriptions.
func (d *Dispatcher) Active() int { return int(d.active.Load()) }

func (d *Dispatcher) remove(s *Subscription, action, reason string, cause error) {
	s.once.Do(func() {
		s.setErr(cause)
		s.cancel()

		d.mu.Lock()
		if set := d.channels[s.channel]; set != nil {
			old := set.load()
			next := make([]*Subscription, 0, len(old))
			for _, o := range old {
				if o != s {
					next = append(next, o)
				}
			}
			if len(next) == 0 {
				delete(d.channels, s.channel)
			} else {
				set.subs.Store(&next)
			}
		}
		d.mu.Unlock()

		n := d.active.Add(-1)
		activeSubscriptions.Set(float64(n))
		if cause != nil {
			d.logger.Warnf("subscription %s on %s torn down: %v", s.id, s.destination, cause)
		}
		d.emit(Event{
			Action:         action,
			SubscriptionID: s.id,
			Subject:        s.principal.Subject,
			Destination:    s.destination,
			Reason:         reason,
			Active:         int(n),
		})
	})
}

func (d *Dispatcher) recordDelivery(s *Subscription, del Delivery, lat time.Duration, dropped bool, err error) {
	rec, ok := d.sink.(metrics.DeliveryRecorder)
	if !ok {
		return
	}
	ev := metrics.DeliveryEvent{
		SubscriptionID: s.id,
		Destination:    s.destination,
		VehicleID:      del.Update.VehicleID,
		Latency:        lat,
		Dropped:        dropped,
		Time:           time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := rec.RecordDelivery(ev); rerr != nil {
		d.logger.Warnf("record delivery: %v", rerr)
	}
}

func (d *Dispatcher) emit(ev Event) {
	if d.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Active == 0 {
		ev.Active = int(d.active.Load())
	}
	d.bus.Publish(ev)
}

// Close ends every subscription and waits for their delivery goroutines.
// Publish and Subscribe return ErrClosed afterwards. Fan-out tasks already
// handed to the pool find no subscribers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed.Swap(true) {
		d.mu.Unlock()
		return
	}
	var all []*Subscription
	for _, set := range d.channels {
		all = append(all, set.load()...)
	}
	d.mu.Unlock()

	for _, s := range all {
		d.remove(s, metrics.ActionUnsubscribed, "dispatcher closed", nil)
	}
	d.cancel()
	d.wg.Wait()
}
