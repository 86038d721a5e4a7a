package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/core/workers"
	"github.com/kilianp07/routecast/infra/logger"
	"github.com/kilianp07/routecast/internal/eventbus"
)

var parent = authz.Principal{Subject: "parent-1", Authenticated: true}

// collector is a Sink recording every delivery.
type collector struct {
	mu  sync.Mutex
	got []model.VehicleLocationUpdate
}

func (c *collector) Deliver(_ context.Context, d Delivery) error {
	c.mu.Lock()
	c.got = append(c.got, d.Update)
	c.mu.Unlock()
	return nil
}

func (c *collector) snapshot() []model.VehicleLocationUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.VehicleLocationUpdate(nil), c.got...)
}

func (c *collector) waitFor(t *testing.T, n int) []model.VehicleLocationUpdate {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d deliveries got %d", n, len(got))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newDispatcher(t *testing.T, cfg Config, pcfg workers.PoolConfig) (*Dispatcher, *workers.Pool) {
	t.Helper()
	ResetMetrics(nil)
	workers.ResetMetrics(nil)
	pool := workers.NewPool(workers.Location, pcfg, logger.NopLogger{})
	d, err := NewDispatcher(cfg, authz.NewNamespaceGate(cfg.Namespace), pool, nil, nil, logger.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Close()
		pool.Close()
	})
	return d, pool
}

func at(vehicle string, i int) model.VehicleLocationUpdate {
	return model.VehicleLocationUpdate{
		VehicleID:  vehicle,
		Coordinate: model.Coordinate{Lat: float64(i), Lng: 2},
		Timestamp:  time.Unix(int64(i), 0),
	}
}

func TestDispatcher_OrderedFanOut(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 4, QueueSize: 16})

	subs := make([]*collector, 3)
	for i := range subs {
		subs[i] = &collector{}
		_, err := d.Subscribe(parent, "/topic/vehicle/42", subs[i])
		require.NoError(t, err)
	}
	other := &collector{}
	_, err := d.Subscribe(parent, "/topic/vehicle/7", other)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Publish(at("42", i)))
	}
	for _, c := range subs {
		got := c.waitFor(t, 1000)
		require.Len(t, got, 1000)
		for i, u := range got {
			if u.Coordinate.Lat != float64(i) {
				t.Fatalf("delivery %d out of order: %v", i, u.Coordinate.Lat)
			}
		}
	}
	assert.Empty(t, other.snapshot())
}

func TestDispatcher_BurstOnDefaultPool(t *testing.T) {
	var pcfg workers.Config
	pcfg.SetDefaults()
	d, _ := newDispatcher(t, Config{}, pcfg.Location)

	c := &collector{}
	sub, err := d.Subscribe(parent, "/topic/vehicle/77", c)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Publish(at("77", i)))
	}
	got := c.waitFor(t, 1000)
	require.Len(t, got, 1000)
	assert.Equal(t, 999.0, got[999].Coordinate.Lat)
	assert.NoError(t, sub.Err())
	assert.Zero(t, testutil.ToFloat64(laggingTeardowns))
}

func TestDispatcher_ClosedSubscriberIsolated(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 2, QueueSize: 64})

	keep := &collector{}
	gone := &collector{}
	_, err := d.Subscribe(parent, "/topic/vehicle/1", keep)
	require.NoError(t, err)
	closing, err := d.Subscribe(parent, "/topic/vehicle/1", gone)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Publish(at("1", i)))
	}
	keep.waitFor(t, 10)
	closing.Close()
	closing.Close()
	<-closing.Done()
	before := len(gone.snapshot())

	for i := 10; i < 20; i++ {
		require.NoError(t, d.Publish(at("1", i)))
	}
	got := keep.waitFor(t, 20)
	assert.Equal(t, 19.0, got[19].Coordinate.Lat)
	assert.Equal(t, before, len(gone.snapshot()))
	assert.NoError(t, closing.Err())
	assert.Equal(t, 1, d.Subscribers(VehicleDestination("1")))
}

func TestDispatcher_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 1, QueueSize: 8})

	release := make(chan struct{})
	defer close(release)
	slow := SinkFunc(func(ctx context.Context, _ Delivery) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	_, err := d.Subscribe(parent, "/topic/vehicle/9", slow)
	require.NoError(t, err)
	fast := &collector{}
	_, err = d.Subscribe(parent, "/topic/vehicle/9", fast)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, d.Publish(at("9", i)))
	}
	got := fast.waitFor(t, 50)
	for i, u := range got {
		require.Equal(t, float64(i), u.Coordinate.Lat)
	}
}

func TestDispatcher_ClosedMidDeliveryIsolated(t *testing.T) {
	d, _ := newDispatcher(t, Config{DeliveryTimeoutMS: 60_000}, workers.PoolConfig{Workers: 1, QueueSize: 8})

	entered := make(chan struct{})
	cancelled := make(chan error, 1)
	var once sync.Once
	stuck, err := d.Subscribe(parent, "/topic/vehicle/4", SinkFunc(func(ctx context.Context, _ Delivery) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	}))
	require.NoError(t, err)
	healthy := &collector{}
	_, err = d.Subscribe(parent, "/topic/vehicle/4", healthy)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Publish(at("4", i)))
	}
	<-entered
	healthy.waitFor(t, 10)
	assert.Less(t, time.Since(start), 2*time.Second)

	stuck.Close()
	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight delivery not cancelled")
	}
	<-stuck.Done()

	for i := 10; i < 30; i++ {
		require.NoError(t, d.Publish(at("4", i)))
	}
	got := healthy.waitFor(t, 30)
	for i, u := range got {
		require.Equal(t, float64(i), u.Coordinate.Lat)
	}
	assert.NoError(t, stuck.Err())
	assert.Equal(t, 1, d.Subscribers(VehicleDestination("4")))
	assert.Equal(t, 1, d.Active())
}

func TestDispatcher_LaggingSubscriberTornDown(t *testing.T) {
	bus := eventbus.NewTyped[Event]()
	defer bus.Close()
	events := bus.Subscribe()
	ResetMetrics(nil)
	workers.ResetMetrics(nil)
	pool := workers.NewPool(workers.Location, workers.PoolConfig{Workers: 1, QueueSize: 8}, logger.NopLogger{})
	defer pool.Close()
	d, err := NewDispatcher(Config{MailboxSize: 4}, authz.NewNamespaceGate(""), pool, nil, bus, logger.NopLogger{})
	require.NoError(t, err)
	defer d.Close()

	sub, err := d.Subscribe(parent, "/topic/vehicle/8", SinkFunc(func(ctx context.Context, _ Delivery) error {
		<-ctx.Done()
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, metrics.ActionSubscribed, (<-events).Action)

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Publish(at("8", i)))
	}
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("lagging subscription not torn down")
	}
	assert.ErrorIs(t, sub.Err(), ErrSubscriberLagging)
	ev := <-events
	assert.Equal(t, metrics.ActionTornDown, ev.Action)
	assert.Equal(t, ErrSubscriberLagging.Error(), ev.Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(laggingTeardowns))
	assert.Equal(t, 0, d.Active())
}

func TestDispatcher_TeardownOnDeliveryFailure(t *testing.T) {
	ResetMetrics(nil)
	workers.ResetMetrics(nil)
	pool := workers.NewPool(workers.Location, workers.PoolConfig{Workers: 1, QueueSize: 8}, logger.NopLogger{})
	defer pool.Close()
	bus := eventbus.NewTyped[Event]()
	defer bus.Close()
	events := bus.Subscribe()
	d, err := NewDispatcher(Config{}, authz.NewNamespaceGate(""), pool, nil, bus, logger.NopLogger{})
	require.NoError(t, err)
	defer d.Close()

	boom := errors.New("socket reset")
	var calls int
	var mu sync.Mutex
	sub, err := d.Subscribe(parent, "/topic/vehicle/3", SinkFunc(func(context.Context, Delivery) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return boom
	}))
	require.NoError(t, err)
	ev := <-events
	assert.Equal(t, metrics.ActionSubscribed, ev.Action)

	require.NoError(t, d.Publish(at("3", 1)))
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not torn down")
	}
	assert.ErrorIs(t, sub.Err(), boom)
	ev = <-events
	assert.Equal(t, metrics.ActionTornDown, ev.Action)
	assert.Equal(t, sub.ID(), ev.SubscriptionID)

	require.NoError(t, d.Publish(at("3", 2)))
	pool.Close()
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.Equal(t, 0, d.Active())
}

func TestDispatcher_CallerRunsUnderSaturation(t *testing.T) {
	d, pool := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 1, QueueSize: 1})

	c := &collector{}
	_, err := d.Subscribe(parent, "/topic/vehicle/5", c)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, pool.Submit("block", func() {
		close(started)
		<-release
	}))
	<-started
	// fills the single slot
	require.NoError(t, d.Publish(at("5", 0)))

	done := make(chan error, 1)
	go func() { done <- d.Publish(at("5", 1)) }()
	select {
	case err := <-done:
		t.Fatalf("saturated publish returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)

	got := c.waitFor(t, 2)
	assert.Equal(t, 0.0, got[0].Coordinate.Lat)
	assert.Equal(t, 1.0, got[1].Coordinate.Lat)
}

func TestDispatcher_SubscribeRejections(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 1, QueueSize: 1})

	_, err := d.Subscribe(authz.Anonymous, "/topic/vehicle/1", &collector{})
	assert.ErrorIs(t, err, ErrSubscriptionDenied)

	_, err = d.Subscribe(parent, "/queue/admin", &collector{})
	assert.ErrorIs(t, err, ErrSubscriptionDenied)

	_, err = d.Subscribe(parent, "", &collector{})
	assert.ErrorIs(t, err, ErrSubscriptionDenied)

	_, err = d.Subscribe(parent, "/topic/bus/1", &collector{})
	assert.ErrorIs(t, err, ErrInvalidDestination)

	assert.Equal(t, 0, d.Active())
}

func TestDispatcher_TripChannelAndTracking(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 2, QueueSize: 8})
	store := tracking.NewMemoryStore()
	d.SetStore(store)

	trip := &collector{}
	_, err := d.Subscribe(parent, "/topic/trip/morning-run", trip)
	require.NoError(t, err)

	u := at("12", 1)
	u.TripID = "morning-run"
	require.NoError(t, d.PublishFrom("http", u))
	require.NoError(t, d.Publish(at("13", 2)))

	got := trip.waitFor(t, 1)
	assert.Equal(t, "12", got[0].VehicleID)

	require.Eventually(t, func() bool {
		_, ok := store.Get("13")
		return ok
	}, 5*time.Second, 5*time.Millisecond)
	st, ok := store.Get("12")
	require.True(t, ok)
	assert.Equal(t, "morning-run", st.TripID)
}

func TestDispatcher_Close(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 1, QueueSize: 4})
	sub, err := d.Subscribe(parent, "/topic/vehicle/1", &collector{})
	require.NoError(t, err)

	d.Close()
	<-sub.Done()
	assert.ErrorIs(t, d.Publish(at("1", 0)), ErrClosed)
	_, err = d.Subscribe(parent, "/topic/vehicle/1", &collector{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.Publish(model.VehicleLocationUpdate{}), ErrClosed)
}

func TestDispatcher_RejectsAnonymousUpdate(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, workers.PoolConfig{Workers: 1, QueueSize: 4})
	assert.ErrorIs(t, d.Publish(model.VehicleLocationUpdate{}), ErrInvalidUpdate)
}

func TestNewDispatcher_NilParams(t *testing.T) {
	_, err := NewDispatcher(Config{}, nil, nil, nil, nil, logger.NopLogger{})
	assert.Error(t, err)
}
