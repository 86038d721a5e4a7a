package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/infra/logger"
)

type ackRecorder struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

type fakePublisher struct {
	updates []model.VehicleLocationUpdate
	err     error
}

func (f *fakePublisher) PublishFrom(source string, u model.VehicleLocationUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, u)
	return nil
}

type fakeChannel struct {
	exchange, kind, queue, bound string
	msgs                         chan amqp.Delivery
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchange, f.kind = name, kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.queue = name
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, _, exchange string, _ bool, _ amqp.Table) error {
	f.bound = name + "->" + exchange
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.msgs, nil
}

func TestLocationConsumer_Start(t *testing.T) {
	ch := &fakeChannel{msgs: make(chan amqp.Delivery, 4)}
	pub := &fakePublisher{}
	acks := &ackRecorder{}
	c := NewLocationConsumer(ch, Config{}, pub, logger.NopLogger{})

	ch.msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte(`{"vehicle_id":"bus-1","lat":48.1,"lng":2.2,"ts":1700000000000}`)}
	ch.msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`not json`)}
	ch.msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"lat":1,"lng":1}`)}
	close(ch.msgs)

	err := c.Start(context.Background())
	require.Error(t, err)

	assert.Equal(t, "location_fanout", ch.exchange)
	assert.Equal(t, amqp.ExchangeFanout, ch.kind)
	assert.Equal(t, "routecast_locations->location_fanout", ch.bound)

	require.Len(t, pub.updates, 1)
	assert.Equal(t, "bus-1", pub.updates[0].VehicleID)
	assert.Equal(t, int64(1700000000000), pub.updates[0].Timestamp.UnixMilli())
	assert.Equal(t, []uint64{1}, acks.acks)
	assert.Equal(t, []uint64{2, 3}, acks.nacks)
	assert.Equal(t, []bool{false, false}, acks.requeue)
}

func TestLocationConsumer_RequeuesOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("closed")}
	acks := &ackRecorder{}
	c := NewLocationConsumer(nil, Config{}, pub, logger.NopLogger{})

	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 7, Body: []byte(`{"vehicle_id":"v","lat":1,"lng":1}`)}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.consume(ctx, msgs), context.DeadlineExceeded)

	assert.Equal(t, []uint64{7}, acks.nacks)
	assert.Equal(t, []bool{true}, acks.requeue)
}

func TestLocationConsumer_NilChannel(t *testing.T) {
	c := NewLocationConsumer(nil, Config{}, &fakePublisher{}, logger.NopLogger{})
	assert.Error(t, c.Start(context.Background()))
}

type recordingChannel struct {
	exchange string
	msg      amqp.Publishing
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	r.exchange = exchange
	r.msg = msg
	return nil
}

func TestPublisher_PublishLocation(t *testing.T) {
	rc := &recordingChannel{}
	p := NewPublisher(rc, Config{Exchange: "positions"})
	u := model.VehicleLocationUpdate{VehicleID: "v1", TripID: "t1", Coordinate: model.Coordinate{Lat: 1, Lng: 2}, Timestamp: time.UnixMilli(42)}
	require.NoError(t, p.PublishLocation(context.Background(), u))

	assert.Equal(t, "positions", rc.exchange)
	assert.Equal(t, "application/json", rc.msg.ContentType)
	var pm model.PositionMessage
	require.NoError(t, json.Unmarshal(rc.msg.Body, &pm))
	assert.Equal(t, "t1", pm.TripID)
	require.NotNil(t, pm.TS)
	assert.Equal(t, int64(42), *pm.TS)
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "location_fanout", cfg.Exchange)
	assert.Equal(t, 10, cfg.Prefetch)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, Config{Enabled: true, Prefetch: -1, URL: "amqp://x"}.Validate())
}
