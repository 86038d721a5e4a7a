package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/routecast/config"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/infra/logger"
	infmqtt "github.com/kilianp07/routecast/infra/mqtt"
)

type mockPublisher struct {
	mu      sync.Mutex
	updates []model.VehicleLocationUpdate
	sources []string
	err     error
}

func (m *mockPublisher) PublishFrom(source string, u model.VehicleLocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sources = append(m.sources, source)
	m.updates = append(m.updates, u)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func newManager(t *testing.T, cfg config.TelemetryConfig, pub LocationPublisher, store tracking.Store) (*Manager, *infmqtt.MemoryClient) {
	t.Helper()
	ResetMetrics(nil)
	cli := infmqtt.NewMemoryClient()
	m, err := NewManager(cli, cfg, pub, store, logger.NopLogger{})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, cli
}

func TestProcess(t *testing.T) {
	pub := &mockPublisher{}
	mgr, _ := newManager(t, config.TelemetryConfig{}, pub, nil)
	payload := []byte(`{"vehicle_id":"veh1","trip_id":"t1","lat":48.85,"lng":2.35,"ts":1700000000000}`)
	if err := mgr.process(payload, "", "push"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if pub.count() != 1 || pub.sources[0] != Source {
		t.Fatalf("expected 1 update from %s, got %v", Source, pub.sources)
	}
	u := pub.updates[0]
	if u.VehicleID != "veh1" || u.TripID != "t1" || u.Coordinate.Lat != 48.85 {
		t.Fatalf("unexpected update: %#v", u)
	}
	if u.Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected timestamp %v", u.Timestamp)
	}
	if v := testutil.ToFloat64(messages.WithLabelValues("push", "accepted")); v != 1 {
		t.Fatalf("expected accepted 1, got %v", v)
	}
}

func TestProcessFromTopic(t *testing.T) {
	pub := &mockPublisher{}
	mgr, _ := newManager(t, config.TelemetryConfig{}, pub, nil)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mgr.now = func() time.Time { return now }
	if err := mgr.process([]byte(`{"lat":1,"lng":2}`), "vehicles/location/veh9", "push"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if pub.updates[0].VehicleID != "veh9" {
		t.Fatalf("expected veh9, got %s", pub.updates[0].VehicleID)
	}
	if !pub.updates[0].Timestamp.Equal(now) {
		t.Fatalf("expected receive time, got %v", pub.updates[0].Timestamp)
	}
}

func TestProcessRejectsInvalid(t *testing.T) {
	pub := &mockPublisher{}
	mgr, _ := newManager(t, config.TelemetryConfig{}, pub, nil)
	cases := map[string]string{
		"garbage":   `{`,
		"range":     `{"vehicle_id":"v","lat":91,"lng":0}`,
		"anonymous": `{"lat":1,"lng":1}`,
	}
	for name, body := range cases {
		if err := mgr.process([]byte(body), "", "push"); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if pub.count() != 0 {
		t.Fatalf("invalid messages published")
	}
	if v := testutil.ToFloat64(messages.WithLabelValues("push", "invalid")); v != 3 {
		t.Fatalf("expected invalid 3, got %v", v)
	}

	pub.err = errors.New("closed")
	if err := mgr.process([]byte(`{"vehicle_id":"v","lat":1,"lng":1}`), "", "push"); err == nil {
		t.Fatalf("publisher error not returned")
	}
}

func TestStartPushSubscription(t *testing.T) {
	pub := &mockPublisher{}
	mgr, cli := newManager(t, config.TelemetryConfig{StatePrefix: "fleet/pos/"}, pub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		_ = cli.Publish("fleet/pos/bus-3", 0, false, []byte(`{"lat":45.1,"lng":5.7}`))
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
	if pub.count() == 0 || pub.updates[0].VehicleID != "bus-3" {
		t.Fatalf("push message not ingested")
	}
}

func TestOnResponse(t *testing.T) {
	mgr, _ := newManager(t, config.TelemetryConfig{}, &mockPublisher{}, nil)
	mgr.respCh = make(chan telemetryMessage, 1)
	mgr.onResponse("vehicles/poll/response/veh7", []byte("hi"))
	mgr.onResponse("vehicles/poll/response/veh8", []byte("full"))
	select {
	case m := <-mgr.respCh:
		if m.VehicleID != "veh7" || string(m.Payload) != "hi" {
			t.Fatalf("unexpected message %#v", m)
		}
	default:
		t.Fatal("no message received")
	}
}

func TestDoPoll(t *testing.T) {
	store := tracking.NewMemoryStore()
	store.Record(model.VehicleLocationUpdate{VehicleID: "veh1", Timestamp: time.Now()})
	store.Record(model.VehicleLocationUpdate{VehicleID: "veh2", Timestamp: time.Now()})
	pub := &mockPublisher{}
	mgr, cli := newManager(t, config.TelemetryConfig{RequestTopic: "req", TimeoutSeconds: 1}, pub, store)
	mgr.respCh <- telemetryMessage{VehicleID: "veh1", Payload: []byte(`{"lat":1,"lng":1}`), Arrived: time.Now()}
	mgr.doPoll(context.Background())

	msgs := cli.Messages()
	if len(msgs) != 1 || msgs[0].Topic != "req" {
		t.Fatalf("expected one poll request, got %+v", msgs)
	}
	if v := testutil.ToFloat64(pollReq); v != 1 {
		t.Fatalf("expected pollReq 1, got %v", v)
	}
	if v := testutil.ToFloat64(pollResp); v != 1 {
		t.Fatalf("expected pollResp 1, got %v", v)
	}
	if v := testutil.ToFloat64(pollTimeout); v != 1 {
		t.Fatalf("expected pollTimeout 1, got %v", v)
	}
	if pub.count() != 1 || pub.updates[0].VehicleID != "veh1" {
		t.Fatalf("poll response not published")
	}
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewManager(nil, config.TelemetryConfig{}, &mockPublisher{}, nil, logger.NopLogger{}); err == nil {
		t.Fatalf("nil client accepted")
	}
	if _, err := NewManager(infmqtt.NewMemoryClient(), config.TelemetryConfig{Mode: "bogus"}, &mockPublisher{}, nil, logger.NopLogger{}); err == nil {
		t.Fatalf("bad mode accepted")
	}
}
