// Package telemetry ingests vehicle positions from MQTT, either pushed by
// the vehicles or collected by periodic polls.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/routecast/config"
	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/model"
	coremqtt "github.com/kilianp07/routecast/core/mqtt"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/internal/validate"
)

// Source tags updates published by the manager.
const Source = "mqtt"

// LocationPublisher accepts decoded updates. It is implemented by
// broadcast.Dispatcher.
type LocationPublisher interface {
	PublishFrom(source string, u model.VehicleLocationUpdate) error
}

// Manager collects positions from vehicles either via push or polling.
type Manager struct {
	cfg   config.TelemetryConfig
	cli   coremqtt.Client
	pub   LocationPublisher
	store tracking.Store
	log   logger.Logger
	now   func() time.Time

	respCh chan telemetryMessage
}

type telemetryMessage struct {
	VehicleID string
	Payload   []byte
	Arrived   time.Time
}

// NewManager prepares ingestion on cli. store lists the vehicles expected to
// answer a poll and may be nil.
func NewManager(cli coremqtt.Client, cfg config.TelemetryConfig, pub LocationPublisher, store tracking.Store, log logger.Logger) (*Manager, error) {
	if cli == nil || pub == nil {
		return nil, errors.New("telemetry: client and publisher are required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:    cfg,
		cli:    cli,
		pub:    pub,
		store:  store,
		log:    log,
		now:    time.Now,
		respCh: make(chan telemetryMessage, 100),
	}, nil
}

// Start runs collection until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	mode := strings.ToLower(m.cfg.Mode)
	if mode == "push" || mode == "hybrid" {
		filter := coremqtt.Join(m.cfg.StatePrefix, "+")
		if err := m.cli.Subscribe(filter, m.cfg.QoS, m.onPush); err != nil {
			return fmt.Errorf("subscribe state: %w", err)
		}
		m.log.Infof("telemetry push on %s", filter)
	}
	if mode == "pull" || mode == "hybrid" {
		filter := coremqtt.Join(m.cfg.ResponsePrefix, "+")
		if err := m.cli.Subscribe(filter, m.cfg.QoS, m.onResponse); err != nil {
			return fmt.Errorf("subscribe response: %w", err)
		}
		go m.pollLoop(ctx)
	}
	<-ctx.Done()
	return nil
}

func (m *Manager) onPush(topic string, payload []byte) {
	if err := m.process(payload, topic, "push"); err != nil {
		m.log.Errorf("push decode %s: %v", topic, err)
	}
}

func (m *Manager) onResponse(topic string, payload []byte) {
	select {
	case m.respCh <- telemetryMessage{VehicleID: coremqtt.LastSegment(topic), Payload: payload, Arrived: m.now()}:
	default:
		m.log.Warnf("poll response from %s dropped", topic)
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(m.cfg.Interval()) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.doPoll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) expected() map[string]struct{} {
	exp := make(map[string]struct{})
	if m.store == nil {
		return exp
	}
	for _, st := range m.store.List(tracking.Filter{}) {
		exp[st.VehicleID] = struct{}{}
	}
	return exp
}

func (m *Manager) doPoll(ctx context.Context) {
	start := m.now()
	expected := m.expected()
	pollReq.Inc()
	if err := m.cli.Publish(m.cfg.RequestTopic, m.cfg.QoS, false, []byte("poll")); err != nil {
		m.log.Errorf("poll request: %v", err)
		return
	}
	timeout := time.NewTimer(time.Duration(m.cfg.Timeout()) * time.Second)
	defer timeout.Stop()
	for {
		select {
		case resp := <-m.respCh:
			if err := m.process(resp.Payload, resp.VehicleID, "poll"); err != nil {
				m.log.Errorf("poll decode: %v", err)
				continue
			}
			pollResp.Inc()
			latency.Observe(resp.Arrived.Sub(start).Seconds())
			lastCollect.SetToCurrentTime()
			delete(expected, resp.VehicleID)
		case <-timeout.C:
			for range expected {
				pollTimeout.Inc()
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// process decodes a position message. The vehicle id falls back to the last
// topic level when the body omits it.
func (m *Manager) process(payload []byte, topic, mode string) error {
	var msg model.PositionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		messages.WithLabelValues(mode, "invalid").Inc()
		return err
	}
	if err := validate.Struct(msg); err != nil {
		messages.WithLabelValues(mode, "invalid").Inc()
		return err
	}
	u := msg.Update(coremqtt.LastSegment(topic), m.now())
	if u.VehicleID == "" {
		messages.WithLabelValues(mode, "invalid").Inc()
		return errors.New("missing vehicle id")
	}
	if err := m.pub.PublishFrom(Source, u); err != nil {
		messages.WithLabelValues(mode, "rejected").Inc()
		return fmt.Errorf("publish %s: %w", u.VehicleID, err)
	}
	messages.WithLabelValues(mode, "accepted").Inc()
	return nil
}
