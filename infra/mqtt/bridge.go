package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/broadcast"
	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/model"
	coremqtt "github.com/kilianp07/routecast/core/mqtt"
)

// BridgeConfig selects the broadcast destinations re-published on MQTT.
type BridgeConfig struct {
	Enabled      bool     `json:"enabled"`
	Destinations []string `json:"destinations"`
	TopicPrefix  string   `json:"topic_prefix"`
	Subject      string   `json:"subject"`
	QoS          byte     `json:"qos"`
	Retain       bool     `json:"retain"`
}

// SetDefaults fills the topic prefix and the service subject.
func (c *BridgeConfig) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "routecast/v1"
	}
	if c.Subject == "" {
		c.Subject = "mqtt-bridge"
	}
}

// Validate checks an enabled bridge has something to forward.
func (c BridgeConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Destinations) == 0 {
		return errors.New("bridge.destinations must not be empty")
	}
	if c.QoS > 2 {
		return fmt.Errorf("bridge.qos %d out of range", c.QoS)
	}
	return nil
}

// BridgeSink publishes every delivery on <prefix>/{vehicleId}/position.
type BridgeSink struct {
	pub    coremqtt.Publisher
	prefix string
	qos    byte
	retain bool
}

// NewBridgeSink returns a sink writing to pub.
func NewBridgeSink(pub coremqtt.Publisher, cfg BridgeConfig) *BridgeSink {
	cfg.SetDefaults()
	return &BridgeSink{pub: pub, prefix: cfg.TopicPrefix, qos: cfg.QoS, retain: cfg.Retain}
}

// Topic returns the topic used for vehicleID.
func (b *BridgeSink) Topic(vehicleID string) string {
	return coremqtt.Join(b.prefix, vehicleID, "position")
}

func (b *BridgeSink) Deliver(ctx context.Context, d broadcast.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(model.NewPositionMessage(d.Update))
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return b.pub.Publish(b.Topic(d.Update.VehicleID), b.qos, b.retain, payload)
}

// SubscriptionSource creates broadcast subscriptions.
type SubscriptionSource interface {
	Subscribe(p authz.Principal, destination string, sink broadcast.Sink) (*broadcast.Subscription, error)
}

// Bridge holds the subscriptions opened by StartBridge.
type Bridge struct {
	mu   sync.Mutex
	subs []*broadcast.Subscription
	log  logger.Logger
}

// StartBridge subscribes every configured destination with the bridge
// service principal. A failing destination closes the ones already opened.
func StartBridge(src SubscriptionSource, pub coremqtt.Publisher, cfg BridgeConfig, log logger.Logger) (*Bridge, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sink := NewBridgeSink(pub, cfg)
	principal := authz.Principal{Subject: cfg.Subject, Authenticated: true}
	b := &Bridge{log: log}
	for _, dest := range cfg.Destinations {
		sub, err := src.Subscribe(principal, dest, sink)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("bridge %s: %w", dest, err)
		}
		b.subs = append(b.subs, sub)
		go b.watch(sub)
		log.Infof("bridging %s to %s", dest, sink.Topic("{vehicleId}"))
	}
	return b, nil
}

func (b *Bridge) watch(sub *broadcast.Subscription) {
	<-sub.Done()
	if err := sub.Err(); err != nil {
		b.log.Errorf("bridge subscription %s ended: %v", sub.Destination(), err)
	}
}

// Subscriptions returns the number of bridged destinations.
func (b *Bridge) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every bridged subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
