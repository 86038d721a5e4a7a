package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/routecast/core/monitoring"
	coremqtt "github.com/kilianp07/routecast/core/mqtt"
	"github.com/kilianp07/routecast/infra/logger"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// pahoClient is the subset of paho.Client used by PahoClient.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

type subscription struct {
	qos     byte
	handler coremqtt.MessageHandler
}

// PahoClient implements the core mqtt.Client on top of Eclipse Paho.
// Subscriptions are remembered and replayed after every reconnect since
// the session is not persistent.
type PahoClient struct {
	cli     pahoClient
	log     logger.Logger
	retries int
	backoff time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to cfg.Broker and blocks until the first
// connection attempt completes.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	pc := &PahoClient{
		log:     logger.New("mqtt_client"),
		retries: cfg.PublishRetries,
		backoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		subs:    map[string]subscription{},
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		pc.log.Infof("connected to %s as %s", cfg.Broker, cfg.ClientID)
		pc.replay(c)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		pc.log.Errorf("connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		pc.log.Warnf("reconnecting to %s", cfg.Broker)
	})

	cli := newMQTTClient(opts)
	if err := wait(cli.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	pc.cli = cli
	return pc, nil
}

func wait(t paho.Token) error {
	t.Wait()
	return t.Error()
}

func handler(h coremqtt.MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) { h(m.Topic(), m.Payload()) }
}

// replay restores every remembered subscription on c.
func (p *PahoClient) replay(c paho.Client) {
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for filter, s := range p.subs {
		subs[filter] = s
	}
	p.mu.Unlock()
	for filter, s := range subs {
		if err := wait(c.Subscribe(filter, s.qos, handler(s.handler))); err != nil {
			p.log.Errorf("resubscribe %s: %v", filter, err)
		}
	}
}

// Subscribe registers h for filter and keeps it for reconnects.
func (p *PahoClient) Subscribe(filter string, qos byte, h coremqtt.MessageHandler) error {
	p.mu.Lock()
	p.subs[filter] = subscription{qos: qos, handler: h}
	p.mu.Unlock()
	if err := wait(p.cli.Subscribe(filter, qos, handler(h))); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	p.log.Infof("subscribed to %s (qos %d)", filter, qos)
	return nil
}

// Unsubscribe drops the filters from the session and from the replay set.
func (p *PahoClient) Unsubscribe(filters ...string) error {
	p.mu.Lock()
	for _, f := range filters {
		delete(p.subs, f)
	}
	p.mu.Unlock()
	return wait(p.cli.Unsubscribe(filters...))
}

// Publish sends payload, retrying up to PublishRetries times with a doubling
// backoff. The final failure is reported to the monitoring facade.
func (p *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	delay := p.backoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = wait(p.cli.Publish(topic, qos, retained, payload)); err == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Warnf("publish to %s failed (attempt %d): %v", topic, attempt+1, err)
		if attempt >= p.retries {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	err = fmt.Errorf("publish %s: %w", topic, err)
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return err
}

// IsConnected reports the session state.
func (p *PahoClient) IsConnected() bool {
	return p.cli != nil && p.cli.IsConnected()
}

// Disconnect waits up to 250ms for in-flight work and closes the session.
func (p *PahoClient) Disconnect() {
	if p.IsConnected() {
		p.cli.Disconnect(250)
	}
}
