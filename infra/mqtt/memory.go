package mqtt

import (
	"sync"

	coremqtt "github.com/kilianp07/routecast/core/mqtt"
)

// Message is a publish recorded by MemoryClient.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// MemoryClient is an in-process broker used by tests and the offline
// simulator. Publishes are delivered synchronously to matching handlers.
type MemoryClient struct {
	mu        sync.Mutex
	subs      map[string]coremqtt.MessageHandler
	Published []Message
	// FailTopics makes Publish fail for the listed topics.
	FailTopics map[string]error
	closed     bool
}

// NewMemoryClient creates an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		subs:       make(map[string]coremqtt.MessageHandler),
		FailTopics: make(map[string]error),
	}
}

func (m *MemoryClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return coremqtt.ErrNotConnected
	}
	if err := m.FailTopics[topic]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.Published = append(m.Published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	var handlers []coremqtt.MessageHandler
	for f, h := range m.subs {
		if coremqtt.Match(f, topic) {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (m *MemoryClient) Subscribe(filter string, _ byte, h coremqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return coremqtt.ErrNotConnected
	}
	m.subs[filter] = h
	return nil
}

func (m *MemoryClient) Unsubscribe(filters ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range filters {
		delete(m.subs, f)
	}
	return nil
}

func (m *MemoryClient) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.subs = make(map[string]coremqtt.MessageHandler)
	m.mu.Unlock()
}

// Messages returns a copy of the recorded publishes.
func (m *MemoryClient) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.Published...)
}
