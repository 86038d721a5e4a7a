// Package mqtt defines the broker abstraction used by ingestion, the
// subscriber bridge and the simulator.
package mqtt

// MessageHandler is called for every message received on a subscription.
type MessageHandler func(topic string, payload []byte)

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber registers handlers for topic filters. Filters use the MQTT
// wildcards '+' and '#'.
type Subscriber interface {
	Subscribe(filter string, qos byte, h MessageHandler) error
	Unsubscribe(filters ...string) error
}

// Client is a connected broker session.
type Client interface {
	Publisher
	Subscriber
	Disconnect()
}
