package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/internal/validate"
)

// Source tags updates consumed from RabbitMQ.
const Source = "amqp"

// LocationPublisher accepts decoded updates.
type LocationPublisher interface {
	PublishFrom(source string, u model.VehicleLocationUpdate) error
}

// Channel is the subset of *amqp.Channel used by the consumer.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

var errInvalidMessage = errors.New("invalid location message")

// LocationConsumer feeds the location exchange into a LocationPublisher.
type LocationConsumer struct {
	ch  Channel
	cfg Config
	pub LocationPublisher
	log logger.Logger
	now func() time.Time
}

func NewLocationConsumer(ch Channel, cfg Config, pub LocationPublisher, log logger.Logger) *LocationConsumer {
	cfg.SetDefaults()
	return &LocationConsumer{ch: ch, cfg: cfg, pub: pub, log: log, now: time.Now}
}

// Start declares the topology and consumes until ctx is done or the
// delivery channel closes.
func (c *LocationConsumer) Start(ctx context.Context) error {
	if c.ch == nil {
		return errors.New("amqp channel not available")
	}
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// routing key is ignored by fanout exchanges
	if err := c.ch.QueueBind(q.Name, "", c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Infof("listening on %s (queue %s)", c.cfg.Exchange, q.Name)
	return c.consume(ctx, msgs)
}

func (c *LocationConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(msg, c.handle(msg.Body))
		}
	}
}

// settle acks handled messages. Malformed messages are dropped, the others
// are requeued.
func (c *LocationConsumer) settle(msg amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, errInvalidMessage):
		c.log.Warnf("dropping message %d: %v", msg.DeliveryTag, err)
		_ = msg.Nack(false, false)
	default:
		c.log.Errorf("handle message %d: %v", msg.DeliveryTag, err)
		_ = msg.Nack(false, true)
	}
}

func (c *LocationConsumer) handle(body []byte) error {
	var pm model.PositionMessage
	if err := json.Unmarshal(body, &pm); err != nil {
		return fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if err := validate.Struct(pm); err != nil {
		return fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if pm.VehicleID == "" {
		return fmt.Errorf("%w: missing vehicle_id", errInvalidMessage)
	}
	u := pm.Update("", c.now())
	c.log.Debugw("location received", map[string]any{"vehicle_id": u.VehicleID, "trip_id": u.TripID})
	return c.pub.PublishFrom(Source, u)
}
