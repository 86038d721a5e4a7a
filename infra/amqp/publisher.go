package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/routecast/core/model"
)

// PublishChannel is the subset of *amqp.Channel used by Publisher.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher writes positions to the location exchange.
type Publisher struct {
	ch       PublishChannel
	exchange string
}

func NewPublisher(ch PublishChannel, cfg Config) *Publisher {
	cfg.SetDefaults()
	return &Publisher{ch: ch, exchange: cfg.Exchange}
}

// PublishLocation sends u with a 5s timeout.
func (p *Publisher) PublishLocation(ctx context.Context, u model.VehicleLocationUpdate) error {
	body, err := json.Marshal(model.NewPositionMessage(u))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   u.Timestamp,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", u.VehicleID, err)
	}
	return nil
}
