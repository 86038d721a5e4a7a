// Package amqp consumes vehicle positions from a RabbitMQ fan-out exchange
// and publishes simulated positions to it.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/routecast/core/logger"
)

// Conn is a RabbitMQ connection with a single channel.
type Conn struct {
	url    string
	conn   *amqp.Connection
	ch     *amqp.Channel
	log    logger.Logger
	mu     sync.RWMutex
	closed bool
}

// Dial connects to RabbitMQ, retrying with a growing delay capped at 30s.
func Dial(ctx context.Context, cfg Config, log logger.Logger) (*Conn, error) {
	cfg.SetDefaults()
	c := &Conn{url: cfg.URL, log: log}
	delay := time.Second
	for attempt := 1; ; attempt++ {
		err := c.connect(cfg.Prefetch)
		if err == nil {
			log.Infof("rabbitmq connected after %d attempt(s)", attempt)
			return c, nil
		}
		log.Errorf("rabbitmq attempt %d/%d: %v", attempt, cfg.MaxRetries, err)
		if attempt >= cfg.MaxRetries {
			return nil, fmt.Errorf("connect after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.5)
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

func (c *Conn) connect(prefetch int) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()
	return nil
}

// Channel returns the active channel, nil once closed.
func (c *Conn) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

// Close closes the channel and the connection. It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Infof("rabbitmq connection closed")
}
