package broadcast

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/routecast/core/authz"
)

// Config controls subscription behaviour.
type Config struct {
	// Namespace is the destination prefix served by the dispatcher.
	Namespace string `json:"namespace"`
	// MailboxSize is the backlog of undelivered updates at which a
	// subscription is considered lagging and torn down.
	MailboxSize int `json:"mailbox_size"`
	// DeliveryTimeoutMS bounds a single delivery. Zero disables the limit.
	DeliveryTimeoutMS int `json:"delivery_timeout_ms"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = authz.DefaultNamespace
	}
	if !strings.HasSuffix(c.Namespace, "/") {
		c.Namespace += "/"
	}
	if c.MailboxSize == 0 {
		c.MailboxSize = 4096
	}
	if c.DeliveryTimeoutMS == 0 {
		c.DeliveryTimeoutMS = 5000
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Namespace, "/") {
		return fmt.Errorf("broadcast.namespace must start with '/'")
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("broadcast.mailbox_size must be > 0")
	}
	if c.DeliveryTimeoutMS < 0 {
		return fmt.Errorf("broadcast.delivery_timeout_ms must be >= 0")
	}
	return nil
}

// DeliveryTimeout returns the per delivery limit.
func (c Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutMS) * time.Millisecond
}
