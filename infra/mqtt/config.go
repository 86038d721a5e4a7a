package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Auth methods accepted in Config.AuthMethod. Empty behaves like
// AuthPassword.
const (
	AuthPassword = "username_password"
	AuthTLS      = "tls"
	AuthBoth     = "both"
)

// TLSFiles points at PEM files for mutual TLS.
type TLSFiles struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
	CA   string `json:"ca"`
}

// Will is the last-will message published by the broker when the session
// drops.
type Will struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// Config holds the broker session settings shared by telemetry ingestion,
// the bridge and the simulator.
type Config struct {
	Broker     string   `json:"broker"`
	ClientID   string   `json:"client_id"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	AuthMethod string   `json:"auth_method"`
	UseTLS     bool     `json:"use_tls"`
	TLS        TLSFiles `json:"tls"`
	Will       *Will    `json:"will"`
	// PublishRetries is the number of extra attempts after a failed publish,
	// spaced by RetryBackoffMS doubling each time.
	PublishRetries int `json:"publish_retries"`
	RetryBackoffMS int `json:"retry_backoff_ms"`

	tlsConfig *tls.Config
}

func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "routecast-" + uuid.NewString()
	}
	if c.PublishRetries == 0 {
		c.PublishRetries = 3
	}
	if c.RetryBackoffMS == 0 {
		c.RetryBackoffMS = 100
	}
}

func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	switch c.AuthMethod {
	case "", AuthPassword, AuthTLS, AuthBoth:
	default:
		return fmt.Errorf("mqtt.auth_method %q not supported", c.AuthMethod)
	}
	if c.Will != nil && c.Will.Topic == "" {
		return errors.New("mqtt.will.topic is required when a will is set")
	}
	return nil
}

// WithTLSConfig returns a copy of c using tc instead of the PEM files.
func (c Config) WithTLSConfig(tc *tls.Config) Config {
	c.tlsConfig = tc
	c.UseTLS = true
	return c
}

func (c Config) sendsCredentials() bool {
	return c.AuthMethod != AuthTLS
}

// NewClientOptions maps c to paho options. Sessions reconnect on their own
// and deliver messages in order.
func NewClientOptions(c Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	if c.sendsCredentials() {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	if c.UseTLS {
		tc, err := c.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tc)
	}
	if w := c.Will; w != nil {
		opts.SetWill(w.Topic, w.Payload, w.QoS, w.Retain)
	}
	return opts, nil
}

// LoadTLSConfig reads the client key pair and CA bundle.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.tlsConfig != nil {
		return c.tlsConfig, nil
	}
	f := c.TLS
	if f.Cert == "" || f.Key == "" || f.CA == "" {
		return nil, errors.New("mqtt.tls requires cert, key and ca")
	}
	pair, err := tls.LoadX509KeyPair(f.Cert, f.Key)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	pem, err := os.ReadFile(f.CA)
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificate found in %s", f.CA)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
