package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/routecast/api"
	"github.com/kilianp07/routecast/auth"
	"github.com/kilianp07/routecast/core/broadcast"
	"github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/core/workers"
	"github.com/kilianp07/routecast/infra/amqp"
	"github.com/kilianp07/routecast/infra/mqtt"
	"github.com/kilianp07/routecast/infra/notify"
	"github.com/kilianp07/routecast/infra/ws"
	"github.com/kilianp07/routecast/jobs/retention"
)

type Config struct {
	Server    api.Config        `json:"server"`
	WebSocket ws.Config         `json:"websocket"`
	Workers   workers.Config    `json:"workers"`
	Broadcast broadcast.Config  `json:"broadcast"`
	Auth      auth.JWTConfig    `json:"auth"`
	MQTT      mqtt.Config       `json:"mqtt"`
	Tracking  retention.Config  `json:"tracking"`
	Telemetry TelemetryConfig   `json:"telemetry"`
	Bridge    mqtt.BridgeConfig `json:"bridge"`
	AMQP      amqp.Config       `json:"amqp"`
	Notify    notify.Config     `json:"notify"`
	Metrics   metrics.Config    `json:"metrics"`
	Sentry    SentryConfig      `json:"sentry"`
	Logging   LoggingConfig     `json:"logging"`
}

// Load reads path (yaml or json) and applies K_ environment overrides, e.g.
// K_SERVER__ADDRESS=:9000.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.WebSocket.SetDefaults()
	c.Workers.SetDefaults()
	c.Broadcast.SetDefaults()
	c.Auth.SetDefaults()
	c.Tracking.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Bridge.SetDefaults()
	c.AMQP.SetDefaults()
	c.Notify.SetDefaults()
	c.Logging.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
}

// Validate checks the sections that are in use. MQTT is only required when
// telemetry or the bridge is enabled.
func (c Config) Validate() error {
	if c.Server.MaxRoutePoints < 0 {
		return fmt.Errorf("server.max_route_points must be >= 0")
	}
	if err := c.Workers.Validate(); err != nil {
		return err
	}
	if err := c.Broadcast.Validate(); err != nil {
		return err
	}
	if err := c.Tracking.Validate(); err != nil {
		return err
	}
	if c.Telemetry.Enabled || c.Bridge.Enabled {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Bridge.Validate(); err != nil {
		return err
	}
	if err := c.AMQP.Validate(); err != nil {
		return err
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}
