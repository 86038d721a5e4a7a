package config

import "fmt"

// TelemetryConfig holds configuration for MQTT position ingestion.
type TelemetryConfig struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode"`
	IntervalSeconds int    `json:"interval_seconds"`
	RequestTopic    string `json:"request_topic"`
	ResponsePrefix  string `json:"response_topic_prefix"`
	StatePrefix     string `json:"state_topic_prefix"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	QoS             byte   `json:"qos"`
}

// SetDefaults fills the topic layout used by the vehicle firmware.
func (c *TelemetryConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "push"
	}
	if c.StatePrefix == "" {
		c.StatePrefix = "vehicles/location"
	}
	if c.RequestTopic == "" {
		c.RequestTopic = "vehicles/poll"
	}
	if c.ResponsePrefix == "" {
		c.ResponsePrefix = "vehicles/poll/response"
	}
}

func (c TelemetryConfig) Validate() error {
	switch c.Mode {
	case "", "push", "pull", "hybrid":
	default:
		return fmt.Errorf("telemetry.mode %q not supported", c.Mode)
	}
	if c.QoS > 2 {
		return fmt.Errorf("telemetry.qos %d out of range", c.QoS)
	}
	return nil
}

func (c TelemetryConfig) Interval() int {
	if c.IntervalSeconds <= 0 {
		return 10
	}
	return c.IntervalSeconds
}

func (c TelemetryConfig) Timeout() int {
	if c.TimeoutSeconds <= 0 {
		return 3
	}
	return c.TimeoutSeconds
}
