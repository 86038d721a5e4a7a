package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Vehicles int
	Interval time.Duration
	// SpeedMPS is the cruising speed of every vehicle in meters per second.
	SpeedMPS float64
	// TopicPrefix is the MQTT state prefix positions are published under.
	TopicPrefix string
	QoS         byte
	// DropRate is the probability a vehicle skips a report, simulating
	// coverage loss.
	DropRate float64
}

func (c *Config) SetDefaults() {
	if c.Vehicles == 0 {
		c.Vehicles = 1
	}
	if c.Interval == 0 {
		c.Interval = time.Second
	}
	if c.SpeedMPS == 0 {
		c.SpeedMPS = 13.9
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "vehicles/location"
	}
}

func (c Config) Validate() error {
	if c.Vehicles <= 0 {
		return fmt.Errorf("vehicles must be > 0, got %d", c.Vehicles)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if c.SpeedMPS <= 0 {
		return fmt.Errorf("speed must be > 0")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate %v out of [0,1]", c.DropRate)
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos %d out of range", c.QoS)
	}
	return nil
}
