package workers

import "fmt"

// Pool names used for labels and logs.
const (
	General      = "general"
	Location     = "location"
	Notification = "notification"
)

// PoolConfig sizes one pool.
type PoolConfig struct {
	// Workers is the number of shards, each served by one goroutine.
	Workers int `json:"workers"`
	// QueueSize bounds the backlog of each shard.
	QueueSize int `json:"queue_size"`
}

// Config groups the three pools used by the service.
type Config struct {
	General      PoolConfig `json:"general"`
	Location     PoolConfig `json:"location"`
	Notification PoolConfig `json:"notification"`
}

func (c *PoolConfig) setDefaults(workers, queue int) {
	if c.Workers == 0 {
		c.Workers = workers
	}
	if c.QueueSize == 0 {
		c.QueueSize = queue
	}
}

// SetDefaults fills unset pool sizes.
func (c *Config) SetDefaults() {
	c.General.setDefaults(4, 256)
	c.Location.setDefaults(4, 1024)
	c.Notification.setDefaults(2, 256)
}

// Validate ensures every pool has at least one worker and a queue.
func (c Config) Validate() error {
	for name, p := range map[string]PoolConfig{
		General:      c.General,
		Location:     c.Location,
		Notification: c.Notification,
	} {
		if p.Workers <= 0 {
			return fmt.Errorf("workers.%s.workers must be > 0", name)
		}
		if p.QueueSize <= 0 {
			return fmt.Errorf("workers.%s.queue_size must be > 0", name)
		}
	}
	return nil
}
