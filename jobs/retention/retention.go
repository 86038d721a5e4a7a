// Package retention drops vehicles that stopped reporting from the last
// known position store and periodically snapshots what is left.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/tracking"
)

// Config controls how long a silent vehicle stays listed.
type Config struct {
	// RetentionMinutes is the age after which a status is dropped. A
	// negative value disables pruning.
	RetentionMinutes     int `json:"retention_minutes"`
	PruneIntervalSeconds int `json:"prune_interval_seconds"`
	// SnapshotPath is a SQLite database holding the statuses between
	// restarts. Empty keeps them in memory only.
	SnapshotPath string `json:"snapshot_path"`
}

func (c *Config) SetDefaults() {
	if c.RetentionMinutes == 0 {
		c.RetentionMinutes = 60
	}
	if c.PruneIntervalSeconds == 0 {
		c.PruneIntervalSeconds = 60
	}
}

func (c Config) Validate() error {
	if c.PruneIntervalSeconds <= 0 {
		return fmt.Errorf("tracking.prune_interval_seconds must be > 0")
	}
	return nil
}

func (c Config) Retention() time.Duration { return time.Duration(c.RetentionMinutes) * time.Minute }
func (c Config) Interval() time.Duration  { return time.Duration(c.PruneIntervalSeconds) * time.Second }

// Prune removes statuses received before now-retention and returns how
// many were dropped.
func Prune(store tracking.Store, now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	return store.Prune(now.Add(-retention))
}

// Snapshot saves the whole content of store.
func Snapshot(ctx context.Context, store tracking.Store, snap tracking.Snapshotter) error {
	return snap.Save(ctx, store.List(tracking.Filter{}))
}

// Run prunes store every interval until ctx is done. When snap is not nil
// the remaining statuses are saved after each pass.
func Run(ctx context.Context, store tracking.Store, snap tracking.Snapshotter, cfg Config, log logger.Logger) {
	cfg.SetDefaults()
	if cfg.RetentionMinutes < 0 && snap == nil {
		return
	}
	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := Prune(store, now, cfg.Retention()); n > 0 {
				log.Debugf("pruned %d stale vehicle(s)", n)
			}
			if snap != nil {
				if err := Snapshot(ctx, store, snap); err != nil && ctx.Err() == nil {
					log.Errorf("snapshot: %v", err)
				}
			}
		}
	}
}
