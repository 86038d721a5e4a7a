package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/infra/logger"
)

func TestPrune(t *testing.T) {
	store := tracking.NewMemoryStore()
	store.Record(model.VehicleLocationUpdate{VehicleID: "v1", Timestamp: time.Now()})

	assert.Equal(t, 0, Prune(store, time.Now(), time.Hour))
	assert.Equal(t, 0, Prune(store, time.Now().Add(2*time.Hour), 0))
	assert.Equal(t, 1, Prune(store, time.Now().Add(2*time.Hour), time.Hour))
	_, ok := store.Get("v1")
	assert.False(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Hour, c.Retention())
	assert.Equal(t, time.Minute, c.Interval())

	c.PruneIntervalSeconds = -1
	assert.Error(t, c.Validate())
}

func TestRunStopsAndDisabled(t *testing.T) {
	store := tracking.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, store, nil, Config{PruneIntervalSeconds: 1}, logger.NopLogger{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// disabled returns immediately even with a live context
	Run(context.Background(), store, nil, Config{RetentionMinutes: -1}, logger.NopLogger{})
}

type memSnapshot struct {
	saved chan []tracking.Status
}

func (m *memSnapshot) Save(_ context.Context, st []tracking.Status) error {
	select {
	case m.saved <- st:
	default:
	}
	return nil
}

func (m *memSnapshot) Load(context.Context) ([]tracking.Status, error) { return nil, nil }

func TestRunSavesSnapshot(t *testing.T) {
	store := tracking.NewMemoryStore()
	store.Record(model.VehicleLocationUpdate{VehicleID: "v9", Timestamp: time.Now()})
	snap := &memSnapshot{saved: make(chan []tracking.Status, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// pruning disabled, the snapshot still runs on every tick
	go Run(ctx, store, snap, Config{RetentionMinutes: -1, PruneIntervalSeconds: 1}, logger.NopLogger{})

	select {
	case st := <-snap.saved:
		require.Len(t, st, 1)
		assert.Equal(t, "v9", st[0].VehicleID)
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot saved")
	}
}
