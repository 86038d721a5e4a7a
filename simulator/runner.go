package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kilianp07/routecast/core/logger"
	coremetrics "github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/core/model"
	coremqtt "github.com/kilianp07/routecast/core/mqtt"
)

// Source labels simulated updates in metrics.
const Source = "simulator"

// Emitter sends one simulated position.
type Emitter interface {
	Emit(ctx context.Context, u model.VehicleLocationUpdate) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, u model.VehicleLocationUpdate) error

func (f EmitterFunc) Emit(ctx context.Context, u model.VehicleLocationUpdate) error { return f(ctx, u) }

// MQTTEmitter publishes positions on <prefix>/{vehicleId}, the topic layout
// consumed by the telemetry manager in push mode.
type MQTTEmitter struct {
	pub    coremqtt.Publisher
	prefix string
	qos    byte
}

func NewMQTTEmitter(pub coremqtt.Publisher, cfg Config) *MQTTEmitter {
	cfg.SetDefaults()
	return &MQTTEmitter{pub: pub, prefix: cfg.TopicPrefix, qos: cfg.QoS}
}

func (e *MQTTEmitter) Emit(_ context.Context, u model.VehicleLocationUpdate) error {
	payload, err := json.Marshal(model.NewPositionMessage(u))
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return e.pub.Publish(coremqtt.Join(e.prefix, u.VehicleID), e.qos, false, payload)
}

// Runner moves the fleet and reports positions every interval.
type Runner struct {
	cfg      Config
	vehicles []*Vehicle
	emit     Emitter
	sink     coremetrics.MetricsSink
	log      logger.Logger
	rng      *rand.Rand
	now      func() time.Time
}

// NewRunner creates a Runner. sink may be nil.
func NewRunner(cfg Config, vehicles []*Vehicle, emit Emitter, sink coremetrics.MetricsSink, log logger.Logger) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emit == nil || log == nil {
		return nil, errors.New("simulator: nil parameter provided to NewRunner")
	}
	if len(vehicles) == 0 {
		return nil, errors.New("simulator: empty fleet")
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Runner{
		cfg:      cfg,
		vehicles: vehicles,
		emit:     emit,
		sink:     sink,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}, nil
}

// Run ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infof("simulating %d vehicle(s) every %s", len(r.vehicles), r.cfg.Interval)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick reports every vehicle once, then advances it. It returns the number
// of positions emitted.
func (r *Runner) Tick(ctx context.Context) int {
	sent := 0
	now := r.now()
	for _, v := range r.vehicles {
		if ctx.Err() != nil {
			return sent
		}
		if r.cfg.DropRate > 0 && r.rng.Float64() < r.cfg.DropRate {
			r.log.Debugf("%s: report dropped", v.ID)
		} else if r.report(ctx, v, now) {
			sent++
		}
		if v.Advance() {
			r.log.Debugf("%s: new trip %s on %s", v.ID, v.TripID, v.RouteID)
		}
	}
	return sent
}

func (r *Runner) report(ctx context.Context, v *Vehicle, now time.Time) bool {
	u := v.Update(now)
	if err := r.emit.Emit(ctx, u); err != nil {
		r.log.Warnf("%s: emit: %v", v.ID, err)
		return false
	}
	if err := r.sink.RecordLocation(coremetrics.LocationEvent{
		VehicleID:  u.VehicleID,
		TripID:     u.TripID,
		Source:     Source,
		Coordinate: u.Coordinate,
		Time:       u.Timestamp,
	}); err != nil {
		r.log.Errorf("record location: %v", err)
	}
	return true
}
