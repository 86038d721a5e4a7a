// Package route builds dense polylines from route waypoints.
package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/routecast/core/geo"
	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/notify"
	"github.com/kilianp07/routecast/core/workers"
)

// DefaultMaxPoints bounds the polyline of a single route, about 5000 km.
const DefaultMaxPoints = 1_000_000

// ErrTooManyPoints is returned when the interpolated route would exceed the
// configured number of points.
var ErrTooManyPoints = errors.New("route: too many points")

// Request asks for the polyline of a route.
type Request struct {
	// RouteID is optional. When set a route.updated notification is sent.
	RouteID   string
	Waypoints []model.Coordinate
}

// Result is a built route.
type Result struct {
	RouteID  string
	Polyline []model.Coordinate
	Summary  geo.Summary
	Duration time.Duration
}

// Service interpolates routes on the general pool and announces rebuilt
// routes on the notification pool.
type Service struct {
	general       *workers.Pool
	notification  *workers.Pool
	sink          metrics.MetricsSink
	notifier      notify.Notifier
	notifyTimeout time.Duration
	maxPoints     int
	logger        logger.Logger
}

// NewService creates a Service. sink and notifier may be nil.
func NewService(general, notification *workers.Pool, sink metrics.MetricsSink, notifier notify.Notifier, log logger.Logger) (*Service, error) {
	if general == nil || notification == nil || log == nil {
		return nil, fmt.Errorf("route: nil parameter provided to NewService")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{
		general:       general,
		notification:  notification,
		sink:          sink,
		notifier:      notifier,
		notifyTimeout: 10 * time.Second,
		maxPoints:     DefaultMaxPoints,
		logger:        log,
	}, nil
}

// SetNotifyTimeout bounds each notification attempt.
func (s *Service) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		s.notifyTimeout = d
	}
}

// SetMaxPoints bounds the size of built polylines.
func (s *Service) SetMaxPoints(n int) {
	if n > 0 {
		s.maxPoints = n
	}
}

// CheckSize returns ErrTooManyPoints when waypoints would interpolate to more
// than limit points.
func CheckSize(waypoints []model.Coordinate, limit int) error {
	if n := geo.PointCount(waypoints); n > limit {
		return fmt.Errorf("%w: %d points, limit %d", ErrTooManyPoints, n, limit)
	}
	return nil
}

// Build interpolates req.Waypoints and summarizes the result. Fewer than two
// waypoints are not an error: the waypoints are returned as they are.
func (s *Service) Build(ctx context.Context, req Request) (Result, error) {
	if len(req.Waypoints) < 2 {
		s.logger.Warnf("route %q has %d waypoint(s), nothing to interpolate", req.RouteID, len(req.Waypoints))
	}
	if err := CheckSize(req.Waypoints, s.maxPoints); err != nil {
		return Result{}, err
	}

	out := make(chan Result, 1)
	err := s.general.Submit(req.RouteID, func() {
		start := time.Now()
		poly := geo.Interpolate(req.Waypoints)
		out <- Result{
			RouteID:  req.RouteID,
			Polyline: poly,
			Summary:  geo.Summarize(poly),
			Duration: time.Since(start),
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("route: schedule interpolation: %w", err)
	}

	var res Result
	select {
	case res = <-out:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	s.logger.Debugw("route interpolated", map[string]any{
		"route_id":    req.RouteID,
		"waypoints":   len(req.Waypoints),
		"points":      res.Summary.TotalPoints,
		"distance_m":  res.Summary.TotalDistanceMeters,
		"max_seg_m":   res.Summary.MaxSegmentMeters,
		"duration_ms": res.Duration.Milliseconds(),
	})
	if rec, ok := s.sink.(metrics.RouteRecorder); ok {
		if err := rec.RecordRoute(metrics.RouteEvent{
			RouteID:        req.RouteID,
			Waypoints:      len(req.Waypoints),
			Points:         len(res.Polyline),
			DistanceMeters: res.Summary.TotalDistanceMeters,
			Duration:       res.Duration,
			Time:           time.Now(),
		}); err != nil {
			s.logger.Warnf("record route: %v", err)
		}
	}
	if req.RouteID != "" {
		s.announce(req.RouteID, len(req.Waypoints), res.Summary.RouteStatistics)
	}
	return res, nil
}

// Statistics summarizes an existing polyline without interpolating it.
func (s *Service) Statistics(polyline []model.Coordinate) model.RouteStatistics {
	return geo.Statistics(polyline)
}

func (s *Service) announce(routeID string, waypoints int, stats model.RouteStatistics) {
	n := notify.Notification{
		ID:         uuid.NewString(),
		Type:       notify.TypeRouteUpdated,
		RouteID:    routeID,
		Waypoints:  waypoints,
		Statistics: stats,
		Time:       time.Now().UTC(),
	}
	err := s.notification.Submit(routeID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Errorf("notify %s for route %s: %v", n.Type, routeID, err)
		}
	})
	if err != nil {
		s.logger.Warnf("notification for route %s not scheduled: %v", routeID, err)
	}
}
