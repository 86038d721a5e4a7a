package simulator

import (
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/routecast/core/model"
)

// Vehicle drives back and forth along an interpolated route. A new trip id
// is drawn every time it turns around.
type Vehicle struct {
	ID      string
	RouteID string
	TripID  string

	path   []model.Coordinate
	pos    int
	stride int
	dir    int
}

func newVehicle(id, routeID string, path []model.Coordinate, stride, offset int) *Vehicle {
	if stride < 1 {
		stride = 1
	}
	return &Vehicle{
		ID:      id,
		RouteID: routeID,
		TripID:  uuid.NewString(),
		path:    path,
		pos:     offset,
		stride:  stride,
		dir:     1,
	}
}

// Position returns the current coordinate.
func (v *Vehicle) Position() model.Coordinate { return v.path[v.pos] }

// Advance moves the vehicle by its stride. It reports whether the vehicle
// reached an end of the route and started a new trip.
func (v *Vehicle) Advance() bool {
	last := len(v.path) - 1
	if last <= 0 {
		return false
	}
	next := v.pos + v.dir*v.stride
	switch {
	case next >= last:
		v.pos = last
	case next <= 0:
		v.pos = 0
	default:
		v.pos = next
		return false
	}
	v.dir = -v.dir
	v.TripID = uuid.NewString()
	return true
}

// Update returns the current position as a location update.
func (v *Vehicle) Update(now time.Time) model.VehicleLocationUpdate {
	return model.VehicleLocationUpdate{
		VehicleID:  v.ID,
		TripID:     v.TripID,
		Coordinate: v.Position(),
		Timestamp:  now.UTC(),
	}
}
