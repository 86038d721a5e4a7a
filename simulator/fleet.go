package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/routecast/core/geo"
	"github.com/kilianp07/routecast/core/model"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// Route is a named list of waypoints driven by the simulated vehicles.
type Route struct {
	ID        string             `json:"id" yaml:"id"`
	Waypoints []model.Coordinate `json:"waypoints" yaml:"waypoints"`
}

// DefaultRoutes is used when no route file is given: a loop along the
// Paris quays.
func DefaultRoutes() []Route {
	return []Route{{
		ID: "paris-quays",
		Waypoints: []model.Coordinate{
			{Lat: 48.8584, Lng: 2.2945},
			{Lat: 48.8606, Lng: 2.3125},
			{Lat: 48.8611, Lng: 2.3357},
			{Lat: 48.8566, Lng: 2.3522},
			{Lat: 48.8530, Lng: 2.3499},
		},
	}}
}

// LoadRoutes decodes a JSON array of routes. Routes with fewer than two
// waypoints are rejected since there is nothing to drive.
func LoadRoutes(data []byte) ([]Route, error) {
	var routes []Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, err
	}
	return checkRoutes(routes)
}

// LoadRoutesYAML is LoadRoutes for a YAML sequence of routes.
func LoadRoutesYAML(data []byte) ([]Route, error) {
	var routes []Route
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return nil, err
	}
	return checkRoutes(routes)
}

func checkRoutes(routes []Route) ([]Route, error) {
	if len(routes) == 0 {
		return nil, errors.New("no routes defined")
	}
	for i, r := range routes {
		if len(r.Waypoints) < 2 {
			return nil, fmt.Errorf("route %d (%q) needs at least 2 waypoints", i, r.ID)
		}
		if r.ID == "" {
			routes[i].ID = fmt.Sprintf("route%d", i+1)
		}
	}
	return routes, nil
}

// Stride returns how many polyline points a vehicle covers per tick.
func Stride(cfg Config) int {
	n := int(math.Round(cfg.SpeedMPS * cfg.Interval.Seconds() / geo.SpacingMeters))
	if n < 1 {
		n = 1
	}
	return n
}

// GenerateFleet creates cfg.Vehicles vehicles with IDs veh0001..vehNNNN.
// Routes are assigned round-robin and each vehicle starts at a random point
// of its route so the fleet does not move in lockstep.
func GenerateFleet(cfg Config, routes []Route) []*Vehicle {
	if cfg.Vehicles <= 0 || len(routes) == 0 {
		return nil
	}
	paths := make([][]model.Coordinate, len(routes))
	for i, r := range routes {
		paths[i] = geo.Interpolate(r.Waypoints)
	}
	stride := Stride(cfg)
	vs := make([]*Vehicle, cfg.Vehicles)
	for i := range vs {
		r := i % len(routes)
		offset := 0
		if n := len(paths[r]); n > 1 {
			offset = fleetRng.Intn(n)
		}
		vs[i] = newVehicle(fmt.Sprintf("veh%04d", i+1), routes[r].ID, paths[r], stride, offset)
	}
	return vs
}
