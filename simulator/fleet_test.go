package simulator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/kilianp07/routecast/core/model"
)

func straightRoute() Route {
	// about 1.1 km due north, 223 interpolated points
	return Route{ID: "north", Waypoints: []model.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0.01, Lng: 0}}}
}

func TestGenerateFleetCount(t *testing.T) {
	fleetRng = rand.New(rand.NewSource(1))
	cfg := Config{Vehicles: 5}
	cfg.SetDefaults()
	vs := GenerateFleet(cfg, []Route{straightRoute(), DefaultRoutes()[0]})
	if len(vs) != 5 {
		t.Fatalf("expected 5 vehicles, got %d", len(vs))
	}
	if vs[0].ID != "veh0001" || vs[4].ID != "veh0005" {
		t.Fatalf("unexpected ids %s %s", vs[0].ID, vs[4].ID)
	}
	if vs[0].RouteID != "north" || vs[1].RouteID != "paris-quays" || vs[2].RouteID != "north" {
		t.Fatalf("routes not assigned round-robin")
	}
	if vs[0].TripID == "" || vs[0].TripID == vs[2].TripID {
		t.Fatalf("trip ids must be set and distinct")
	}
}

func TestGenerateFleetEmpty(t *testing.T) {
	if vs := GenerateFleet(Config{Vehicles: 3}, nil); vs != nil {
		t.Fatalf("expected no vehicles without routes")
	}
	if vs := GenerateFleet(Config{}, DefaultRoutes()); vs != nil {
		t.Fatalf("expected no vehicles for empty fleet")
	}
}

func TestStride(t *testing.T) {
	cases := []struct {
		speed    float64
		interval time.Duration
		want     int
	}{
		{13.9, time.Second, 3},
		{10, 2 * time.Second, 4},
		{1, time.Second, 1},
	}
	for _, c := range cases {
		if got := Stride(Config{SpeedMPS: c.speed, Interval: c.interval}); got != c.want {
			t.Errorf("stride(%v, %s) = %d, want %d", c.speed, c.interval, got, c.want)
		}
	}
}

func TestLoadRoutes(t *testing.T) {
	routes, err := LoadRoutes([]byte(`[{"waypoints":[{"lat":1,"lng":2},{"lat":1.1,"lng":2.1}]}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].ID != "route1" {
		t.Fatalf("unexpected routes %+v", routes)
	}
	bad := []string{
		`{}`,
		`[]`,
		`[{"id":"x","waypoints":[{"lat":1,"lng":2}]}]`,
	}
	for _, b := range bad {
		if _, err := LoadRoutes([]byte(b)); err == nil {
			t.Errorf("expected error for %s", b)
		}
	}
}

func TestLoadRoutesYAML(t *testing.T) {
	routes, err := LoadRoutesYAML([]byte(`
- id: ring
  waypoints:
    - {lat: 45.76, lng: 4.83}
    - {lat: 45.77, lng: 4.84}
- waypoints:
    - lat: 45.75
      lng: 4.85
    - lat: 45.74
      lng: 4.86
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 || routes[0].ID != "ring" || routes[1].ID != "route2" {
		t.Fatalf("unexpected routes %+v", routes)
	}
	if routes[1].Waypoints[1].Lng != 4.86 {
		t.Fatalf("waypoint not decoded: %+v", routes[1].Waypoints)
	}
	if _, err := LoadRoutesYAML([]byte("[]")); err == nil {
		t.Fatal("expected error for empty route list")
	}
}

func TestVehicleTurnsAround(t *testing.T) {
	path := []model.Coordinate{{Lat: 0}, {Lat: 1}, {Lat: 2}, {Lat: 3}}
	v := newVehicle("v", "r", path, 2, 0)
	trip := v.TripID

	if v.Advance() {
		t.Fatal("unexpected turn at pos 2")
	}
	if v.Position().Lat != 2 {
		t.Fatalf("pos = %v", v.Position())
	}
	if !v.Advance() {
		t.Fatal("expected turn at the end")
	}
	if v.Position().Lat != 3 || v.TripID == trip {
		t.Fatalf("expected clamp to end with a new trip, got %v %s", v.Position(), v.TripID)
	}
	v.Advance()
	if v.Position().Lat != 1 {
		t.Fatalf("expected to drive back, got %v", v.Position())
	}
}

func TestVehicleSinglePoint(t *testing.T) {
	v := newVehicle("v", "r", []model.Coordinate{{Lat: 5, Lng: 5}}, 1, 0)
	if v.Advance() {
		t.Fatal("single point route never turns")
	}
	u := v.Update(time.Unix(10, 0))
	if u.VehicleID != "v" || u.Coordinate.Lat != 5 || !u.Timestamp.Equal(time.Unix(10, 0)) {
		t.Fatalf("unexpected update %+v", u)
	}
}
