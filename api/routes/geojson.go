package routes

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/routecast/core/geo"
	"github.com/kilianp07/routecast/core/model"
)

// LineString converts a polyline to orb's lng/lat order.
func LineString(poly []model.Coordinate) orb.LineString {
	ls := make(orb.LineString, len(poly))
	for i, c := range poly {
		ls[i] = orb.Point{c.Lng, c.Lat}
	}
	return ls
}

// Feature renders a polyline and its summary as a GeoJSON LineString feature.
func Feature(routeID string, poly []model.Coordinate, s geo.Summary) *geojson.Feature {
	f := geojson.NewFeature(LineString(poly))
	if routeID != "" {
		f.ID = routeID
	}
	f.Properties["total_distance_meters"] = s.TotalDistanceMeters
	f.Properties["total_points"] = s.TotalPoints
	f.Properties["average_segment_distance_meters"] = s.AverageSegmentDistanceMeters
	f.Properties["min_segment_meters"] = s.MinSegmentMeters
	f.Properties["max_segment_meters"] = s.MaxSegmentMeters
	return f
}
