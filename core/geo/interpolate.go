package geo

import (
	"math"

	"github.com/kilianp07/routecast/core/model"
)

// Interpolate resamples waypoints into a polyline with roughly SpacingMeters
// between consecutive points. The result starts with the first waypoint and
// ends with the last one. Fewer than two waypoints are returned as a copy.
//
// Segments shorter than SpacingMeters get no intermediate points. Every
// segment end is appended except the final waypoint, which is appended once
// after the loop so it never appears twice.
func Interpolate(waypoints []model.Coordinate) []model.Coordinate {
	if len(waypoints) < 2 {
		return append([]model.Coordinate(nil), waypoints...)
	}
	out := make([]model.Coordinate, 0, EstimateSize(waypoints))
	out = append(out, waypoints[0])

	last := len(waypoints) - 1
	for i := 0; i < last; i++ {
		start, end := waypoints[i], waypoints[i+1]
		if n := intermediates(Distance(start, end)); n > 0 {
			out = appendLinear(out, start, end, n)
		}
		if i+1 < last {
			out = append(out, end)
		}
	}
	return append(out, waypoints[last])
}

// PointCount returns the length of Interpolate(waypoints) without building
// the polyline.
func PointCount(waypoints []model.Coordinate) int {
	if len(waypoints) < 2 {
		return len(waypoints)
	}
	n := len(waypoints)
	for i := 0; i < len(waypoints)-1; i++ {
		n += intermediates(Distance(waypoints[i], waypoints[i+1]))
	}
	return n
}

// intermediates is the number of points inserted into a segment of d
// meters. Segments shorter than SpacingMeters get none.
func intermediates(d float64) int {
	return int(math.Floor(d / SpacingMeters))
}

// appendLinear appends n points between start and end (both excluded) by
// planar interpolation in degree space. This is only accurate for short
// segments.
func appendLinear(out []model.Coordinate, start, end model.Coordinate, n int) []model.Coordinate {
	dLat := end.Lat - start.Lat
	dLng := end.Lng - start.Lng
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n+1)
		out = append(out, model.Coordinate{
			Lat: start.Lat + dLat*f,
			Lng: start.Lng + dLng*f,
		})
	}
	return out
}
