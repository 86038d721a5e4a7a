package geo

import "github.com/kilianp07/routecast/core/model"

const (
	// SpacingMeters is the target distance between interpolated points.
	SpacingMeters = 5.0
	// estimateMargin over-allocates the size hint for winding routes.
	estimateMargin = 1.5
)

// EstimateSize returns a capacity hint for the polyline produced by
// Interpolate. Only the straight line between the first and last waypoint is
// measured so the hint is cheap; it may under or over estimate routes with
// many turns.
func EstimateSize(waypoints []model.Coordinate) int {
	n := len(waypoints)
	if n < 2 {
		return n
	}
	d := Distance(waypoints[0], waypoints[n-1])
	return n + int(d/SpacingMeters*estimateMargin)
}
