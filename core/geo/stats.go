package geo

import (
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/routecast/core/model"
)

// Summary extends RouteStatistics with the shortest and longest segment,
// which are useful when diagnosing uneven polylines.
type Summary struct {
	model.RouteStatistics
	MinSegmentMeters float64 `json:"min_segment_meters"`
	MaxSegmentMeters float64 `json:"max_segment_meters"`
}

// Statistics computes the total length, point count and average segment
// length of a polyline. Fewer than two points produce a zero record.
func Statistics(polyline []model.Coordinate) model.RouteStatistics {
	return Summarize(polyline).RouteStatistics
}

// Summarize is Statistics plus segment extremes.
func Summarize(polyline []model.Coordinate) Summary {
	if len(polyline) < 2 {
		return Summary{}
	}
	segs := SegmentDistances(polyline)
	total := floats.Sum(segs)
	return Summary{
		RouteStatistics: model.RouteStatistics{
			TotalDistanceMeters:          total,
			TotalPoints:                  len(polyline),
			AverageSegmentDistanceMeters: total / float64(len(polyline)-1),
		},
		MinSegmentMeters: floats.Min(segs),
		MaxSegmentMeters: floats.Max(segs),
	}
}

// SegmentDistances returns the geodesic length of each consecutive pair.
func SegmentDistances(polyline []model.Coordinate) []float64 {
	if len(polyline) < 2 {
		return nil
	}
	segs := make([]float64, len(polyline)-1)
	for i := 1; i < len(polyline); i++ {
		segs[i-1] = Distance(polyline[i-1], polyline[i])
	}
	return segs
}
