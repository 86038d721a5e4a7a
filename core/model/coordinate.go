package model

import "time"

// Coordinate is a latitude/longitude pair in decimal degrees. Range
// validation is left to the collaborator that authored the value.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteStatistics summarizes a polyline. It is derived on demand and never stored.
type RouteStatistics struct {
	TotalDistanceMeters          float64 `json:"total_distance_meters"`
	TotalPoints                  int     `json:"total_points"`
	AverageSegmentDistanceMeters float64 `json:"average_segment_distance_meters"`
}

// VehicleLocationUpdate is a position reported by a moving vehicle. It only
// lives for the duration of a dispatch.
type VehicleLocationUpdate struct {
	VehicleID  string     `json:"vehicle_id"`
	TripID     string     `json:"trip_id,omitempty"`
	Coordinate Coordinate `json:"coordinate"`
	Timestamp  time.Time  `json:"timestamp"`
}
