// Package geo turns sparse route waypoints into dense polylines.
//
// Distance measures great-circle distance with the haversine formula,
// Interpolate resamples a waypoint sequence at a fixed spacing using linear
// interpolation in degree space and Statistics summarizes the result. All
// functions are pure and safe for concurrent use.
package geo
