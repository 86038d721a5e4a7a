package model

import "time"

// PositionMessage is the JSON body carrying a position on the message
// transports (MQTT and AMQP). TS is a Unix timestamp in milliseconds.
type PositionMessage struct {
	VehicleID string  `json:"vehicle_id,omitempty"`
	TripID    string  `json:"trip_id,omitempty"`
	Lat       float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng       float64 `json:"lng" validate:"gte=-180,lte=180"`
	TS        *int64  `json:"ts,omitempty"`
}

// Update converts the message. vehicleID is used when the body does not
// carry one, typically the last topic level. A missing timestamp is
// replaced by now.
func (m PositionMessage) Update(vehicleID string, now time.Time) VehicleLocationUpdate {
	if m.VehicleID != "" {
		vehicleID = m.VehicleID
	}
	ts := now
	if m.TS != nil {
		ts = time.UnixMilli(*m.TS).UTC()
	}
	return VehicleLocationUpdate{
		VehicleID:  vehicleID,
		TripID:     m.TripID,
		Coordinate: Coordinate{Lat: m.Lat, Lng: m.Lng},
		Timestamp:  ts,
	}
}

// NewPositionMessage builds the wire form of u.
func NewPositionMessage(u VehicleLocationUpdate) PositionMessage {
	ts := u.Timestamp.UnixMilli()
	return PositionMessage{
		VehicleID: u.VehicleID,
		TripID:    u.TripID,
		Lat:       u.Coordinate.Lat,
		Lng:       u.Coordinate.Lng,
		TS:        &ts,
	}
}
