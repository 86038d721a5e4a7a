package broadcast

import (
	"fmt"
	"strings"
)

// Channel kinds addressable by subscribers.
const (
	KindVehicle = "vehicle"
	KindTrip    = "trip"
)

// Destination is a parsed subscription address such as /topic/vehicle/42.
type Destination struct {
	Kind string
	ID   string
}

// ParseDestination parses dest relative to namespace, which must end with a
// slash. Errors wrap ErrInvalidDestination.
func ParseDestination(namespace, dest string) (Destination, error) {
	rest, ok := strings.CutPrefix(dest, namespace)
	if !ok {
		return Destination{}, fmt.Errorf("%w: %q outside %s", ErrInvalidDestination, dest, namespace)
	}
	kind, id, ok := strings.Cut(rest, "/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return Destination{}, fmt.Errorf("%w: %q", ErrInvalidDestination, dest)
	}
	switch kind {
	case KindVehicle, KindTrip:
		return Destination{Kind: kind, ID: id}, nil
	default:
		return Destination{}, fmt.Errorf("%w: unknown channel kind %q", ErrInvalidDestination, kind)
	}
}

// Channel is the internal key of the destination.
func (d Destination) Channel() string { return d.Kind + ":" + d.ID }

// Path renders the destination under namespace.
func (d Destination) Path(namespace string) string {
	return namespace + d.Kind + "/" + d.ID
}

// VehicleDestination addresses the channel of a vehicle.
func VehicleDestination(id string) Destination { return Destination{Kind: KindVehicle, ID: id} }

// TripDestination addresses the channel of a trip.
func TripDestination(id string) Destination { return Destination{Kind: KindTrip, ID: id} }
