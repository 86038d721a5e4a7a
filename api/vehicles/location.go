package vehicles

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/routecast/core/broadcast"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/internal/validate"
)

// Source tags updates received over HTTP.
const Source = "http"

// LocationPublisher accepts updates. It is implemented by broadcast.Dispatcher.
type LocationPublisher interface {
	PublishFrom(source string, u model.VehicleLocationUpdate) error
}

// LocationRequest is the body of POST /api/vehicles/{id}/location.
type LocationRequest struct {
	Lat       float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lng       float64    `json:"lng" validate:"gte=-180,lte=180"`
	TripID    string     `json:"trip_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewLocationHandler accepts a position for the vehicle named by the {id}
// path value and hands it to pub. It answers 202 once the update is queued.
func NewLocationHandler(pub LocationPublisher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "missing vehicle id", http.StatusBadRequest)
			return
		}
		var req LocationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u := model.VehicleLocationUpdate{
			VehicleID:  id,
			TripID:     req.TripID,
			Coordinate: model.Coordinate{Lat: req.Lat, Lng: req.Lng},
			Timestamp:  time.Now().UTC(),
		}
		if req.Timestamp != nil {
			u.Timestamp = *req.Timestamp
		}
		if err := pub.PublishFrom(Source, u); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, broadcast.ErrClosed) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
