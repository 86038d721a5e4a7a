// Package routes serves route interpolation over HTTP.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/route"
	"github.com/kilianp07/routecast/internal/validate"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatGeoJSON = "geojson"
)

// Builder builds routes. It is implemented by route.Service.
type Builder interface {
	Build(ctx context.Context, req route.Request) (route.Result, error)
}

type waypoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// InterpolateRequest is the body of POST /api/routes/interpolate.
type InterpolateRequest struct {
	RouteID   string     `json:"route_id,omitempty"`
	Waypoints []waypoint `json:"waypoints" validate:"required,dive"`
	Format    string     `json:"format,omitempty" validate:"omitempty,oneof=json geojson"`
}

// InterpolateResponse is returned for the json format.
type InterpolateResponse struct {
	RouteID          string                `json:"route_id,omitempty"`
	Polyline         []model.Coordinate    `json:"polyline"`
	Statistics       model.RouteStatistics `json:"statistics"`
	MinSegmentMeters float64               `json:"min_segment_meters"`
	MaxSegmentMeters float64               `json:"max_segment_meters"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewInterpolateHandler returns the handler of POST /api/routes/interpolate.
func NewInterpolateHandler(b Builder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req InterpolateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body", Details: []string{err.Error()}})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: validate.Messages(err)})
			return
		}
		wps := make([]model.Coordinate, len(req.Waypoints))
		for i, p := range req.Waypoints {
			wps[i] = model.Coordinate{Lat: p.Lat, Lng: p.Lng}
		}
		res, err := b.Build(r.Context(), route.Request{RouteID: req.RouteID, Waypoints: wps})
		if err != nil {
			status := http.StatusServiceUnavailable
			switch {
			case errors.Is(err, route.ErrTooManyPoints):
				status = http.StatusRequestEntityTooLarge
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				status = http.StatusGatewayTimeout
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		if req.Format == FormatGeoJSON {
			body, err := Feature(res.RouteID, res.Polyline, res.Summary).MarshalJSON()
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write(body)
			return
		}
		writeJSON(w, http.StatusOK, InterpolateResponse{
			RouteID:          res.RouteID,
			Polyline:         res.Polyline,
			Statistics:       res.Summary.RouteStatistics,
			MinSegmentMeters: res.Summary.MinSegmentMeters,
			MaxSegmentMeters: res.Summary.MaxSegmentMeters,
		})
	})
}
