package vehicles

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/routecast/core/tracking"
)

// NewStatusHandler returns an HTTP handler exposing last known positions via
// GET /api/vehicles/status. Optional query parameters: trip_id and since
// (RFC3339).
func NewStatusHandler(store tracking.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := tracking.Filter{TripID: r.URL.Query().Get("trip_id")}
		if s := r.URL.Query().Get("since"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid since", http.StatusBadRequest)
				return
			}
			f.Since = t
		}
		entries := store.List(f)
		if entries == nil {
			entries = []tracking.Status{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
