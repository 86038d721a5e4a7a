package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/tracking"
)

type nopPublisher struct{ n int }

func (p *nopPublisher) PublishFrom(string, model.VehicleLocationUpdate) error {
	p.n++
	return nil
}

func TestNewMux_IngestRequiresToken(t *testing.T) {
	pub := &nopPublisher{}
	mux := NewMux(Config{IngestToken: "tok"}, Deps{Publisher: pub})

	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", strings.NewReader(`{"lat":1,"lng":1}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", strings.NewReader(`{"lat":1,"lng":1}`))
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted || pub.n != 1 {
		t.Fatalf("expected accepted update, got %d (%d updates)", rr.Code, pub.n)
	}
}

func TestNewMux_Routes(t *testing.T) {
	store := tracking.NewMemoryStore()
	store.Record(model.VehicleLocationUpdate{VehicleID: "v1", Timestamp: time.Now()})
	mux := NewMux(Config{Metrics: true}, Deps{Store: store})

	for path, want := range map[string]int{
		"/api/vehicles/status":      http.StatusOK,
		"/healthz":                  http.StatusNoContent,
		"/metrics":                  http.StatusOK,
		"/api/vehicles/v1/location": http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want && !(want == http.StatusNotFound && rr.Code == http.StatusMethodNotAllowed) {
			t.Fatalf("%s: expected %d got %d", path, want, rr.Code)
		}
	}
}
