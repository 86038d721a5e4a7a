package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routecast/app"
	"github.com/kilianp07/routecast/auth"
	"github.com/kilianp07/routecast/config"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/infra/ws"
	"github.com/kilianp07/routecast/test/util"
)

func newServiceConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Metrics = true
	cfg.Auth.Secret = "e2e-secret"
	cfg.SetDefaults()
	return cfg
}

func startService(t *testing.T, cfg *config.Config) (*app.Service, *httptest.Server) {
	t.Helper()
	svc, err := app.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), util.HTTPTimeout)
	defer cancel()
	require.NoError(t, util.WaitForHTTP(ctx, srv.URL+"/healthz", http.StatusNoContent))
	return svc, srv
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/locations?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestE2E_HTTPIngestToWebSocket(t *testing.T) {
	cfg := newServiceConfig()
	svc, srv := startService(t, cfg)

	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	require.NoError(t, err)
	token, err := verifier.Issue("alice", "dispatcher")
	require.NoError(t, err)

	conn := dialWS(t, srv, token)
	require.NoError(t, conn.WriteJSON(ws.ClientFrame{Type: ws.TypeSubscribe, Destination: "/topic/vehicle/v42"}))
	var ack ws.ControlFrame
	readFrame(t, conn, &ack)
	require.Equal(t, ws.TypeSubscribed, ack.Type, ack.Error)

	body := `{"lat":48.8566,"lng":2.3522,"trip_id":"t1"}`
	resp, err := http.Post(srv.URL+"/api/vehicles/v42/location", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var loc ws.LocationFrame
	readFrame(t, conn, &loc)
	assert.Equal(t, ws.TypeLocation, loc.Type)
	assert.Equal(t, "/topic/vehicle/v42", loc.Destination)
	assert.Equal(t, "v42", loc.VehicleID)
	assert.Equal(t, "t1", loc.TripID)
	assert.InDelta(t, 48.8566, loc.Lat, 1e-9)

	ctx, cancel := context.WithTimeout(context.Background(), util.MetricTimeout)
	defer cancel()
	require.NoError(t, util.WaitForMetric(ctx, srv.URL+"/metrics", "broadcast_deliveries_total"))

	st, ok := svc.Store.Get("v42")
	require.True(t, ok)
	assert.Equal(t, "t1", st.TripID)

	resp, err = http.Get(srv.URL + "/api/vehicles/status?trip_id=t1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var statuses []tracking.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "v42", statuses[0].VehicleID)
}

func TestE2E_AnonymousSubscribeDenied(t *testing.T) {
	svc, srv := startService(t, newServiceConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/locations"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ws.ClientFrame{Type: ws.TypeSubscribe, Destination: "/topic/vehicle/v1"}))
	var frame ws.ControlFrame
	readFrame(t, conn, &frame)
	assert.Equal(t, ws.TypeError, frame.Type)
	assert.NotEmpty(t, frame.Error)
	assert.Equal(t, 0, svc.Dispatcher.Active())
}

func TestE2E_TripChannelAndRouteInterpolation(t *testing.T) {
	cfg := newServiceConfig()
	_, srv := startService(t, cfg)

	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	require.NoError(t, err)
	token, err := verifier.Issue("bob", "")
	require.NoError(t, err)
	conn := dialWS(t, srv, token)
	require.NoError(t, conn.WriteJSON(ws.ClientFrame{Type: ws.TypeSubscribe, Destination: "/topic/trip/morning"}))
	var ack ws.ControlFrame
	readFrame(t, conn, &ack)
	require.Equal(t, ws.TypeSubscribed, ack.Type, ack.Error)

	for _, id := range []string{"a", "b"} {
		resp, err := http.Post(srv.URL+"/api/vehicles/"+id+"/location", "application/json",
			bytes.NewBufferString(`{"lat":1,"lng":2,"trip_id":"morning"}`))
		require.NoError(t, err)
		resp.Body.Close()
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		var loc ws.LocationFrame
		readFrame(t, conn, &loc)
		seen[loc.VehicleID] = true
	}
	assert.True(t, seen["a"] && seen["b"], "got %v", seen)

	resp, err := http.Post(srv.URL+"/api/routes/interpolate", "application/json",
		bytes.NewBufferString(`{"waypoints":[{"lat":0,"lng":0},{"lat":0.01,"lng":0}],"format":"geojson"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
}
