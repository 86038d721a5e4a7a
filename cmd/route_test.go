package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/routecast/api/routes"
	"github.com/kilianp07/routecast/core/route"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		routeFormat = ""
		routeMaxPoints = route.DefaultMaxPoints
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waypoints.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestRouteCommandJSON(t *testing.T) {
	path := writeFile(t, `{"route_id":"r1","waypoints":[{"lat":0,"lng":0},{"lat":0.01,"lng":0}]}`)
	out, err := runCLI(t, "route", "--file", path)
	require.NoError(t, err)

	var resp routes.InterpolateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "r1", resp.RouteID)
	assert.Len(t, resp.Polyline, 224)
	assert.Equal(t, 224, resp.Statistics.TotalPoints)
	assert.InDelta(t, 1111.95, resp.Statistics.TotalDistanceMeters, 0.1)
}

func TestRouteCommandGeoJSONFromArray(t *testing.T) {
	path := writeFile(t, `[{"lat":48.85,"lng":2.35},{"lat":48.86,"lng":2.36}]`)
	out, err := runCLI(t, "route", "--file", path, "--format", "geojson")
	require.NoError(t, err)

	var f struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "LineString", f.Geometry.Type)
	require.NotEmpty(t, f.Geometry.Coordinates)
	assert.Equal(t, [2]float64{2.35, 48.85}, f.Geometry.Coordinates[0])
}

func TestRouteCommandCSV(t *testing.T) {
	path := writeFile(t, `[{"lat":0,"lng":0},{"lat":0.00001,"lng":0}]`)
	out, err := runCLI(t, "route", "--file", path, "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "index,lat,lng,distance_meters", lines[0])
	assert.Equal(t, "0,0,0,0.000", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "1,0.00001,0,1.11"), lines[2])
}

func TestRouteCommandRejectsInvalid(t *testing.T) {
	path := writeFile(t, `[{"lat":91,"lng":0},{"lat":0,"lng":0}]`)
	_, err := runCLI(t, "route", "--file", path)
	assert.Error(t, err)

	_, err = runCLI(t, "route", "--file", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRouteCommandRejectsOversized(t *testing.T) {
	path := writeFile(t, `[{"lat":-90,"lng":0},{"lat":90,"lng":0},{"lat":-90,"lng":0}]`)
	_, err := runCLI(t, "route", "--file", path)
	assert.ErrorIs(t, err, route.ErrTooManyPoints)

	path = writeFile(t, `[{"lat":0,"lng":0},{"lat":0.01,"lng":0}]`)
	_, err = runCLI(t, "route", "--file", path, "--max-points", "100")
	assert.ErrorIs(t, err, route.ErrTooManyPoints)
}
