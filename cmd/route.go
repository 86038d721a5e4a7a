package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/routecast/api/routes"
	"github.com/kilianp07/routecast/core/geo"
	"github.com/kilianp07/routecast/core/model"
	"github.com/kilianp07/routecast/core/route"
	"github.com/kilianp07/routecast/internal/validate"
	"github.com/kilianp07/routecast/pkg/export"
)

var (
	routeFile      string
	routeFormat    string
	routeMaxPoints int
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Interpolate waypoints offline",
	Long: `Reads waypoints from a JSON file, either the interpolate request body
{"route_id":"r1","waypoints":[{"lat":..,"lng":..}]} or a bare array of
waypoints, and prints the interpolated polyline with its statistics.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVarP(&routeFile, "file", "f", "", "waypoints file")
	routeCmd.Flags().StringVar(&routeFormat, "format", "", "output format (json|geojson|csv)")
	routeCmd.Flags().IntVar(&routeMaxPoints, "max-points", route.DefaultMaxPoints, "refuse routes interpolating to more points")
	_ = routeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(routeCmd)
}

func decodeRoute(data []byte) (routes.InterpolateRequest, error) {
	var req routes.InterpolateRequest
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		data = append(append([]byte(`{"waypoints":`), data...), '}')
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode waypoints: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("invalid waypoints: %s", strings.Join(validate.Messages(err), "; "))
	}
	return req, nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(routeFile)
	if err != nil {
		return err
	}
	req, err := decodeRoute(data)
	if err != nil {
		return err
	}
	format := req.Format
	if routeFormat != "" {
		format = routeFormat
	}

	wps := make([]model.Coordinate, len(req.Waypoints))
	for i, p := range req.Waypoints {
		wps[i] = model.Coordinate{Lat: p.Lat, Lng: p.Lng}
	}
	if err := route.CheckSize(wps, routeMaxPoints); err != nil {
		return err
	}
	poly := geo.Interpolate(wps)
	sum := geo.Summarize(poly)

	out := cmd.OutOrStdout()
	switch format {
	case routes.FormatGeoJSON:
		body, err := routes.Feature(req.RouteID, poly, sum).MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	case "csv":
		return export.WriteCSV(out, poly)
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(routes.InterpolateResponse{
			RouteID:          req.RouteID,
			Polyline:         poly,
			Statistics:       sum.RouteStatistics,
			MinSegmentMeters: sum.MinSegmentMeters,
			MaxSegmentMeters: sum.MaxSegmentMeters,
		})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
