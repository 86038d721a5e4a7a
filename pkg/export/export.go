// Package export renders polylines for spreadsheets and GIS imports.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/kilianp07/routecast/core/geo"
	"github.com/kilianp07/routecast/core/model"
)

// WriteCSV writes one row per point. distance_meters is the length of the
// segment ending at that point, 0 for the first one.
func WriteCSV(w io.Writer, poly []model.Coordinate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "lat", "lng", "distance_meters"}); err != nil {
		return err
	}
	segs := geo.SegmentDistances(poly)
	for i, c := range poly {
		d := 0.0
		if i > 0 {
			d = segs[i-1]
		}
		rec := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(c.Lat, 'f', -1, 64),
			strconv.FormatFloat(c.Lng, 'f', -1, 64),
			strconv.FormatFloat(d, 'f', 3, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
