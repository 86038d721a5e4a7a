package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/infra/logger"
)

// InfluxSink writes dissemination events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLocation writes the dispatched position of a vehicle.
func (s *InfluxSink) RecordLocation(ev coremetrics.LocationEvent) error {
	p := write.NewPointWithMeasurement("vehicle_location").
		AddTag("vehicle_id", ev.VehicleID)
	if ev.TripID != "" {
		p = p.AddTag("trip_id", ev.TripID)
	}
	if ev.Source != "" {
		p = p.AddTag("source", ev.Source)
	}
	p = p.AddField("lat", ev.Coordinate.Lat).
		AddField("lng", ev.Coordinate.Lng).
		AddField("recipients", ev.Recipients).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRoute writes the outcome of an interpolation.
func (s *InfluxSink) RecordRoute(ev coremetrics.RouteEvent) error {
	p := write.NewPointWithMeasurement("route_interpolated")
	if ev.RouteID != "" {
		p = p.AddTag("route_id", ev.RouteID)
	}
	p = p.AddField("waypoints", ev.Waypoints).
		AddField("points", ev.Points).
		AddField("distance_m", round3(ev.DistanceMeters)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSubscription writes a subscription lifecycle event.
func (s *InfluxSink) RecordSubscription(ev coremetrics.SubscriptionEvent) error {
	p := write.NewPointWithMeasurement("subscription_event").
		AddTag("action", ev.Action).
		AddTag("destination", ev.Destination)
	if ev.SubscriptionID != "" {
		p = p.AddTag("subscription_id", ev.SubscriptionID)
	}
	p = p.AddField("subject", ev.Subject).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDelivery writes failed and dropped deliveries. Successful ones are
// only counted by Prometheus.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	if !ev.Dropped && ev.Error == "" {
		return nil
	}
	p := write.NewPointWithMeasurement("subscription_delivery").
		AddTag("subscription_id", ev.SubscriptionID).
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("dropped", strconv.FormatBool(ev.Dropped)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
