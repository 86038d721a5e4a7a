// Package api assembles the HTTP surface of routecast.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/routecast/api/routes"
	"github.com/kilianp07/routecast/api/vehicles"
	"github.com/kilianp07/routecast/core/logger"
	"github.com/kilianp07/routecast/core/route"
	"github.com/kilianp07/routecast/core/tracking"
)

// Config configures the HTTP server.
type Config struct {
	Address string `json:"address"`
	// IngestToken protects POST /api/vehicles/{id}/location when set.
	IngestToken string `json:"ingest_token"`
	// Metrics serves /metrics on the API server as well.
	Metrics bool `json:"metrics"`
	// MaxRoutePoints bounds the polylines returned by the interpolate route.
	MaxRoutePoints int `json:"max_route_points"`
}

func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.MaxRoutePoints == 0 {
		c.MaxRoutePoints = route.DefaultMaxPoints
	}
}

// Deps are the collaborators behind the handlers. Nil members disable the
// corresponding routes.
type Deps struct {
	Routes    routes.Builder
	Publisher vehicles.LocationPublisher
	Store     tracking.Store
	// WebSocket is mounted on WebSocketPath.
	WebSocket     http.Handler
	WebSocketPath string
}

// NewMux registers every route.
func NewMux(cfg Config, d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	if d.Routes != nil {
		mux.Handle("POST /api/routes/interpolate", routes.NewInterpolateHandler(d.Routes))
	}
	if d.Publisher != nil {
		mux.Handle("POST /api/vehicles/{id}/location", RequireBearer(cfg.IngestToken, vehicles.NewLocationHandler(d.Publisher)))
	}
	if d.Store != nil {
		mux.Handle("GET /api/vehicles/status", vehicles.NewStatusHandler(d.Store))
	}
	if d.WebSocket != nil && d.WebSocketPath != "" {
		mux.Handle("GET "+d.WebSocketPath, d.WebSocket)
	}
	if cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// RequireBearer rejects requests without "Bearer <token>". An empty token
// disables the check.
func RequireBearer(token string, h http.Handler) http.Handler {
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log logger.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
