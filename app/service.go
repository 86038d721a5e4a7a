package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/routecast/api"
	"github.com/kilianp07/routecast/auth"
	"github.com/kilianp07/routecast/config"
	"github.com/kilianp07/routecast/core/authz"
	"github.com/kilianp07/routecast/core/broadcast"
	coremetrics "github.com/kilianp07/routecast/core/metrics"
	coremon "github.com/kilianp07/routecast/core/monitoring"
	corenotify "github.com/kilianp07/routecast/core/notify"
	"github.com/kilianp07/routecast/core/route"
	"github.com/kilianp07/routecast/core/tracking"
	"github.com/kilianp07/routecast/core/workers"
	"github.com/kilianp07/routecast/infra/amqp"
	"github.com/kilianp07/routecast/infra/logger"
	"github.com/kilianp07/routecast/infra/metrics"
	"github.com/kilianp07/routecast/infra/monitoring"
	"github.com/kilianp07/routecast/infra/mqtt"
	"github.com/kilianp07/routecast/infra/notify"
	"github.com/kilianp07/routecast/infra/snapshot"
	"github.com/kilianp07/routecast/infra/telemetry"
	"github.com/kilianp07/routecast/infra/ws"
	"github.com/kilianp07/routecast/internal/eventbus"
	"github.com/kilianp07/routecast/jobs/retention"
)

// Service wires the broadcast dispatcher to its transports.
type Service struct {
	Dispatcher *broadcast.Dispatcher
	Routes     *route.Service
	Store      *tracking.MemoryStore
	Hub        *ws.Hub

	cfg       *config.Config
	pools     *workers.Pools
	bus       *eventbus.TypedBus[broadcast.Event]
	sink      coremetrics.MetricsSink
	handler   http.Handler
	mqtt      mqtt.Client
	telemetry *telemetry.Manager
	snapshot  *snapshot.SQLiteStore
	log       logger.Logger

	mu     sync.Mutex
	bridge *mqtt.Bridge
	amqp   *amqp.Conn
	closed bool
}

// New creates a Service from the configuration. The MQTT client is only
// connected when telemetry or the bridge is enabled.
func New(cfg *config.Config) (*Service, error) {
	if err := cfg.Logging.Apply(); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logg := logger.New("service")

	if cfg.Sentry.Enabled() {
		mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		coremon.Init(mon)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	pools := workers.NewPools(cfg.Workers, logger.New("workers"))
	bus := eventbus.NewTyped[broadcast.Event]()
	store := tracking.NewMemoryStore()
	gate := authz.NewNamespaceGate(cfg.Broadcast.Namespace)

	disp, err := broadcast.NewDispatcher(cfg.Broadcast, gate, pools.Location, sink, bus, logger.New("broadcast"))
	if err != nil {
		pools.Close()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	disp.SetStore(store)

	var notifier corenotify.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.NewWebhook(cfg.Notify)
	}
	routes, err := route.NewService(pools.General, pools.Notification, sink, notifier, logger.New("route"))
	if err != nil {
		disp.Close()
		pools.Close()
		return nil, fmt.Errorf("route service: %w", err)
	}
	routes.SetNotifyTimeout(cfg.Notify.Timeout())
	routes.SetMaxPoints(cfg.Server.MaxRoutePoints)

	var verifier ws.TokenVerifier
	if cfg.Auth.Secret != "" {
		v, err := auth.NewJWTVerifier(cfg.Auth)
		if err != nil {
			disp.Close()
			pools.Close()
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		verifier = v
	} else {
		logg.Warnf("auth.secret not set, websocket clients are anonymous")
	}
	hub := ws.NewHub(disp, verifier, cfg.WebSocket, logger.New("ws"))

	svc := &Service{
		Dispatcher: disp,
		Routes:     routes,
		Store:      store,
		Hub:        hub,
		cfg:        cfg,
		pools:      pools,
		bus:        bus,
		sink:       sink,
		log:        logg,
	}
	if path := cfg.Tracking.SnapshotPath; path != "" {
		snap, err := openSnapshot(path, store, logg)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.snapshot = snap
	}
	svc.handler = api.NewMux(cfg.Server, api.Deps{
		Routes:        routes,
		Publisher:     disp,
		Store:         store,
		WebSocket:     hub,
		WebSocketPath: hub.Path(),
	})

	if cfg.Telemetry.Enabled || cfg.Bridge.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
	}
	if cfg.Telemetry.Enabled {
		tm, err := telemetry.NewManager(svc.mqtt, cfg.Telemetry, disp, store, logger.New("telemetry"))
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		svc.telemetry = tm
	}
	return svc, nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the transports and serves the API until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	var snap tracking.Snapshotter
	if s.snapshot != nil {
		snap = s.snapshot
	}
	go retention.Run(ctx, s.Store, snap, s.cfg.Tracking, logger.New("retention"))

	if s.telemetry != nil {
		if err := s.telemetry.Start(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	if s.cfg.Bridge.Enabled {
		b, err := mqtt.StartBridge(s.Dispatcher, s.mqtt, s.cfg.Bridge, logger.New("mqtt_bridge"))
		if err != nil {
			return fmt.Errorf("mqtt bridge: %w", err)
		}
		s.mu.Lock()
		s.bridge = b
		s.mu.Unlock()
	}
	if s.cfg.AMQP.Enabled {
		if err := s.startAMQP(ctx); err != nil {
			return err
		}
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"component": "prom-server"})
			}
		}()
	}
	return api.Serve(ctx, s.cfg.Server.Address, s.handler, logger.New("api"))
}

func (s *Service) startAMQP(ctx context.Context) error {
	alog := logger.New("amqp")
	conn, err := amqp.Dial(ctx, s.cfg.AMQP, alog)
	if err != nil {
		return fmt.Errorf("amqp: %w", err)
	}
	s.mu.Lock()
	s.amqp = conn
	s.mu.Unlock()

	ch := conn.Channel()
	if ch == nil {
		return errors.New("amqp: channel not available")
	}
	consumer := amqp.NewLocationConsumer(ch, s.cfg.AMQP, s.Dispatcher, alog)
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			alog.Errorf("location consumer stopped: %v", err)
			coremon.CaptureException(err, map[string]string{"component": "amqp"})
		}
	}()
	return nil
}

func openSnapshot(path string, store *tracking.MemoryStore, log logger.Logger) (*snapshot.SQLiteStore, error) {
	snap, err := snapshot.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("tracking snapshot: %w", err)
	}
	statuses, err := snap.Load(context.Background())
	if err != nil {
		_ = snap.Close()
		return nil, fmt.Errorf("load tracking snapshot: %w", err)
	}
	store.Restore(statuses)
	log.Infof("restored %d vehicle status(es) from %s", len(statuses), path)
	return snap, nil
}

// Close releases resources held by the service. Subscriptions are closed
// before the pools are drained.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	bridge, conn := s.bridge, s.amqp
	s.mu.Unlock()

	s.Hub.Close()
	if bridge != nil {
		bridge.Close()
	}
	s.Dispatcher.Close()
	s.pools.Close()
	s.bus.Close()
	if conn != nil {
		conn.Close()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.snapshot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := retention.Snapshot(ctx, s.Store, s.snapshot); err != nil {
			s.log.Errorf("final snapshot: %v", err)
		}
		cancel()
		_ = s.snapshot.Close()
	}
	coremon.Flush(2 * time.Second)
	return nil
}
