package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/routecast/config"
	coremetrics "github.com/kilianp07/routecast/core/metrics"
	"github.com/kilianp07/routecast/infra/amqp"
	"github.com/kilianp07/routecast/infra/logger"
	_ "github.com/kilianp07/routecast/infra/metrics"
	"github.com/kilianp07/routecast/infra/mqtt"
	"github.com/kilianp07/routecast/simulator"
)

var simOpts struct {
	vehicles   int
	interval   time.Duration
	speed      float64
	dropRate   float64
	routesFile string
	useAMQP    bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive simulated vehicles along interpolated routes",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.IntVarP(&simOpts.vehicles, "vehicles", "n", 10, "number of vehicles")
	f.DurationVar(&simOpts.interval, "interval", time.Second, "position report interval")
	f.Float64Var(&simOpts.speed, "speed", 13.9, "vehicle speed in m/s")
	f.Float64Var(&simOpts.dropRate, "drop-rate", 0, "probability a report is skipped")
	f.StringVar(&simOpts.routesFile, "routes", "", "routes file (json or yaml), a built-in route when empty")
	f.BoolVar(&simOpts.useAMQP, "amqp", false, "publish on the AMQP location exchange instead of MQTT")
	rootCmd.AddCommand(simulateCmd)
}

func loadSimRoutes(path string) ([]simulator.Route, error) {
	if path == "" {
		return simulator.DefaultRoutes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return simulator.LoadRoutesYAML(data)
	default:
		return simulator.LoadRoutes(data)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Logging.Apply(); err != nil {
		return err
	}
	log := logger.New("simulator")

	routes, err := loadSimRoutes(simOpts.routesFile)
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	simCfg := simulator.Config{
		Vehicles:    simOpts.vehicles,
		Interval:    simOpts.interval,
		SpeedMPS:    simOpts.speed,
		TopicPrefix: cfg.Telemetry.StatePrefix,
		QoS:         cfg.Telemetry.QoS,
		DropRate:    simOpts.dropRate,
	}
	simCfg.SetDefaults()
	if err := simCfg.Validate(); err != nil {
		return err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}

	var emit simulator.Emitter
	if simOpts.useAMQP {
		conn, err := amqp.Dial(ctx, cfg.AMQP, logger.New("amqp"))
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer conn.Close()
		ch := conn.Channel()
		if ch == nil {
			return errors.New("amqp: channel not available")
		}
		emit = simulator.EmitterFunc(amqp.NewPublisher(ch, cfg.AMQP).PublishLocation)
	} else {
		mcfg := cfg.MQTT
		mcfg.ClientID = "routecast-sim-" + uuid.NewString()
		if err := mcfg.Validate(); err != nil {
			return err
		}
		client, err := mqtt.NewPahoClient(mcfg)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		defer client.Disconnect()
		emit = simulator.NewMQTTEmitter(client, simCfg)
	}

	r, err := simulator.NewRunner(simCfg, simulator.GenerateFleet(simCfg, routes), emit, sink, log)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
