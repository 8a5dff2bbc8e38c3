package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/engine"
	"github.com/joluben/sigsim/internal/httpmetrics"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
	fleetapi "github.com/joluben/sigsim/internal/api"
	"github.com/joluben/sigsim/internal/store"
)

const (
	appName = "fleetsim"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "IoT device fleet simulator",
		Version: version,
		Long:    "fleetsim simulates fleets of IoT devices emitting payloads over HTTP, MQTT, Kafka, WebSocket, FTP/SFTP, and pub/sub targets.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation engine's HTTP control surface",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("config", "", "Path to a runtime config YAML file")
	serveCmd.Flags().String("postgres-dsn", "", "Postgres DSN for the descriptor store (empty uses an in-memory demo store)")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a single seeded project against an in-memory store for a fixed duration",
		RunE:  runDemo,
	}
	demoCmd.Flags().Duration("duration", 20*time.Second, "How long to run the demo project before stopping")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// runServe wires the engine, its descriptor store, metrics, logsink and
// HTTP surface together and blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	configPath, _ := cmd.Flags().GetString("config")
	dsn, _ := cmd.Flags().GetString("postgres-dsn")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	snapshotStore, closeStore, err := buildStore(dsn)
	if err != nil {
		return fmt.Errorf("build descriptor store: %w", err)
	}
	defer closeStore()

	mc := metrics.NewWithWindow(cfg.Metrics.ResponseTimeWindow)
	eng := engine.New(snapshotStore, mc, cfg)

	reg := prometheus.NewRegistry()
	promRegistry := httpmetrics.NewRegistry(reg)
	go syncMetricsLoop(context.Background(), promRegistry, eng)

	server := fleetapi.NewServer(eng)
	mux := server.Router()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Msg("fleetsim control surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	for _, id := range eng.EmergencyStopAll() {
		log.Info().Str("project_id", id).Msg("stopped running project during shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildStore opens a Postgres-backed store when dsn is set, otherwise
// returns an empty in-memory one for local experimentation.
func buildStore(dsn string) (store.SnapshotStore, func(), error) {
	if dsn == "" {
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(store.PostgresConfig{DSN: dsn, MaxOpenConns: store.DefaultPostgresConfig().MaxOpenConns, MaxIdleConns: store.DefaultPostgresConfig().MaxIdleConns, ConnMaxLifetime: store.DefaultPostgresConfig().ConnMaxLifetime, QueryTimeout: store.DefaultPostgresConfig().QueryTimeout})
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

// syncMetricsLoop periodically mirrors the live collector into the
// Prometheus registry. A fixed interval is fine here: the /metrics
// endpoint only needs to be eventually consistent with the collector.
func syncMetricsLoop(ctx context.Context, reg *httpmetrics.Registry, eng *engine.Engine) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses := eng.AllStatuses()
			active := 0
			for _, s := range statuses {
				active += s.ActiveDevices
			}
			reg.Sync(eng.Metrics(), len(statuses), active)
		}
	}
}

// runDemo seeds a single project with one schema-payload device sending
// to an HTTP target against an in-memory store, starts it, lets it run
// for the requested duration, prints a status snapshot, then stops it —
// useful for smoke-testing a build without a CRUD layer or a browser.
func runDemo(cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")

	memStore := store.NewMemory()
	seedDemoProject(memStore)

	cfg := config.Default()
	mc := metrics.NewWithWindow(cfg.Metrics.ResponseTimeWindow)
	eng := engine.New(memStore, mc, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), duration+5*time.Second)
	defer cancel()

	if err := eng.StartProject(ctx, "demo-project"); err != nil {
		return fmt.Errorf("start demo project: %w", err)
	}

	log.Info().Dur("duration", duration).Msg("demo project running")
	time.Sleep(duration)

	status := eng.Status("demo-project")
	fmt.Printf("project demo-project: %d/%d devices active, %d messages sent\n", status.ActiveDevices, status.TotalDevices, status.MessagesSent)
	for _, d := range status.Devices {
		fmt.Printf("  device %s (%s): running=%v connected=%v sent=%d errors=%d\n", d.DeviceID, d.DeviceName, d.IsRunning, d.IsConnected, d.MessagesSent, d.Errors)
	}

	if err := eng.StopProject("demo-project"); err != nil {
		return fmt.Errorf("stop demo project: %w", err)
	}
	return nil
}

func seedDemoProject(s *store.Memory) {
	s.PutPayload(model.PayloadDescriptor{
		ID:   "demo-payload",
		Kind: model.PayloadKindSchema,
		Schema: []model.FieldSpec{
			{Name: "temperature_c", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomFloat, Min: 18, Max: 32, Decimals: 1}},
			{Name: "humidity_pct", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomInt, Min: 20, Max: 90}},
			{Name: "status", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomChoice, Choices: []string{"ok", "degraded"}}},
			{Name: "reading_id", Type: model.FieldTypeUUID, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomString}},
		},
	})
	s.PutTarget(model.TargetDescriptor{
		ID:   "demo-target",
		Kind: model.TargetHTTP,
		Config: map[string]any{
			"url":    "https://httpbin.org/post",
			"method": "POST",
		},
	})
	s.PutDevice(model.DeviceDescriptor{
		ID:           "demo-device-1",
		Name:         "Demo Sensor 1",
		ProjectID:    "demo-project",
		PayloadRef:   "demo-payload",
		TargetRef:    "demo-target",
		SendInterval: 2,
		Enabled:      true,
	})
	s.PutProject(model.ProjectDescriptor{
		ID:            "demo-project",
		EnabledDevice: []string{"demo-device-1"},
	})
}
