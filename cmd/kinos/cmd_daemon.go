package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kinos/internal/daemon"
	"github.com/yairfalse/kinos/telemetry"
	"github.com/yairfalse/kinos/types"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run snapshot cycles continuously",
	Long: `Run Kinos in daemon mode: one snapshot cycle immediately, then one
per interval, or on a cron schedule when one is configured.

Prometheus metrics are served on /metrics and liveness on /healthz.
The daemon shuts down cleanly on SIGTERM/SIGINT.`,
	Example: `  kinos daemon                      # Cycle on the configured interval
  kinos daemon --config prod.yaml   # Explicit config file
  kinos daemon --region us-west-2   # Override configured region`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "kinos",
		ServiceVersion: version,
		OTELEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdown(shutdownCtx)
	}()

	rt, err := newCycleRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := daemon.New(daemon.Config{
		Interval: cfg.Daemon.Interval,
		Schedule: cfg.Daemon.Schedule,
	}, func(ctx context.Context) (*types.RunReport, error) {
		report, err := rt.orchestrator.RunCycle(ctx)
		rt.pruneJournal()
		return report, err
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	log.Info().
		Str("region", rt.provider.Region()).
		Str("account", rt.provider.AccountID()).
		Dur("interval", cfg.Daemon.Interval).
		Str("schedule", cfg.Daemon.Schedule).
		Str("metrics_addr", cfg.Daemon.MetricsAddr).
		Msg("kinos daemon starting")

	// Actor group: cycle loop, metrics server, signal handler. The first
	// to stop brings down the rest.
	var g run.Group

	loopCtx, loopCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return d.Start(loopCtx)
	}, func(error) {
		loopCancel()
	})

	server := metricsServer(cfg.Daemon.MetricsAddr, d)
	g.Add(func() error {
		log.Info().Str("addr", cfg.Daemon.MetricsAddr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	})

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()

	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		log.Info().Str("signal", signalErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

// metricsServer serves Prometheus metrics and daemon liveness
func metricsServer(addr string, d *daemon.Daemon) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthzHandler(d))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// healthzHandler reports liveness with cycle counters
func healthzHandler(d *daemon.Daemon) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(d.Health())
	}
}
