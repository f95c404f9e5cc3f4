package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Rollcall HTTP API.
The API takes attendance from uploaded class photos, lets teachers correct
the drafted decisions before saving, and serves attendance history and
statistics. Prometheus metrics are exposed at /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies flag overrides on top of the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func newRegistry() (*prometheus.Registry, *metrics.AttendanceMetrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewAttendanceMetrics(registry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return registry, m, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("connecting to PostgreSQL database")
	store, err := openSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessionStore()

	rosters, closeRoster, err := openRoster(cfg)
	if err != nil {
		return err
	}
	defer closeRoster()

	registry, attendanceMetrics, err := newRegistry()
	if err != nil {
		return err
	}

	faceMatcher, faceClient := newMatcher(cfg, log)
	if err := faceClient.Health(ctx); err != nil {
		log.Warn("face service is not reachable yet", zap.String("url", cfg.Matcher.URL), zap.Error(err))
	}

	service := attendance.NewService(faceMatcher, rosters, store, attendance.ServiceConfig{
		Thresholds: thresholds(cfg),
		Workers:    cfg.Matcher.Workers,
		DraftTTL:   cfg.Attendance.DraftTTL,
	}, log, attendanceMetrics)

	server := web.NewServer(cfg, web.Dependencies{
		Service:     service,
		Sessions:    store,
		FaceService: faceClient,
		Registry:    registry,
		Log:         log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	log.Info("rollcall API ready",
		zap.String("url", fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)),
		zap.Float64("face_match_threshold", cfg.Attendance.FaceMatchThreshold),
		zap.Float64("presence_threshold", cfg.Attendance.PresenceThreshold),
	)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
