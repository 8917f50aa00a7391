// Package main implements the drive control container entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drive-control/dcc/internal/api"
	"github.com/drive-control/dcc/internal/audit"
	"github.com/drive-control/dcc/internal/config"
	"github.com/drive-control/dcc/internal/drivetrain"
	"github.com/drive-control/dcc/internal/drivetrain/sim"
	"github.com/drive-control/dcc/internal/metrics"
	"github.com/drive-control/dcc/internal/pantilt"
	"github.com/drive-control/dcc/internal/queue"
	"github.com/drive-control/dcc/internal/ratelimit"
	"github.com/drive-control/dcc/internal/sensors"
)

const (
	DefaultAddr = ":8000"
	Version     = "1.0.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	logger.Info("starting drive control container", "version", Version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := config.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to build config store: %w", err)
	}
	logger.Info("configuration loaded", "queueMaxsize", cfg.QueueMaxsize)

	auditLogger, err := audit.NewLogger("logs")
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	drive, err := newDrivetrain(logger)
	if err != nil {
		return err
	}
	defer drive.Close()
	logger.Info("drivetrain initialized")

	ingress, err := ratelimit.New(cfg.IngressRateLimit.RatePerSecond, cfg.IngressRateLimit.Burst)
	if err != nil {
		return fmt.Errorf("failed to build ingress limiter: %w", err)
	}
	execution, err := ratelimit.New(cfg.ExecutionRateLimit.RatePerSecond, cfg.ExecutionRateLimit.Burst)
	if err != nil {
		return fmt.Errorf("failed to build execution limiter: %w", err)
	}

	commandQueue, err := queue.New(drive, execution, cfg.QueueMaxsize)
	if err != nil {
		return fmt.Errorf("failed to build command queue: %w", err)
	}

	m := metrics.New(
		func() float64 { return float64(commandQueue.Depth()) },
		ingress.Tokens,
		execution.Tokens,
	)
	commandQueue.SetObserver(m)
	commandQueue.Start()
	defer commandQueue.Stop()
	logger.Info("command queue started")

	server := api.NewServer(store, ingress, execution, commandQueue,
		drive, pantilt.New(), simulatedRanger(), simulatedLineFollower())
	server.SetEncoderSource(simulatedEncoders())
	server.SetAuditLogger(auditLogger)
	server.SetLogger(logger)
	server.SetMetrics(m)
	server.SetMetricsHandler(m.Handler())

	addr := serverAddress()
	logger.Info("starting HTTP server", "addr", addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newDrivetrain builds the motor controller over the simulated backend,
// loading the wiring config when one is present.
func newDrivetrain(logger *slog.Logger) (*drivetrain.Controller, error) {
	cfg := drivetrain.DefaultConfig()
	if path := os.Getenv("DCC_DRIVETRAIN_CONFIG"); path != "" {
		loaded, err := drivetrain.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load drivetrain config: %w", err)
		}
		cfg = loaded
	}
	drive, err := drivetrain.New(cfg, sim.New())
	if err != nil {
		return nil, fmt.Errorf("failed to build drivetrain: %w", err)
	}
	drive.SetLogger(logger)
	return drive, nil
}

// TODO: replace the simulated sensor readers with GPIO-backed
// implementations once a hardware backend is wired in.
func simulatedRanger() *sensors.Ranger {
	return sensors.NewRanger(func(ctx context.Context) (float64, error) {
		return 0.004, nil // ~0.69m ahead
	})
}

func simulatedLineFollower() *sensors.LineFollower {
	flat := func(ctx context.Context) (float64, error) { return 0.0, nil }
	return sensors.NewLineFollower(flat, flat)
}

func simulatedEncoders() *sensors.WheelEncoders {
	return sensors.NewWheelEncoders(func(ctx context.Context) (sensors.EncoderSample, error) {
		return sensors.EncoderSample{At: time.Now()}, nil
	})
}

// serverAddress returns the listen address from the environment or default.
func serverAddress() string {
	if addr := os.Getenv("DCC_ADDR"); addr != "" {
		return addr
	}
	return DefaultAddr
}
