package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/membership/pkg/config"
	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
)

var (
	configFile = flag.String("config", config.ConfigFileFromEnv(), "YAML configuration file")
	runOnce    = flag.Bool("run-once", false, "Seed roles, run one invitation sweep and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, nil).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout).WithField("service", cfg.Observability.OTel.ServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("membershipd stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return err
	}

	e, err := engine.New(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		return errors.Join(err, observability.ShutdownOTel(context.Background(), providers, logger))
	}
	if providers != nil && e.Metrics != nil {
		if err := e.Metrics.EnableOTel(providers.MeterProvider.Meter(observability.InstrumentationName)); err != nil {
			logger.WithError(err).Warn("Failed to register OpenTelemetry instruments")
		}
	}

	if _, err := e.Bootstrap(ctx); models.Fatal(err) != nil {
		return errors.Join(err, e.Close(), observability.ShutdownOTel(context.Background(), providers, logger))
	}

	if *runOnce {
		_, err := e.SweepInvitations(ctx)
		return errors.Join(err, e.Close(), observability.ShutdownOTel(context.Background(), providers, logger))
	}

	scheduler, err := e.NewSweepScheduler()
	if err != nil {
		return errors.Join(err, e.Close(), observability.ShutdownOTel(context.Background(), providers, logger))
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.AdminPort),
		Handler:      e.AdminHandler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("engine", func(context.Context) error {
		return e.Close()
	})
	shutdown.Register("sweep scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	scheduler.Start()
	logger.WithField("schedule", cfg.Invitations.SweepSchedule).Info("Invitation expiry sweep scheduled")

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Admin server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			stop()
			return errors.Join(err, shutdown.Shutdown())
		}
		return shutdown.Wait(ctx)
	case <-ctx.Done():
		return shutdown.Shutdown()
	}
}
