package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pinpoint/internal/app/domain/marker"
	"pinpoint/internal/pkg/config"
	"pinpoint/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file, using environment variables")
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize observability
	otelShutdown, err := server.InitObservability("pinpoint", ":"+cfg.MetricsPort, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	// Create server
	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	// Setup router
	srv.SetRouter(server.SetupRouter(srv, logger))

	// Start pprof server (on separate port, not exposed publicly)
	server.StartPprofServer(":" + cfg.PprofPort)

	httpServer := srv.HTTPServer()
	sweeper := marker.NewSweeper(srv.MarkerService(), cfg.Markers.SweepInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return server.GracefulShutdown(gctx, httpServer, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", zap.Error(err))
		return err
	}

	logger.Info("Graceful shutdown complete")
	return nil
}
