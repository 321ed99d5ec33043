package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown blocks until ctx is cancelled, then gives the HTTP server
// a bounded window to finish in-flight requests.
func GracefulShutdown(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	<-ctx.Done()
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exiting")
	return nil
}
