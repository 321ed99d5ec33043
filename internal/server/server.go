package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pinpoint/internal/app/domain/account"
	"pinpoint/internal/app/domain/marker"
	database "pinpoint/internal/db"
	"pinpoint/internal/pkg/config"
)

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	dbPool *pgxpool.Pool
	router http.Handler

	accounts account.Service
	markers  marker.Service
}

// New creates a new Server instance with all dependencies
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	var accountRepo account.Repository
	var markerRepo marker.Repository

	switch cfg.StoreBackend {
	case config.StorePostgres:
		dbPool, err := s.setupDatabase(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to setup database: %w", err)
		}
		s.dbPool = dbPool
		accountRepo = account.NewPostgresRepository(dbPool, logger)
		markerRepo = marker.NewPostgresRepository(dbPool, logger)
	case config.StoreMemory:
		logger.Warn("Using in-memory store; markers and accounts will not survive a restart")
		accountRepo = account.NewMemoryRepository()
		markerRepo = marker.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	s.accounts = account.NewService(accountRepo, logger)
	s.markers = marker.NewService(markerRepo, s.accounts, cfg.Markers, logger)

	return s, nil
}

// setupDatabase initializes the database connection and runs migrations
func (s *Server) setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	s.logger.Info("Setting up database connection and migrations")

	dbConfig, err := database.NewDatabaseConfig(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database configuration: %w", err)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	database.WaitForDB(ctx, pool, s.logger)
	s.logger.Info("Connected to Postgres",
		zap.String("host", s.cfg.Repositories.Postgres.Host),
		zap.String("port", s.cfg.Repositories.Postgres.Port),
		zap.String("database", s.cfg.Repositories.Postgres.DB))

	if err = database.RunMigrations(dbConfig.ConnectionURL, s.logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.logger.Info("Database setup completed successfully")
	return pool, nil
}

// HTTPServer creates and configures the HTTP server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        ":" + s.cfg.ServerPort,
		Handler:     s.router,
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: WebSocket sessions outlive any fixed deadline
	}
}

// SetRouter sets the HTTP router/handler
func (s *Server) SetRouter(router http.Handler) {
	s.router = router
}

// MarkerService returns the marker service
func (s *Server) MarkerService() marker.Service {
	return s.markers
}

// AccountService returns the account service
func (s *Server) AccountService() account.Service {
	return s.accounts
}

// GetConfig returns the configuration
func (s *Server) GetConfig() *config.Config {
	return s.cfg
}

// Close closes all server resources
func (s *Server) Close() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
}
