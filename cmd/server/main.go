package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/api"
	"github.com/phenodx-server/internal/auth"
	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/config"
	"github.com/phenodx-server/internal/database"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/history"
	"github.com/phenodx-server/internal/logging"
	"github.com/phenodx-server/internal/monitoring"
	"github.com/phenodx-server/internal/repository"
	"github.com/phenodx-server/internal/service"
	"github.com/phenodx-server/internal/session"
	"github.com/phenodx-server/pkg/external"
)

const (
	sessionTTL      = 12 * time.Hour
	cleanupInterval = 5 * time.Minute
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.NewLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host":         cfg.Server.Host,
		"port":         cfg.Server.Port,
		"environment":  cfg.Environment,
		"ranking_mode": cfg.Ranking.Mode,
	}).Info("Starting phenotype diagnosis server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	metrics := monitoring.NewMetricsCollector("phenodx")

	terms, err := catalog.Open(catalog.Config{Path: cfg.Catalog.Path, CacheSize: cfg.Catalog.CacheSize}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load term catalog")
	}

	backends, cache := external.NewResilientClientFromConfig(cfg, logger)
	if cache != nil {
		defer cache.Close()
	}

	var rankingBackend external.RankingAPI
	if cfg.Ranking.Mode != domain.RankingModeReference {
		rankingBackend = backends
	}
	ranker, err := service.NewRanker(cfg.Ranking.Mode, rankingBackend, cfg.Ranking.MaxResults, metrics, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ranker")
	}

	graphs := service.NewGraphBuilder(service.DefaultGraphConfig(), logger)
	sessions := session.NewManager(func() *service.RankingEngine {
		return service.NewRankingEngine(ranker, cfg.Ranking.Timeout, metrics, logger)
	}, graphs, sessionTTL, logger)
	sessions.OnCountChange(metrics.SetActiveSessions)
	go sessions.Run(ctx, cleanupInterval)
	defer sessions.CloseAll()

	users, closeUsers := userRepository(ctx, configManager, logger)
	defer closeUsers()

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = uuid.NewString() + uuid.NewString()
		logger.Warn("auth.jwt_secret not set, using an ephemeral secret; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create token issuer")
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open history store")
	}
	defer store.Close()

	server := api.NewServer(cfg, api.Dependencies{
		Catalog:     terms,
		Sessions:    sessions,
		Auth:        auth.NewService(users, cfg.Auth.BcryptCost, logger),
		Tokens:      tokens,
		Suggestions: service.NewSuggestionService(terms, backends, metrics, logger),
		History:     store,
		Metrics:     metrics,
		Backends:    backends,
		Logger:      logger,
	})

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// userRepository returns the PostgreSQL account store when the database is
// enabled, migrating it first, and an in-memory store otherwise.
func userRepository(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) (domain.UserRepository, func()) {
	cfg := configManager.GetDatabaseConfig()
	if !cfg.Enabled {
		logger.Warn("Database disabled, accounts are kept in memory")
		return repository.NewMemoryUserRepository(), func() {}
	}

	if err := database.Migrate(configManager.GetDatabaseConnectionString(), cfg.MigrationsPath, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(*cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	return repository.NewUserRepository(db.Pool, logger), db.Close
}
