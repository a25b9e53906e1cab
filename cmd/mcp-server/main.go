package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/config"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/history"
	"github.com/phenodx-server/internal/logging"
	"github.com/phenodx-server/internal/mcp"
	"github.com/phenodx-server/internal/monitoring"
	"github.com/phenodx-server/internal/service"
	"github.com/phenodx-server/pkg/external"
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
	// stdout carries the protocol
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger := logging.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	metrics := monitoring.NewMetricsCollector("phenodx_mcp")

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

	store, err := history.Open(cfg.History)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open history store")
	}

	server := mcp.NewServer(cfg.MCP.ServerName, cfg.MCP.ServerVersion, mcp.Dependencies{
		Catalog:  terms,
		Ranker:   ranker,
		History:  store,
		Recorder: metrics,
		Timeout:  cfg.MCP.RequestTimeout,
	}, logger)
	defer server.Close()

	// Metrics are served over HTTP beside the stdio transport
	metricsServer := &http.Server{Addr: cfg.MCP.MetricsAddr, Handler: metrics.Handler()}
	if cfg.MCP.MetricsAddr != "" {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics listener failed")
			}
		}()
		defer metricsServer.Close()
	}

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("Phenotype MCP server stopped")
}
