// Package mcp exposes phenotype search and differential diagnosis as
// Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/catalog"
	litecfg "github.com/phenodx-server/internal/config"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/history"
	"github.com/phenodx-server/internal/logging"
	"github.com/phenodx-server/internal/service"
	"github.com/phenodx-server/pkg/external"
)

// ToolRecorder counts tool invocations
type ToolRecorder interface {
	RecordToolInvocation(tool string, success bool)
}

// Dependencies are the services the tools call into
type Dependencies struct {
	Catalog  domain.TermCatalog
	Ranker   domain.DiagnosisRanker
	Graphs   *service.GraphBuilder
	History  history.Store // optional
	Recorder ToolRecorder  // optional
	Timeout  time.Duration // per-call deadline; <= 0 disables it
}

// Server represents the MCP server
type Server struct {
	mcpServer *mcp.Server
	deps      Dependencies
	logger    *logrus.Logger
	ops       *logging.OperationLogger
}

// NewServer creates an MCP server and registers its tools
func NewServer(name, version string, deps Dependencies, logger *logrus.Logger) *Server {
	if deps.Graphs == nil {
		deps.Graphs = service.NewGraphBuilder(service.DefaultGraphConfig(), logger)
	}

	serverInfo := &mcp.Implementation{
		Name:    name,
		Version: version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		deps:      deps,
		logger:    logger,
		ops:       logging.NewOperationLogger(logger, true),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSearchTerms,
		Description: "Search the phenotype vocabulary by name. Queries shorter than two characters return no terms.",
	}, s.handleSearchTerms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolRankDiagnoses,
		Description: "Rank candidate diagnoses for a set of HPO term ids, highest confidence first.",
	}, s.handleRankDiagnoses)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolBuildGraph,
		Description: "Rank diagnoses for a set of HPO term ids and lay out the symptom-diagnosis relationship graph.",
	}, s.handleBuildGraph)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolExtractTerms,
		Description: "Find the vocabulary terms mentioned in free clinical text.",
	}, s.handleExtractTerms)

	s.logger.WithField("tool_count", 4).Info("Registered MCP tools")
}

// Start runs the server on stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting phenotype MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the history store
func (s *Server) Close() error {
	if s.deps.History != nil {
		if err := s.deps.History.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close history store")
			return err
		}
	}
	return nil
}

// LiteServerOption is a functional option for NewLiteServer.
type LiteServerOption func(*liteOptions) error

type liteOptions struct {
	history history.Store
	logger  *logrus.Logger
}

// WithHistoryStore sets a custom history store.
func WithHistoryStore(store history.Store) LiteServerOption {
	return func(o *liteOptions) error {
		o.history = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(o *liteOptions) error {
		o.logger = logger
		return nil
	}
}

// NewLiteServer creates a self-contained server from environment settings.
// It needs no database server: history goes to SQLite in the data directory.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*Server, error) {
	o := &liteOptions{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = logrus.New()
		// stdout carries the protocol
		logger.SetOutput(os.Stderr)
		if cfg.LogFormat == "text" {
			logger.SetFormatter(&logrus.TextFormatter{})
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	terms, err := catalog.Open(catalog.Config{Path: cfg.CatalogPath, CacheSize: cfg.CacheMaxItems}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load term catalog: %w", err)
	}

	var remote external.RankingAPI
	if cfg.RankingURL != "" {
		remote = external.NewRankingClient(domain.BackendConfig{
			BaseURL: cfg.RankingURL,
			Timeout: cfg.RankingTimeout,
		})
	}
	ranker, err := service.NewRanker(cfg.RankingMode, remote, 0, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranker: %w", err)
	}

	store := o.history
	if store == nil {
		store, err = history.NewSQLiteStore(cfg.HistoryDBPath(), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
	}

	server := NewServer("phenodx-mcp-server-lite", "v0.1.0", Dependencies{
		Catalog: terms,
		Ranker:  ranker,
		History: store,
		Timeout: cfg.RankingTimeout,
	}, logger)

	logger.WithFields(logrus.Fields{
		"data_dir":     cfg.DataDir,
		"ranking_mode": cfg.RankingMode,
		"terms":        terms.Len(),
	}).Info("Lite server initialized successfully")
	return server, nil
}
