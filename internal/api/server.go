// Package api exposes the phenotype intake and differential diagnosis
// workflow over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/auth"
	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/history"
	"github.com/phenodx-server/internal/middleware"
	"github.com/phenodx-server/internal/monitoring"
	"github.com/phenodx-server/internal/service"
	"github.com/phenodx-server/internal/session"
	"github.com/phenodx-server/pkg/external"
)

// Version is reported by /health
const Version = "1.0.0"

// HealthReporter reports backend health
type HealthReporter interface {
	Health() []external.ServiceHealth
}

// Dependencies are the components the server routes to
type Dependencies struct {
	Catalog     *catalog.Catalog
	Sessions    *session.Manager
	Auth        *auth.Service
	Tokens      *auth.TokenIssuer
	Suggestions *service.SuggestionService
	History     history.Store
	Metrics     *monitoring.MetricsCollector
	Backends    HealthReporter
	Logger      *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	config *domain.Config
	deps   Dependencies
	log    *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, deps Dependencies) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(config.Server.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    deps.Logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/register", s.handleRegister)
		v1.POST("/auth/login", s.handleLogin)
	}

	gated := v1.Group("")
	gated.Use(middleware.RequireAuth(s.deps.Tokens))
	gated.Use(middleware.RequestTimeout(s.config.Server.RequestTimeout))
	{
		gated.POST("/auth/logout", s.handleLogout)

		gated.GET("/terms/search", s.handleSearchTerms)
		gated.POST("/terms/extract", s.handleExtractTerms)
		gated.POST("/terms/export.csv", s.handleExportCSV)
		gated.POST("/terms/import.csv", s.handleImportCSV)

		gated.GET("/history", s.handleListHistory)
		gated.DELETE("/history", s.handleClearHistory)
		gated.GET("/history/:id", s.handleGetHistory)
		gated.DELETE("/history/:id", s.handleDeleteHistory)
	}

	sess := gated.Group("/session")
	sess.Use(s.loadSession())
	{
		sess.GET("/symptoms", s.handleListSymptoms)
		sess.POST("/symptoms", s.handleAddSymptom)
		sess.PATCH("/symptoms/:id", s.handleUpdateSymptom)
		sess.DELETE("/symptoms/:id", s.handleRemoveSymptom)
		sess.DELETE("/symptoms", s.handleClearSymptoms)

		sess.POST("/analyze", s.handleAnalyze)
		sess.DELETE("/analyze", s.handleCancelAnalysis)
		sess.GET("/diagnoses", s.handleGetDiagnoses)

		sess.GET("/graph", s.handleGetGraph)
		sess.POST("/graph/pins", s.handlePinNode)
		sess.DELETE("/graph/pins/:id", s.handleReleaseNode)

		sess.GET("/suggestions", s.handleSuggestions)

		sess.GET("/export.json", s.handleExportJSON)
		sess.POST("/import.json", s.handleImportJSON)

		sess.GET("/profile", s.handleGetProfile)
		sess.PUT("/profile", s.handlePutProfile)
		sess.PATCH("/profile", s.handlePatchProfile)
	}

	// WebSocket upgrades cannot carry the request deadline
	events := v1.Group("/session")
	events.Use(middleware.RequireAuth(s.deps.Tokens), s.loadSession())
	events.GET("/events", s.handleEvents)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	checks := gin.H{}
	if s.deps.Catalog != nil {
		stats := s.deps.Catalog.Stats()
		checks["catalog"] = stats
		if !s.deps.Catalog.Ready() {
			status = "degraded"
		}
	}
	if s.deps.Backends != nil {
		backends := s.deps.Backends.Health()
		checks["backends"] = backends
		for _, b := range backends {
			if !b.Healthy {
				status = "degraded"
			}
		}
	}
	if s.deps.Sessions != nil {
		checks["sessions"] = s.deps.Sessions.Len()
	}
	if s.deps.History != nil {
		if _, err := s.deps.History.Count(c.Request.Context(), ""); err != nil {
			checks["history"] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			checks["history"] = "ok"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks":    checks,
	})
}
