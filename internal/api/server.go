// Package api exposes the cohort builder over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/cohortstore"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/database"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/middleware"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/repository"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/service"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/pkg/producer"
)

// Dependencies bundles everything the HTTP server needs. Optional fields
// (DB, repositories, store, producer, cache) may be nil; the corresponding
// routes then return 503.
type Dependencies struct {
	Config   *domain.Config
	Schema   *schema.Index
	Engine   *service.AnalyticsEngine
	Sessions *service.SessionManager
	Cache    *service.AnalyticsCache
	DB       *database.DB
	Projects *repository.ProjectRepository
	History  *repository.HistoryRepository
	Cohorts  cohortstore.Store
	Producer *producer.Client
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	deps   Dependencies
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(deps Dependencies) *Server {
	// Set Gin mode based on log level
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(deps.Config.Server.WriteTimeout))
	router.Use(corsMiddleware())

	server := &Server{
		deps:   deps,
		router: router,
		logger: deps.Logger,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router returns the underlying gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.deps.Config.Server
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
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.handleCreateSession)
			sessions.GET("/:id", s.handleGetSession)
			sessions.DELETE("/:id", s.handleDeleteSession)
			sessions.POST("/:id/filters", s.handleAddFilter)
			sessions.DELETE("/:id/filters", s.handleClearFilters)
			sessions.DELETE("/:id/filters/:filterID", s.handleRemoveFilter)
			sessions.POST("/:id/filters/:filterID/toggle", s.handleToggleFilter)
			sessions.GET("/:id/analytics/patient-count", s.handlePatientCount)
			sessions.GET("/:id/analytics/demographics", s.handleDemographics)
			sessions.GET("/:id/analytics/diagnoses", s.handleDiagnosisBreakdown)
			sessions.POST("/:id/query", s.handleProcessQuery)
		}

		sch := v1.Group("/schema")
		{
			sch.GET("/tables", s.handleListTables)
			sch.GET("/tables/:table/fields", s.handleFilterableFields)
			sch.GET("/date-operators", s.handleDateOperators)
		}

		projects := v1.Group("/projects")
		{
			projects.POST("", s.handleCreateProject)
			projects.GET("", s.handleListProjects)
			projects.GET("/:id", s.handleGetProject)
			projects.PUT("/:id", s.handleUpdateProject)
			projects.DELETE("/:id", s.handleDeleteProject)
			projects.GET("/:id/history", s.handleProjectHistory)
		}

		v1.GET("/history", s.handleRecentHistory)

		cohorts := v1.Group("/cohorts")
		{
			cohorts.POST("", s.handleSaveCohort)
			cohorts.GET("", s.handleListCohorts)
			cohorts.GET("/export", s.handleExportCohorts)
			cohorts.POST("/import", s.handleImportCohorts)
			cohorts.GET("/:name", s.handleGetCohort)
			cohorts.DELETE("/:name", s.handleDeleteCohort)
		}
	}
}

// handleHealth reports liveness plus the state of optional backends.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if s.deps.DB != nil {
		if err := s.deps.DB.Health(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.deps.Producer != nil {
		if err := s.deps.Producer.Health(ctx); err != nil {
			checks["producer"] = err.Error()
		} else {
			checks["producer"] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"sessions":  s.deps.Sessions.Count(),
		"checks":    checks,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
