package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/api"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/cohortstore"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/config"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/database"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/repository"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/service"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/pkg/producer"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	// `server migrate <up|down|status>` manages the postgres schema and exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		action := "up"
		if len(os.Args) > 2 {
			action = os.Args[2]
		}
		dbConfig := database.FromDomainConfig(configManager.GetDatabaseConfig())
		if err := runMigrateCommand(dbConfig.URL(), action, logger); err != nil {
			logger.Fatalf("Migration command failed: %v", err)
		}
		return
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting cohort builder server")

	// Load the schema document that drives filter field discovery
	index, err := schema.Load(cfg.Schema.Path, logger)
	if err != nil {
		logger.Fatalf("Failed to load schema document: %v", err)
	}

	engine := service.NewAnalyticsEngine(index, cfg.Analytics, logger)
	sessions := service.NewSessionManager(engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := api.Dependencies{
		Config:   cfg,
		Schema:   index,
		Engine:   engine,
		Sessions: sessions,
		Logger:   logger,
	}

	// Postgres is optional in development; without it the server still
	// answers session, schema, and analytics routes.
	dbConfig := database.FromDomainConfig(configManager.GetDatabaseConfig())
	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Warn("Database unavailable, persistence routes disabled")
	} else {
		defer db.Close()
		runMigrations(dbConfig.URL(), logger)
		deps.DB = db
		deps.Projects = repository.NewProjectRepository(db.Pool, logger)
		deps.History = repository.NewHistoryRepository(db.Pool, logger)

		store, err := cohortstore.NewPostgresStoreFromURL(dbConfig.URL())
		if err != nil {
			logger.WithError(err).Warn("Saved cohort storage unavailable")
		} else {
			defer store.Close()
			deps.Cohorts = store
		}
	}

	redisClient, err := service.NewRedisClient(cfg.Cache)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, analytics cache runs in-memory only")
		redisClient = nil
	}
	cache, err := service.NewAnalyticsCache(cfg.Cache, redisClient, logger)
	if err != nil {
		logger.Fatalf("Failed to create analytics cache: %v", err)
	}
	defer cache.Close()
	deps.Cache = cache

	deps.Producer = producer.NewClient(cfg.Producer, logger)

	server := api.NewServer(deps)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

func runMigrations(databaseURL string, logger *logrus.Logger) {
	runner, err := database.NewMigrationRunner(databaseURL, "migrations", logger)
	if err != nil {
		logger.WithError(err).Warn("Migration runner unavailable, skipping migrations")
		return
	}
	defer runner.Close()
	if err := runner.Up(); err != nil {
		logger.WithError(err).Warn("Migrations failed")
	}
}

func runMigrateCommand(databaseURL, action string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, "migrations", logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch action {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		status, err := runner.Status()
		if err != nil {
			return err
		}
		if !status.Applied {
			logger.Info("No cohort schema migrations applied yet")
			return nil
		}
		logger.WithFields(logrus.Fields{
			"version": status.Version,
			"dirty":   status.Dirty,
		}).Info("Cohort schema status")
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (expected up, down or status)", action)
	}
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
