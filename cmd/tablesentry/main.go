// Package main provides the TableSentry data-quality validation service.
//
// The service generates and runs quality checks for declared warehouse tables
// and keeps an external cron-job registry converged onto the schedules the
// configuration rows declare.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/tablesentry-io/tablesentry/internal/api"
	"github.com/tablesentry-io/tablesentry/internal/api/middleware"
	"github.com/tablesentry-io/tablesentry/internal/catalog"
	"github.com/tablesentry-io/tablesentry/internal/config"
	"github.com/tablesentry-io/tablesentry/internal/runner"
	"github.com/tablesentry-io/tablesentry/internal/scheduler"
	"github.com/tablesentry-io/tablesentry/internal/sink"
	"github.com/tablesentry-io/tablesentry/internal/storage"
)

// Version information.
const (
	version = "1.0.0"
	name    = "tablesentry"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting TableSentry service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Rate limiter (graceful shutdown handled by server.shutdown())
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
	)

	// Metadata database: configuration rows and run history.
	storageConfig := storage.LoadConfig()

	metaConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to metadata database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = metaConn.Close()
	}()

	logger.Info("Metadata database connected",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

	// Warehouse: the tables under validation. Shares the metadata database
	// unless TABLESENTRY_WAREHOUSE_URL points elsewhere.
	warehouseConfig := storage.LoadWarehouseConfig()

	warehouseConn, err := storage.NewConnection(warehouseConfig)
	if err != nil {
		logger.Error("Failed to connect to warehouse", slog.String("error", err.Error()))

		_ = metaConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	defer func() {
		_ = warehouseConn.Close()
	}()

	logger.Info("Warehouse connected",
		slog.String("database_url", warehouseConfig.MaskDatabaseURL()),
	)

	configStore := storage.NewConfigStore(metaConn)
	historyStore := storage.NewRunHistoryStore(metaConn)
	tabularStore := storage.NewTabularStore(warehouseConn)

	// Check catalog: built-ins plus optional extension templates from file.
	var extensions []catalog.CheckTemplate

	if path := config.GetEnvStr("TABLESENTRY_EXTENSION_CATALOG", ""); path != "" {
		extensions, err = catalog.LoadExtensions(path)
		if err != nil {
			logger.Error("Failed to load extension catalog",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			_ = metaConn.Close()
			_ = warehouseConn.Close()
			os.Exit(1)
		}

		logger.Info("Extension catalog loaded",
			slog.String("path", path),
			slog.Int("templates", len(extensions)),
		)
	}

	registry := catalog.NewRegistry(extensions...)
	selector := catalog.NewSelector(registry, logger)

	// Result sink: Kafka when brokers are configured, otherwise discard.
	var resultSink runner.ResultSink

	sinkConfig := sink.LoadConfig()
	if sinkConfig.Enabled() {
		kafkaSink := sink.NewKafkaSink(sinkConfig)

		defer func() {
			_ = kafkaSink.Close()
		}()

		resultSink = kafkaSink

		logger.Info("Kafka result sink enabled",
			slog.Any("brokers", sinkConfig.Brokers),
			slog.String("topic", sinkConfig.Topic),
		)
	} else {
		resultSink = sink.NoopSink{}

		logger.Info("No Kafka brokers configured, run results kept in history only")
	}

	checkRunner := runner.NewCheckRunner(tabularStore, logger)
	orchestrator := runner.NewOrchestrator(selector, checkRunner, configStore, historyStore, resultSink, logger)

	// Scheduler reconciliation against the external job registry.
	jobRegistry := scheduler.NewHTTPJobRegistry(scheduler.LoadHTTPRegistryConfig())
	reconciler := scheduler.NewReconciler(configStore, jobRegistry, scheduler.LoadReconcilerConfig(), logger)

	server := api.NewServer(
		serverConfig,
		orchestrator,
		reconciler,
		configStore,
		historyStore,
		registry,
		rateLimiter,
	)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("TableSentry service stopped")
}
