package container

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/resolver"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/infrastructure/telemetry"
	"github.com/garyjia/approval-engine/internal/infrastructure/worker"
	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/garyjia/approval-engine/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
	Store          *repository.Store
}

// TelemetryBundle holds the event subscribers and the metrics endpoint.
type TelemetryBundle struct {
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics
	Audit    *telemetry.AuditLogger
	Handler  http.Handler
}

// ProvideDatabase opens the database, applies the embedded schema when
// configured and builds the store.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(conn, logger).RunMigrations(database.Schema); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db := sqlite.NewDB(conn.DB, logger)
	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: db,
		Store:          repository.NewStore(db, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))))
}

// ProvideTelemetry registers the audit log and, when enabled, the
// Prometheus metrics on the dispatcher.
func ProvideTelemetry(cfg *MetricsConfig, d dispatcher.Dispatcher, logger *zap.Logger) *TelemetryBundle {
	bundle := &TelemetryBundle{Audit: telemetry.NewAuditLogger(logger)}
	bundle.Audit.Register(d)

	if cfg == nil || !cfg.Enabled {
		return bundle
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bundle.Registry = registry
	bundle.Metrics = telemetry.NewMetrics(&telemetry.MetricsConfig{
		Namespace: cfg.Namespace,
		Registry:  registry,
	})
	bundle.Metrics.Register(d)
	bundle.Handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return bundle
}

// ProvideWorkflowEngine wires the engine to the store, the resolver and the dispatcher.
func ProvideWorkflowEngine(cfg *WorkflowConfig, store *repository.Store, txManager *sqlite.DB, d dispatcher.Dispatcher, logger *zap.Logger) (workflow.Engine, error) {
	if store == nil || txManager == nil {
		return nil, fmt.Errorf("store and transaction manager are required")
	}

	agents := resolver.New(store, resolver.WithLogger(utils.NewKVLogger(logger.Named("resolver"))))

	return workflow.NewEngine(store, store, agents, txManager,
		workflow.WithConfig(cfg.Engine),
		workflow.WithDispatcher(d),
		workflow.WithLogger(utils.NewKVLogger(logger.Named("engine"))),
	), nil
}

// ProvideWorkflowService creates the service the HTTP layer talks to.
func ProvideWorkflowService(engine workflow.Engine, store *repository.Store, logger *zap.Logger) service.WorkflowService {
	return service.NewWorkflowService(engine, store, utils.NewKVLogger(logger.Named("service")))
}

// ProvideWorkers creates the worker manager and registers the timeout worker when enabled.
func ProvideWorkers(cfg *WorkflowConfig, engine workflow.Engine, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if cfg.TimeoutSweepEnabled {
		manager.Register(worker.NewTimeoutWorker(worker.TimeoutWorkerConfig{
			PollInterval: cfg.TimeoutSweepInterval,
			BatchSize:    cfg.TimeoutBatchSize,
		}, engine, logger.Named("timeout-worker")))
	}
	return manager
}
