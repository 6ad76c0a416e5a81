// Package container provides dependency injection and lifecycle management
// for the approval engine.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/workflow"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Workflow WorkflowConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate applies the embedded schema on start
	AutoMigrate bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkflowConfig holds engine and timeout sweep settings.
type WorkflowConfig struct {
	Engine workflow.Config

	// TimeoutSweepEnabled registers the timeout worker
	TimeoutSweepEnabled  bool
	TimeoutSweepInterval time.Duration
	TimeoutBatchSize     int
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approval.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Workflow: WorkflowConfig{
			Engine:               workflow.DefaultConfig(),
			TimeoutSweepEnabled:  true,
			TimeoutSweepInterval: time.Minute,
			TimeoutBatchSize:     100,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "approval",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.TimeoutSweepEnabled && c.Workflow.TimeoutSweepInterval <= 0 {
		return fmt.Errorf("workflow.timeout_sweep_interval must be positive")
	}
	return nil
}
