package config

import (
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/container"
)

// ToContainerConfig converts the file/env configuration loaded by viper into
// the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			Mode:            c.Server.Mode,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Workflow: container.WorkflowConfig{
			Engine: workflow.Config{
				DefaultStepTimeout: c.Workflow.DefaultStepTimeout,
				CommentMaxLength:   c.Workflow.CommentMaxLength,
				RejectionPolicy:    workflow.RejectionPolicy(c.Workflow.RejectionPolicy),
				AllowEmptySteps:    c.Workflow.AllowEmptySteps,
				TimeoutAction:      workflow.TimeoutAction(c.Workflow.TimeoutAction),
			},
			TimeoutSweepEnabled:  c.Workflow.TimeoutSweepEnabled,
			TimeoutSweepInterval: c.Workflow.TimeoutSweepInterval,
			TimeoutBatchSize:     c.Workflow.TimeoutBatchSize,
		},
		Metrics: container.MetricsConfig{
			Enabled:   c.Metrics.Enabled,
			Namespace: c.Metrics.Namespace,
		},
	}
}
