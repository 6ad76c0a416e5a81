package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/infrastructure/seed"
	httpapi "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every command needs once configuration is loaded
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "server",
		Short:         "Step-driven approval workflow engine",
		Long:          "Routes business objects through configured approval steps and records every decision.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+defaultConfigPath+" when present)")

	load := func() (*app, error) {
		return loadApp(configPath)
	}

	serve := newServeCommand(load)
	root.RunE = serve.RunE
	root.AddCommand(serve, newMigrateCommand(load), newSeedCommand(load), newSweepCommand(load))

	return root
}

func loadApp(configPath string) (*app, error) {
	if configPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			configPath = defaultConfigPath
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &app{cfg: cfg, logger: logger}, nil
}

func newServeCommand(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the timeout worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			a.logger.Info("Starting approval engine",
				zap.String("version", version),
				zap.Int("port", a.cfg.Server.Port))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(a.cfg.ToContainerConfig(), a.logger)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				_ = c.Close()
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					a.logger.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			opts := []httpapi.ServerOption{httpapi.WithHealthCheck(c.Ping)}
			if h := c.Telemetry().Handler; h != nil {
				opts = append(opts, httpapi.WithMetricsHandler(h))
			}
			httpapi.Version = version

			srvCfg := a.cfg.Server
			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:            srvCfg.Host,
				Port:            srvCfg.Port,
				Mode:            srvCfg.Mode,
				ReadTimeout:     srvCfg.ReadTimeout,
				WriteTimeout:    srvCfg.WriteTimeout,
				ShutdownTimeout: srvCfg.ShutdownTimeout,
			}, c.WorkflowService(), utils.NewKVLogger(a.logger.Named("http")), opts...)

			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			a.logger.Info("Shutdown signal received, stopping")
			return nil
		},
	}
}

func newMigrateCommand(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			cfg := a.cfg.ToContainerConfig()
			cfg.Database.AutoMigrate = true
			return withContainer(cfg, a.logger, func(c *container.Container) error {
				a.logger.Info("Migrations applied", zap.String("path", cfg.Database.Path))
				return nil
			})
		},
	}
}

func newSeedCommand(load func() (*app, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load workflow definitions and organisation data from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			return withContainer(a.cfg.ToContainerConfig(), a.logger, func(c *container.Container) error {
				summary, err := seed.NewLoader(c.Store(), c.DB(), a.logger.Named("seed")).LoadFile(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d workflows (%d steps), %d employees, %d role and %d responsibility assignments\n",
					summary.Workflows, summary.Steps, summary.Employees, summary.Roles, summary.Responsibilities)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.yaml", "seed file")

	return cmd
}

func newSweepCommand(load func() (*app, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Handle expired step instances once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return withContainer(a.cfg.ToContainerConfig(), a.logger, func(c *container.Container) error {
				handled, err := c.WorkflowEngine().SweepTimeouts(cmd.Context(), limit)
				fmt.Fprintf(cmd.OutOrStdout(), "handled %d expired step instances\n", handled)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum step instances to handle")

	return cmd
}

// withContainer runs fn against a container without background workers
func withContainer(cfg *container.Config, logger *zap.Logger, fn func(c *container.Container) error) error {
	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.StartWithoutWorkers(); err != nil {
		_ = c.Close()
		return err
	}

	runErr := fn(c)
	if err := c.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
