package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. APPROVAL_SERVER_PORT
const EnvPrefix = "APPROVAL"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig tunes the workflow engine and its timeout sweep
type WorkflowConfig struct {
	DefaultStepTimeout   time.Duration `mapstructure:"default_step_timeout"`
	CommentMaxLength     int           `mapstructure:"comment_max_length"`
	RejectionPolicy      string        `mapstructure:"rejection_policy"`
	AllowEmptySteps      bool          `mapstructure:"allow_empty_steps"`
	TimeoutAction        string        `mapstructure:"timeout_action"`
	TimeoutSweepEnabled  bool          `mapstructure:"timeout_sweep_enabled"`
	TimeoutSweepInterval time.Duration `mapstructure:"timeout_sweep_interval"`
	TimeoutBatchSize     int           `mapstructure:"timeout_batch_size"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and APPROVAL_* environment variables, in increasing
// precedence
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.default_step_timeout", 48*time.Hour)
	v.SetDefault("workflow.comment_max_length", 500)
	v.SetDefault("workflow.rejection_policy", "terminate")
	v.SetDefault("workflow.allow_empty_steps", false)
	v.SetDefault("workflow.timeout_action", "escalate")
	v.SetDefault("workflow.timeout_sweep_enabled", true)
	v.SetDefault("workflow.timeout_sweep_interval", time.Minute)
	v.SetDefault("workflow.timeout_batch_size", 100)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "approval")
}

// bindEnvVars binds the unprefixed names deployment tooling commonly sets
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", "DATABASE_PATH")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("logger.level", EnvPrefix+"_LOGGER_LEVEL", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	switch c.Workflow.RejectionPolicy {
	case "terminate", "advance":
	default:
		return fmt.Errorf("workflow.rejection_policy must be terminate or advance")
	}
	switch c.Workflow.TimeoutAction {
	case "escalate", "reject", "none":
	default:
		return fmt.Errorf("workflow.timeout_action must be escalate, reject or none")
	}
	if c.Workflow.DefaultStepTimeout <= 0 {
		return fmt.Errorf("workflow.default_step_timeout must be positive")
	}
	if c.Workflow.CommentMaxLength <= 0 {
		return fmt.Errorf("workflow.comment_max_length must be positive")
	}
	if c.Workflow.TimeoutSweepEnabled && c.Workflow.TimeoutSweepInterval <= 0 {
		return fmt.Errorf("workflow.timeout_sweep_interval must be positive")
	}
	if c.Workflow.TimeoutBatchSize <= 0 {
		return fmt.Errorf("workflow.timeout_batch_size must be positive")
	}

	return nil
}
