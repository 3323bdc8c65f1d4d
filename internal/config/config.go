package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// SchedulerConfig holds payment scheduler configuration
type SchedulerConfig struct {
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	MaxSubmitAttempts int           `mapstructure:"max_submit_attempts"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// ReconcilerConfig holds reconciliation listener configuration
type ReconcilerConfig struct {
	PollEnabled  bool          `mapstructure:"poll_enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// IngestionConfig holds document ingestion configuration
type IngestionConfig struct {
	// ConfidenceThreshold gates auto-submission of extracted bills;
	// extractions below it require human review.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/billflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Scheduler defaults
	viper.SetDefault("scheduler.scan_interval", 30*time.Second)
	viper.SetDefault("scheduler.max_submit_attempts", 5)
	viper.SetDefault("scheduler.base_backoff", 30*time.Second)
	viper.SetDefault("scheduler.max_backoff", 30*time.Minute)

	// Reconciler defaults
	viper.SetDefault("reconciler.poll_enabled", true)
	viper.SetDefault("reconciler.poll_interval", 30*time.Second)

	// Ingestion defaults
	viper.SetDefault("ingestion.confidence_threshold", 0.8)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("database.path", "BILLFLOW_DB_PATH")
	viper.BindEnv("server.port", "BILLFLOW_PORT")
	viper.BindEnv("logger.level", "BILLFLOW_LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scheduler.ScanInterval <= 0 {
		return fmt.Errorf("scheduler.scan_interval must be positive")
	}
	if c.Scheduler.MaxSubmitAttempts <= 0 {
		return fmt.Errorf("scheduler.max_submit_attempts must be positive")
	}
	if c.Reconciler.PollInterval <= 0 {
		return fmt.Errorf("reconciler.poll_interval must be positive")
	}
	if c.Ingestion.ConfidenceThreshold < 0 || c.Ingestion.ConfidenceThreshold > 1 {
		return fmt.Errorf("ingestion.confidence_threshold must be between 0 and 1")
	}
	return nil
}
