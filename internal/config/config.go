package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	Environment  string `mapstructure:"environment"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers        string `mapstructure:"brokers"`
	ConsumerGroup  string `mapstructure:"consumer_group"`
	RawDataTopic   string `mapstructure:"rawdata_topic"`
	ProcDataTopic  string `mapstructure:"procdata_topic"`
	SecurityEnable bool   `mapstructure:"security_enable"`
	SecurityUser   string `mapstructure:"security_user"`
	SecurityPass   string `mapstructure:"security_pass"`
}

// MonitorConfig holds the tunables of the health-monitoring engine.
// All durations are epoch-millisecond spans except the job periods,
// which are in seconds.
type MonitorConfig struct {
	// InstanceID namespaces outgoing procdata messages.
	InstanceID string `mapstructure:"instance_id"`
	// CoalesceWindowMS is the minimum delay between a child change and the
	// parent's recompute; many child changes inside one window collapse
	// into a single parent pass.
	CoalesceWindowMS int64 `mapstructure:"coalesce_window_ms"`
	// HealthEvalIntervalMS is the floor for rescheduling periodic
	// datastream health checks.
	HealthEvalIntervalMS int64   `mapstructure:"health_eval_interval_ms"`
	NextEvalMarginCoef   float64 `mapstructure:"next_eval_margin_coef"`
	// DefaultSilenceTimeoutMS seeds t_nd_health_error on new datastreams.
	DefaultSilenceTimeoutMS int64 `mapstructure:"default_silence_timeout_ms"`

	MaxDevicesPerBatch int `mapstructure:"max_devices_per_batch"`
	MaxAssetsPerBatch  int `mapstructure:"max_assets_per_batch"`
	MaxStreamsPerBatch int `mapstructure:"max_streams_per_batch"`
	MaxAppsPerBatch    int `mapstructure:"max_apps_per_batch"`

	DeviceUpdatePeriodSec  int `mapstructure:"device_update_period_sec"`
	AssetUpdatePeriodSec   int `mapstructure:"asset_update_period_sec"`
	StreamHealthPeriodSec  int `mapstructure:"stream_health_period_sec"`
	AppStalenessPeriodSec  int `mapstructure:"app_staleness_period_sec"`

	// WarningExplainsSilence extends the silence-expected decision to
	// active warnings. Kept configurable until the intended precedence
	// of warnings in that decision is confirmed.
	WarningExplainsSilence bool `mapstructure:"warning_explains_silence"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LoadConfig loads the application configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default configuration file path if not provided
	if configPath == "" {
		configPath = "./config"
	}

	// Initialize Viper
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// Set environment variable prefix for overrides
	v.SetEnvPrefix("FLEETWATCH")

	// Set environment variable separator for nested structs
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read configuration from file
	if err := v.ReadInConfig(); err != nil {
		// If the configuration file is not found, that's fine, we'll use defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	// Set up environment variable binding
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Unmarshal configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)  // seconds
	v.SetDefault("server.write_timeout", 15) // seconds
	v.SetDefault("server.idle_timeout", 60)  // seconds
	v.SetDefault("server.environment", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "fleetwatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	// Kafka defaults
	v.SetDefault("kafka.brokers", "kafka:9092")
	v.SetDefault("kafka.consumer_group", "fleetwatch")
	v.SetDefault("kafka.rawdata_topic", "rawdata")
	v.SetDefault("kafka.procdata_topic", "procdata")
	v.SetDefault("kafka.security_enable", false)

	// Monitor defaults
	v.SetDefault("monitor.instance_id", "fleetwatch")
	v.SetDefault("monitor.coalesce_window_ms", 30000)
	v.SetDefault("monitor.health_eval_interval_ms", 60000)
	v.SetDefault("monitor.next_eval_margin_coef", 1.5)
	v.SetDefault("monitor.default_silence_timeout_ms", 300000)
	v.SetDefault("monitor.max_devices_per_batch", 100)
	v.SetDefault("monitor.max_assets_per_batch", 100)
	v.SetDefault("monitor.max_streams_per_batch", 200)
	v.SetDefault("monitor.max_apps_per_batch", 100)
	v.SetDefault("monitor.device_update_period_sec", 10)
	v.SetDefault("monitor.asset_update_period_sec", 10)
	v.SetDefault("monitor.stream_health_period_sec", 30)
	v.SetDefault("monitor.app_staleness_period_sec", 60)
	v.SetDefault("monitor.warning_explains_silence", false)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	// Validate database password is set
	if config.Database.Password == "" {
		// Check if it's available in environment variable
		dbPassword := os.Getenv("FLEETWATCH_DATABASE_PASSWORD")
		if dbPassword == "" {
			if config.Server.Environment != "development" {
				return fmt.Errorf("database password is required in non-development environments")
			}
		} else {
			config.Database.Password = dbPassword
		}
	}

	if config.Monitor.CoalesceWindowMS <= 0 {
		return fmt.Errorf("monitor coalesce window must be positive")
	}

	if config.Monitor.NextEvalMarginCoef < 1 {
		return fmt.Errorf("monitor next eval margin coefficient must be >= 1")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.TimeZone)
}

// IsProduction returns true if the environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if the environment is development
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if the environment is test
func (c *ServerConfig) IsTest() bool {
	return c.Environment == "test"
}
