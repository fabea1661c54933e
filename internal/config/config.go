package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Keycloak   KeycloakConfig
	Redis      RedisConfig
	Monitoring MonitoringConfig
	Datasets   DatasetConfig
	Ingest     IngestConfig
	Streaming  StreamingConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	AppDB PostgresConfig `mapstructure:"postgres_app"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MonitoringConfig struct {
	PrometheusPort     int    `mapstructure:"prometheus_port"`
	LogLevel           string `mapstructure:"log_level"`
	PrometheusEndpoint string `mapstructure:"prometheus_endpoint"`
	LokiEndpoint       string `mapstructure:"loki_endpoint"`
}

// DatasetConfig controls where the recorded CSV datasets are loaded
// from. An empty BasePath falls back to the datasets bundled into the
// binary.
type DatasetConfig struct {
	BasePath string `mapstructure:"base_path"`
}

type IngestConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StreamingConfig tunes the virtual-device scheduler.
type StreamingConfig struct {
	CronSecret            string        `mapstructure:"cron_secret"`
	FailureThreshold      int           `mapstructure:"failure_threshold"`
	AlertThresholdMinutes int           `mapstructure:"alert_threshold_minutes"`
	SessionLockTTL        time.Duration `mapstructure:"session_lock_ttl"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("AQUAHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.postgres_app.sslmode", "disable")

	// Redis defaults
	viper.SetDefault("redis.db", 0)

	// Monitoring defaults
	viper.SetDefault("monitoring.prometheus_port", 9090)
	viper.SetDefault("monitoring.log_level", "info")
	viper.SetDefault("monitoring.prometheus_endpoint", "http://localhost:9090")
	viper.SetDefault("monitoring.loki_endpoint", "http://localhost:3100")

	// Ingestion defaults; sends are bounded short, connectivity tests longer
	viper.SetDefault("ingest.send_timeout", "10s")
	viper.SetDefault("ingest.connect_timeout", "30s")

	// Streaming defaults
	viper.SetDefault("streaming.failure_threshold", 10)
	viper.SetDefault("streaming.alert_threshold_minutes", 360)
	viper.SetDefault("streaming.session_lock_ttl", "4m")
}

func validateConfig(config *Config) error {
	if config.Database.AppDB.Host == "" {
		return fmt.Errorf("postgres app host is required")
	}
	if config.Keycloak.URL == "" {
		return fmt.Errorf("keycloak URL is required")
	}
	if config.Ingest.BaseURL == "" {
		return fmt.Errorf("ingest base URL is required")
	}
	if config.Streaming.CronSecret == "" {
		return fmt.Errorf("streaming cron secret is required")
	}
	if config.Streaming.FailureThreshold <= 0 {
		return fmt.Errorf("streaming failure threshold must be positive")
	}
	return nil
}
