package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Env      string         `yaml:"env" envconfig:"ENV" default:"development"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"4000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig contains customer store configuration.
// ConnectTimeout bounds the startup connectivity probe; QueryTimeout bounds
// individual gateway operations so a wedged store surfaces as
// service_unavailable instead of a hung request.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn" envconfig:"DSN" default:"seraphix.db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" default:"5s"`
	QueryTimeout   time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT" default:"45s"`
	MaxOpenConns   int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"10"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
// KeyRequestsPerSecond is the per-client fixed-window ceiling on the public
// key endpoints; RPS/Burst drive the optional server-wide limiter.
type RateLimitConfig struct {
	Enabled              bool          `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	RPS                  float64       `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst                int           `yaml:"burst" envconfig:"BURST" default:"50"`
	KeyRequestsPerSecond int           `yaml:"key_requests_per_second" envconfig:"KEY_REQUESTS_PER_SECOND" default:"5"`
	WindowEviction       time.Duration `yaml:"window_eviction" envconfig:"WINDOW_EVICTION" default:"2s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/seraphix.log"`
}

// Load loads configuration from environment variables and an optional
// YAML config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SERAPHIX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// merge merges file config with env config (env takes precedence)
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Database.DSN == "" {
		envCfg.Database.DSN = fileCfg.Database.DSN
	}
	if envCfg.Security.RateLimit.KeyRequestsPerSecond == 0 {
		envCfg.Security.RateLimit.KeyRequestsPerSecond = fileCfg.Security.RateLimit.KeyRequestsPerSecond
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	return envCfg
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn must not be empty")
	}
	if c.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("database connect timeout must be positive")
	}
	if c.Security.RateLimit.KeyRequestsPerSecond <= 0 {
		return fmt.Errorf("key requests per second must be positive")
	}
	if c.Security.RateLimit.WindowEviction < time.Second {
		return fmt.Errorf("window eviction must be at least one second")
	}
	return nil
}

// findConfigFile returns the path to the config file, if one exists
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:            "seraphix.db",
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   45 * time.Second,
			MaxOpenConns:   10,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:              false,
				RPS:                  100,
				Burst:                50,
				KeyRequestsPerSecond: 5,
				WindowEviction:       2 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Env: "development",
	}
}
