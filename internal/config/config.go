package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration.
type Config struct {
	Server    ServerConfig
	Servers   ServersConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the RPC listener configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8565"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// ServersConfig controls server management policy and persistence paths.
type ServersConfig struct {
	// ConfigFile is the versioned JSON file holding user-added servers.
	ConfigFile string `envconfig:"SERVERS_CONFIG_FILE" default:"config.json"`
	// PredefinedFile optionally lists fleet-provisioned servers.
	PredefinedFile string `envconfig:"SERVERS_PREDEFINED_FILE" default:""`
	// WindowStateFile persists the host window bounds between runs.
	WindowStateFile string `envconfig:"WINDOW_STATE_FILE" default:"window-state.json"`
	// EnableServerManagement gates Add/Remove. The shipped build runs in
	// single-server lockdown with this disabled.
	EnableServerManagement bool `envconfig:"ENABLE_SERVER_MANAGEMENT" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds RPC rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("DESKSHELL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8565",
			Host: "127.0.0.1",
		},
		Servers: ServersConfig{
			ConfigFile:             "config.json",
			WindowStateFile:        "window-state.json",
			EnableServerManagement: false,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
