// Package config provides centralized configuration management for the
// blumbike server
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete blumbike configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Particle ParticleConfig `yaml:"particle" mapstructure:"particle"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains the HTTP listener settings
type ServerConfig struct {
	// Listen is the host:port to bind. Dev mode defaults to loopback
	Listen string `yaml:"listen" mapstructure:"listen"`
	// Mode is "dev" for local development: loopback binding, debug
	// logging, and the control-panel authorization override
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// RedisConfig contains the store connection settings
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
	// ConnectRetries is how many times the startup ping is retried
	ConnectRetries int `yaml:"connect_retries" mapstructure:"connect_retries"`
	// ConnectRetryTime seeds the backoff between retries
	ConnectRetryTime string `yaml:"connect_retry_time" mapstructure:"connect_retry_time"`
}

// AuthConfig contains the shared secrets
type AuthConfig struct {
	// APIKey is the shared secret the Particle webhook must present
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	// SecretKey signs browser sessions in the web layer
	SecretKey string `yaml:"secret_key,omitempty" mapstructure:"secret_key"`
}

// ParticleConfig contains the device command dispatch credentials. Both
// fields empty means resistance control is disabled.
type ParticleConfig struct {
	DeviceID string `yaml:"device_id,omitempty" mapstructure:"device_id"`
	Token    string `yaml:"token,omitempty" mapstructure:"token"`
	BaseURL  string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// IngestConfig tunes the ingestion policy
type IngestConfig struct {
	// SettleDelay is the pause after committing a session end
	SettleDelay string `yaml:"settle_delay" mapstructure:"settle_delay"`
	// LegacyTrim caps the sample lists fed by the legacy /append route
	LegacyTrim int64 `yaml:"legacy_trim" mapstructure:"legacy_trim"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// File, when set, receives a JSON copy of the logs
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "0.0.0.0:8050",
		},
		Redis: RedisConfig{
			URL:              "redis://localhost:6379",
			ConnectRetries:   5,
			ConnectRetryTime: "2s",
		},
		Ingest: IngestConfig{
			SettleDelay: "100ms",
			LegacyTrim:  300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevMode reports whether local development overrides are on
func (c *Config) DevMode() bool {
	return c.Server.Mode == "dev"
}

// SettleDelay parses the configured settle delay
func (c *Config) SettleDelay() (time.Duration, error) {
	return time.ParseDuration(c.Ingest.SettleDelay)
}

// ConnectRetryTime parses the configured redis retry seed
func (c *Config) ConnectRetryTime() (time.Duration, error) {
	return time.ParseDuration(c.Redis.ConnectRetryTime)
}

// Manager handles configuration loading, validation, and management
type Manager struct {
	config     *Config
	configPath string
	viper      *viper.Viper
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
		viper:  viper.New(),
	}
}

// LoadConfig loads configuration from file and environment variables
func (m *Manager) LoadConfig(configPath string) error {
	m.configPath = configPath

	m.viper.SetConfigType("yaml")
	m.viper.SetEnvPrefix("BLUMBIKE")
	m.viper.AutomaticEnv()

	m.setDefaults()
	m.bindLegacyEnv()

	if configPath != "" {
		m.viper.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		home, err := os.UserHomeDir()
		if err == nil {
			m.viper.AddConfigPath(home)
			m.viper.AddConfigPath(filepath.Join(home, ".config", "blumbike"))
		}
		m.viper.AddConfigPath(".")
		m.viper.SetConfigName(".blumbike")
	}

	// Read config file (ignore if not found)
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := m.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func (m *Manager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.listen", defaults.Server.Listen)
	m.viper.SetDefault("redis.url", defaults.Redis.URL)
	m.viper.SetDefault("redis.connect_retries", defaults.Redis.ConnectRetries)
	m.viper.SetDefault("redis.connect_retry_time", defaults.Redis.ConnectRetryTime)
	m.viper.SetDefault("ingest.settle_delay", defaults.Ingest.SettleDelay)
	m.viper.SetDefault("ingest.legacy_trim", defaults.Ingest.LegacyTrim)
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
}

// bindLegacyEnv maps the environment names the original deployment used
// (Heroku-style, no prefix) onto viper keys
func (m *Manager) bindLegacyEnv() {
	bindings := map[string]string{
		"redis.url":          "REDIS_URL",
		"auth.api_key":       "apikey",
		"auth.secret_key":    "SECRET_KEY",
		"particle.device_id": "PARTICLE_ID",
		"particle.token":     "PARTICLE_TOKEN",
		"server.mode":        "mode",
	}
	for key, env := range bindings {
		// BindEnv only errors on empty input
		_ = m.viper.BindEnv(key, env)
	}
}

func (m *Manager) validateConfig() error {
	if m.config.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if m.config.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}

	if _, err := m.config.SettleDelay(); err != nil {
		return fmt.Errorf("invalid ingest.settle_delay: %w", err)
	}
	if _, err := m.config.ConnectRetryTime(); err != nil {
		return fmt.Errorf("invalid redis.connect_retry_time: %w", err)
	}
	if m.config.Ingest.LegacyTrim < 0 {
		return fmt.Errorf("ingest.legacy_trim must not be negative")
	}

	// Particle credentials come as a pair or not at all
	if (m.config.Particle.DeviceID == "") != (m.config.Particle.Token == "") {
		return fmt.Errorf("particle.device_id and particle.token must be set together")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[m.config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", m.config.Logging.Level)
	}

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// SaveConfig saves the current configuration to file
func (m *Manager) SaveConfig(path string) error {
	if path == "" {
		if m.configPath != "" {
			path = m.configPath
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			path = filepath.Join(home, ".blumbike.yaml")
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	m.configPath = path
	return nil
}
