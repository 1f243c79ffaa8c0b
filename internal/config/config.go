package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
	App     AppConfig     `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RemoteConfig holds the remote API endpoint configuration
type RemoteConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SyncConfig holds batch orchestration configuration
type SyncConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	MaxResultDetail int           `yaml:"max_result_detail"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// Access token comes from the environment when not set in the file
	if config.Remote.AccessToken == "" {
		config.Remote.AccessToken = os.Getenv("REMOTE_ACCESS_TOKEN")
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 5
	}
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 4
	}
	if c.Sync.RetryBaseDelay == 0 {
		c.Sync.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.Sync.RetryMaxDelay == 0 {
		c.Sync.RetryMaxDelay = 10 * time.Second
	}
	if c.Sync.MaxResultDetail == 0 {
		c.Sync.MaxResultDetail = 50
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote endpoint is required")
	}

	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync concurrency must be greater than 0")
	}

	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync max_retries must be greater than 0")
	}

	if c.Sync.RetryBaseDelay <= 0 {
		return fmt.Errorf("sync retry_base_delay must be greater than 0")
	}

	return nil
}
