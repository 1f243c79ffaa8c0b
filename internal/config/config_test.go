package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "https://api.example.com/admin/graphql", cfg.Remote.Endpoint)
				assert.Equal(t, 5, cfg.Sync.Concurrency)
				assert.Equal(t, 4, cfg.Sync.MaxRetries)
				assert.Equal(t, "bulk-sync-service", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	// The fixture sets every sync field explicitly; defaults kick in only
	// for zero values, so exercise applyDefaults directly.
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 5, cfg.Sync.Concurrency)
	assert.Equal(t, 4, cfg.Sync.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.RetryBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Sync.RetryMaxDelay)
	assert.Equal(t, 50, cfg.Sync.MaxResultDetail)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Remote: RemoteConfig{Endpoint: "https://api.example.com/admin/graphql"},
			Sync: SyncConfig{
				Concurrency:    5,
				MaxRetries:     4,
				RetryBaseDelay: 500 * time.Millisecond,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing remote endpoint",
			mutate:    func(c *Config) { c.Remote.Endpoint = "" },
			wantErr:   true,
			errString: "remote endpoint is required",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Sync.Concurrency = 0 },
			wantErr:   true,
			errString: "sync concurrency must be greater than 0",
		},
		{
			name:      "zero max retries",
			mutate:    func(c *Config) { c.Sync.MaxRetries = 0 },
			wantErr:   true,
			errString: "sync max_retries must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
