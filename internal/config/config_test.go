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
			t.Setenv("MIGRATOR_DB_PASSWORD", "s3cret")
			t.Setenv("MIGRATOR_RUNNER_TOKEN", "tick-token")

			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "s3cret", cfg.Database.Password)
				assert.Equal(t, "migrator_db", cfg.Database.Database)
				assert.Equal(t, "migrator_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "runner_triggers", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "tick-token", cfg.Runner.Token)
				assert.Equal(t, 25, cfg.Runner.BatchSize)
				assert.Equal(t, 2*time.Minute, cfg.Runner.VisibilityTimeout)
				assert.Equal(t, "basic", cfg.Destination.AuthMode)
				assert.Equal(t, 8, cfg.Destination.MaxImages)
				assert.Equal(t, "catalog-migrator", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/memory.yaml")
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Runner.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Runner.Budget)
	assert.Equal(t, 60*time.Second, cfg.Runner.MessageTimeout)
	assert.Equal(t, cfg.Runner.VisibilityTimeout, cfg.Runner.ClaimLease)
	assert.Equal(t, 20*time.Second, cfg.Destination.Timeout)
	assert.Equal(t, 2, cfg.Destination.RetryCount)
	assert.Equal(t, "wp-json/wc/v3", cfg.Destination.APIPrefix)
	assert.Equal(t, []string{"webp", "avif"}, cfg.Destination.ProxyFormats)
	assert.Equal(t, 7*24*time.Hour, cfg.Extractor.CacheTTL)
	assert.Equal(t, 300, cfg.Enqueue.BatchSize)
	assert.Equal(t, 1000, cfg.Enqueue.DefaultCap)
	assert.Equal(t, 5000, cfg.Enqueue.MaxCap)
	assert.Equal(t, "runner:lock:", cfg.Redis.KeyPrefix)

	require.NoError(t, cfg.ValidateAPIConfig())
	require.NoError(t, cfg.ValidateWorkerConfig())
}

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "migrator_db",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    5672,
			Exchange: ExchangeConfig{
				Name: "migrator_exchange",
			},
			Queue: QueueConfig{
				Name: "runner_triggers",
			},
		},
		Runner: RunnerConfig{Token: "secret"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing runner token",
			mutate:    func(c *Config) { c.Runner.Token = "" },
			wantErr:   true,
			errString: "runner token is required",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "memory driver ignores database settings",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverMemory}
			},
			wantErr: false,
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			wantErr:   true,
			errString: "unsupported database driver",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq disabled skips broker settings",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{Enabled: false}
			},
			wantErr: false,
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name: "visibility timeout shorter than message timeout",
			mutate: func(c *Config) {
				c.Runner.VisibilityTimeout = 10 * time.Second
				c.Runner.MessageTimeout = 60 * time.Second
			},
			wantErr:   true,
			errString: "visibility_timeout",
		},
		{
			name:      "unknown auth mode",
			mutate:    func(c *Config) { c.Destination.AuthMode = "oauth1" },
			wantErr:   true,
			errString: "unsupported destination auth_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateWorkerConfig())

	cfg.Worker.Concurrency = 0
	err := cfg.ValidateWorkerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker concurrency must be greater than 0")

	cfg = validConfig()
	cfg.Runner.MaxAttempts = -1
	err = cfg.ValidateWorkerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		t.Setenv("MIGRATOR_RUNNER_TOKEN", "tick-token")

		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
