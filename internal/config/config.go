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

	// DriverPostgres stores jobs, ledger and queue in PostgreSQL
	DriverPostgres = "postgres"
	// DriverMemory keeps everything in process memory, for local runs
	DriverMemory = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Worker      WorkerConfig      `yaml:"worker"`
	Runner      RunnerConfig      `yaml:"runner"`
	Destination DestinationConfig `yaml:"destination"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Enqueue     EnqueueConfig     `yaml:"enqueue"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	BindingKey string           `yaml:"binding_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// RedisConfig holds the connection used for runner locks.
// An empty URL falls back to an in-process lock.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// RunnerConfig controls one poll-and-process pass
type RunnerConfig struct {
	Token             string        `yaml:"token"`
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	Budget            time.Duration `yaml:"budget"`
	MessageTimeout    time.Duration `yaml:"message_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	MaxTenantGroups   int           `yaml:"max_tenant_groups"`
	ClaimLease        time.Duration `yaml:"claim_lease"`
	BacklogWarning    int64         `yaml:"backlog_warning"`
}

// DestinationConfig controls the destination REST client
type DestinationConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryWait    time.Duration `yaml:"retry_wait"`
	AuthMode     string        `yaml:"auth_mode"`
	APIPrefix    string        `yaml:"api_prefix"`
	MaxImages    int           `yaml:"max_images"`
	ImageProxy   string        `yaml:"image_proxy"`
	ProxyFormats []string      `yaml:"proxy_formats"`
}

// ExtractorConfig controls source fetching and the normalize cache
type ExtractorConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	UserAgent  string        `yaml:"user_agent"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// EnqueueConfig controls how requests become queue messages
type EnqueueConfig struct {
	BatchSize      int `yaml:"batch_size"`
	DefaultCap     int `yaml:"default_cap"`
	MaxCap         int `yaml:"max_cap"`
	DiscoveryPages int `yaml:"discovery_pages"`
}

// Load reads and parses the configuration file.
// ${VAR} references are expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "runner:lock:"
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.TickInterval == 0 {
		c.Worker.TickInterval = time.Minute
	}
	if c.Worker.CacheSweepInterval == 0 {
		c.Worker.CacheSweepInterval = time.Hour
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	r := &c.Runner
	if r.BatchSize == 0 {
		r.BatchSize = 20
	}
	if r.VisibilityTimeout == 0 {
		r.VisibilityTimeout = 120 * time.Second
	}
	if r.Budget == 0 {
		r.Budget = 90 * time.Second
	}
	if r.MessageTimeout == 0 {
		r.MessageTimeout = 60 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.RetryBackoff == 0 {
		r.RetryBackoff = 30 * time.Second
	}
	if r.MaxTenantGroups == 0 {
		r.MaxTenantGroups = 8
	}
	if r.ClaimLease == 0 {
		r.ClaimLease = r.VisibilityTimeout
	}
	if r.BacklogWarning == 0 {
		r.BacklogWarning = 1000
	}

	d := &c.Destination
	if d.Timeout == 0 {
		d.Timeout = 20 * time.Second
	}
	if d.RetryCount == 0 {
		d.RetryCount = 2
	}
	if d.RetryWait == 0 {
		d.RetryWait = time.Second
	}
	if d.AuthMode == "" {
		d.AuthMode = "query"
	}
	if d.APIPrefix == "" {
		d.APIPrefix = "wp-json/wc/v3"
	}
	if d.MaxImages == 0 {
		d.MaxImages = 10
	}
	if d.ImageProxy == "" {
		d.ImageProxy = "https://wsrv.nl/?output=jpg&url=%s"
	}
	if len(d.ProxyFormats) == 0 {
		d.ProxyFormats = []string{"webp", "avif"}
	}

	if c.Extractor.Timeout == 0 {
		c.Extractor.Timeout = 20 * time.Second
	}
	if c.Extractor.RetryCount == 0 {
		c.Extractor.RetryCount = 2
	}
	if c.Extractor.CacheTTL == 0 {
		c.Extractor.CacheTTL = 7 * 24 * time.Hour
	}

	if c.Enqueue.BatchSize == 0 {
		c.Enqueue.BatchSize = 300
	}
	if c.Enqueue.DefaultCap == 0 {
		c.Enqueue.DefaultCap = 1000
	}
	if c.Enqueue.MaxCap == 0 {
		c.Enqueue.MaxCap = 5000
	}
	if c.Enqueue.DiscoveryPages == 0 {
		c.Enqueue.DiscoveryPages = 20
	}
}

func (c *Config) validateCommon() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, "":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}

		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	}

	if c.Runner.BatchSize <= 0 {
		return fmt.Errorf("runner batch_size must be greater than 0")
	}

	if c.Runner.MaxAttempts <= 0 {
		return fmt.Errorf("runner max_attempts must be greater than 0")
	}

	if c.Runner.MessageTimeout <= 0 || c.Runner.Budget <= 0 {
		return fmt.Errorf("runner budget and message_timeout must be greater than 0")
	}

	if c.Runner.VisibilityTimeout < c.Runner.MessageTimeout {
		return fmt.Errorf("runner visibility_timeout (%s) must not be shorter than message_timeout (%s)",
			c.Runner.VisibilityTimeout, c.Runner.MessageTimeout)
	}

	switch c.Destination.AuthMode {
	case "query", "basic":
	default:
		return fmt.Errorf("unsupported destination auth_mode: %q", c.Destination.AuthMode)
	}

	if c.Enqueue.MaxCap < c.Enqueue.DefaultCap {
		return fmt.Errorf("enqueue max_cap must be at least default_cap")
	}

	return nil
}

// ValidateAPIConfig checks the settings required by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Runner.Token == "" {
		return fmt.Errorf("runner token is required")
	}

	return c.validateCommon()
}

// ValidateWorkerConfig checks the settings required by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.TickInterval <= 0 {
		return fmt.Errorf("worker tick_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.validateCommon()
}
