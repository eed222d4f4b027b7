// Package bootstrap builds the components shared by the api and worker services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/api/handler"
	"github.com/cuongbtq/catalog-migrator/internal/config"
	"github.com/cuongbtq/catalog-migrator/internal/discovery"
	"github.com/cuongbtq/catalog-migrator/internal/enqueue"
	"github.com/cuongbtq/catalog-migrator/internal/extract"
	"github.com/cuongbtq/catalog-migrator/internal/ledger"
	"github.com/cuongbtq/catalog-migrator/internal/lock"
	"github.com/cuongbtq/catalog-migrator/internal/processor"
	"github.com/cuongbtq/catalog-migrator/internal/queue"
	"github.com/cuongbtq/catalog-migrator/internal/runner"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/internal/trigger"
	"github.com/cuongbtq/catalog-migrator/internal/woo"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
	"github.com/cuongbtq/catalog-migrator/shared/postgresql"
	"github.com/cuongbtq/catalog-migrator/shared/rabbitmq"
)

// Options selects service specific wiring
type Options struct {
	// ConsumeTriggers declares and binds the trigger queue for consuming
	ConsumeTriggers bool
}

// App holds the wired components of a service
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     storage.Store
	Queue     queue.Queue
	Locker    lock.Locker
	Rabbit    *rabbitmq.Client
	Extractor *extract.Service
	Enqueuer  *enqueue.Enqueuer
	Runner    *runner.Runner

	// HealthChecks pings every connection opened by New
	HealthChecks map[string]handler.HealthCheck

	closers []func() error
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   timeFormat,
	})
}

// New connects the backing services and wires the domain components.
// On error every connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: log, HealthChecks: make(map[string]handler.HealthCheck)}
	if err := app.connect(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}

	app.wire()
	return app, nil
}

func (a *App) connect(ctx context.Context, opts Options) error {
	if err := a.initStorage(ctx); err != nil {
		return err
	}
	if err := a.initLocker(ctx); err != nil {
		return err
	}
	if a.Config.RabbitMQ.Enabled {
		return a.initRabbitMQ(opts)
	}
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	if a.Config.Database.Driver == config.DriverMemory {
		a.Store = storage.NewMemory()
		a.Queue = queue.NewMemory()
		a.Logger.Warn("Using in-memory storage, state is lost on restart")
		return nil
	}

	db := &a.Config.Database
	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, a.Logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, dbClient.Close)
	a.HealthChecks["database"] = dbClient.HealthCheck

	if db.AutoMigrate {
		if err := dbClient.Migrate(ctx, storage.Schema); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		a.Logger.Info("Database schema applied")
	}

	a.Store = storage.NewPostgres(dbClient.GetDB(), a.Logger.Logger)
	a.Queue = queue.NewPostgres(dbClient.GetDB())
	a.Logger.Info("Database connection established")
	return nil
}

func (a *App) initLocker(ctx context.Context) error {
	rc := &a.Config.Redis
	if rc.URL == "" {
		a.Locker = lock.NewLocal()
		a.Logger.Warn("Redis not configured, runner locks are process-local")
		return nil
	}

	locker, err := lock.NewRedis(rc.URL, rc.KeyPrefix)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, locker.Close)

	if err := locker.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	a.Locker = locker
	a.HealthChecks["redis"] = locker.Ping
	a.Logger.Info("Redis connection established")
	return nil
}

func (a *App) initRabbitMQ(opts Options) error {
	rc := &a.Config.RabbitMQ
	rabbitConfig := &rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		PublishRetries:     rc.Publish.RetryAttempts,
		PublishRetryDelay:  rc.Publish.RetryInterval,
		PublishBackoffMult: rc.Publish.BackoffMultiplier,
	}
	if opts.ConsumeTriggers {
		rabbitConfig.QueueName = rc.Queue.Name
		rabbitConfig.QueueDurable = rc.Queue.Durable
		rabbitConfig.QueueAutoDelete = rc.Queue.AutoDelete
		rabbitConfig.QueueExclusive = rc.Queue.Exclusive
		rabbitConfig.BindingKey = trigger.BindingKey
		if rc.BindingKey != "" {
			rabbitConfig.BindingKey = rc.BindingKey
		}
		rabbitConfig.PrefetchCount = rc.Consumer.PrefetchCount
	}

	client, err := rabbitmq.NewClient(rabbitConfig, a.Logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.Rabbit = client
	a.HealthChecks["rabbitmq"] = func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("rabbitmq channel is closed")
		}
		return nil
	}
	a.Logger.Info("RabbitMQ connection established")
	return nil
}

// wire builds the domain components on top of the connections
func (a *App) wire() {
	cfg := a.Config
	log := a.Logger

	fetcher := extract.NewHTTPFetcher(cfg.Extractor.Timeout, cfg.Extractor.RetryCount, cfg.Extractor.UserAgent)
	a.Extractor = extract.NewService(fetcher, a.Store, cfg.Extractor.CacheTTL, log)

	clients := woo.NewFactory(woo.Config{
		Timeout:    cfg.Destination.Timeout,
		RetryCount: cfg.Destination.RetryCount,
		RetryWait:  cfg.Destination.RetryWait,
		AuthMode:   cfg.Destination.AuthMode,
		APIPrefix:  cfg.Destination.APIPrefix,
		UserAgent:  cfg.Extractor.UserAgent,
	}, log)
	registry := processor.NewDefaultRegistry(a.Extractor, clients, processor.Config{
		MaxImages:    cfg.Destination.MaxImages,
		ImageProxy:   cfg.Destination.ImageProxy,
		ProxyFormats: cfg.Destination.ProxyFormats,
	}, log)

	rc := cfg.Runner
	a.Runner = runner.New(a.Queue, a.Store, ledger.New(a.Store, rc.ClaimLease, log), registry, a.Locker, runner.Config{
		BatchSize:         rc.BatchSize,
		VisibilityTimeout: rc.VisibilityTimeout,
		Budget:            rc.Budget,
		MessageTimeout:    rc.MessageTimeout,
		MaxAttempts:       rc.MaxAttempts,
		RetryBackoff:      rc.RetryBackoff,
		MaxTenantGroups:   rc.MaxTenantGroups,
		BacklogWarning:    rc.BacklogWarning,
	}, log)

	var notifier enqueue.Notifier
	if a.Rabbit != nil {
		notifier = trigger.NewPublisher(a.Rabbit, log)
	}
	discoverer := discovery.New(cfg.Extractor.Timeout, cfg.Extractor.UserAgent, cfg.Enqueue.DiscoveryPages, log)
	a.Enqueuer = enqueue.New(a.Queue, a.Store, discoverer, notifier, enqueue.Config{
		BatchSize:  cfg.Enqueue.BatchSize,
		DefaultCap: cfg.Enqueue.DefaultCap,
		MaxCap:     cfg.Enqueue.MaxCap,
	}, log)
}

// Close releases every connection in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Failed to close resource", slog.Any("error", err))
		}
	}
	a.closers = nil
}
