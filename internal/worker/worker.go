package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/runner"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Ticker runs runner passes
type Ticker interface {
	Tick(ctx context.Context, sources ...domain.Source) (*runner.Report, error)
}

// Sweeper removes expired cache entries
type Sweeper interface {
	SweepCache(ctx context.Context) (int64, error)
}

// Consumer delivers runner triggers
type Consumer interface {
	Consume(ctx context.Context, consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *logger.Logger
	Runner        Ticker
	Sweeper       Sweeper
	Consumer      Consumer
	WorkerID      string
	Concurrency   int
	TickInterval  time.Duration
	SweepInterval time.Duration
}

// tickRequest is one runner pass waiting for a pool goroutine
type tickRequest struct {
	sources []domain.Source
	origin  string
	done    func(err error)
}

// Worker drives runner ticks from triggers and a fixed interval
type Worker struct {
	logger        *logger.Logger
	runner        Ticker
	sweeper       Sweeper
	consumer      Consumer
	workerID      string
	concurrency   int
	tickInterval  time.Duration
	sweepInterval time.Duration

	ticksChan chan *tickRequest
	wg        sync.WaitGroup
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := max(cfg.Concurrency, 1)
	return &Worker{
		logger:        cfg.Logger.Component("worker"),
		runner:        cfg.Runner,
		sweeper:       cfg.Sweeper,
		consumer:      cfg.Consumer,
		workerID:      cfg.WorkerID,
		concurrency:   concurrency,
		tickInterval:  cfg.TickInterval,
		sweepInterval: cfg.SweepInterval,
		ticksChan:     make(chan *tickRequest, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the worker until ctx is canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("tick_interval", w.tickInterval),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.spawnWorkerPool(ctx)

	if w.consumer != nil {
		deliveries, err := w.setupConsumer(ctx)
		if err != nil {
			cancel()
			w.wg.Wait()
			return fmt.Errorf("failed to setup consumer: %w", err)
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	if w.tickInterval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runScheduler(ctx)
		}()
	}

	if w.sweeper != nil && w.sweepInterval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runSweeper(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, waiting for running ticks...")
	w.wg.Wait()
	w.logger.Info("Worker stopped")
	return nil
}

// Stop asks a running worker to finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
