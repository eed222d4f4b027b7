package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/catalog-migrator/internal/api/handler"
	"github.com/cuongbtq/catalog-migrator/internal/api/router"
	"github.com/cuongbtq/catalog-migrator/internal/bootstrap"
	"github.com/cuongbtq/catalog-migrator/internal/config"
	"github.com/cuongbtq/catalog-migrator/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("driver", cfg.Database.Driver),
	)

	app, err := bootstrap.New(context.Background(), cfg, appLogger, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:       appLogger,
		Store:        app.Store,
		Enqueuer:     app.Enqueuer,
		Runner:       app.Runner,
		RunnerToken:  cfg.Runner.Token,
		HealthChecks: app.HealthChecks,
	})

	// the memory queue lives in this process, so nothing else can drain it
	if cfg.Database.Driver == config.DriverMemory {
		embedded := worker.NewWorker(&worker.Config{
			Logger:        appLogger,
			Runner:        app.Runner,
			Sweeper:       app.Extractor,
			WorkerID:      "embedded",
			Concurrency:   cfg.Worker.Concurrency,
			TickInterval:  cfg.Worker.TickInterval,
			SweepInterval: cfg.Worker.CacheSweepInterval,
		})
		workerCtx, stopWorker := context.WithCancel(context.Background())
		defer stopWorker()
		go func() {
			if err := embedded.Start(workerCtx); err != nil {
				appLogger.Error("Embedded worker failed", slog.Any("error", err))
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running", slog.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = cfg.Worker.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
