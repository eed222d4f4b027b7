package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/enqueue"
	"github.com/cuongbtq/catalog-migrator/internal/runner"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// UserIDKey is the gin context key holding the tenant of the request
const UserIDKey = "user_id"

// Store is the persistence read by the handlers
type Store interface {
	storage.JobStore
	storage.LogStore
	storage.DestinationStore
	ListResults(ctx context.Context, filter storage.ResultFilter) ([]domain.Result, error)
	CountResults(ctx context.Context, requestID string) (domain.ResultCounts, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, req enqueue.Request) (*domain.Job, error)
	Preview(ctx context.Context, req enqueue.Request) ([]string, error)
}

type Runner interface {
	Tick(ctx context.Context, sources ...domain.Source) (*runner.Report, error)
	Cancel(ctx context.Context, userID, requestID string) (*domain.Job, error)
	Stats(ctx context.Context, requestID string) (*runner.Stats, error)
}

// HealthCheck pings one backing service
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *logger.Logger
	Store        Store
	Enqueuer     Enqueuer
	Runner       Runner
	RunnerToken  string
	HealthChecks map[string]HealthCheck
}

// ImportHandler handles migration request endpoints
type ImportHandler struct {
	logger   *logger.Logger
	store    Store
	enqueuer Enqueuer
	runner   Runner
}

// NewImportHandler creates a new ImportHandler instance
func NewImportHandler(deps *Dependencies) *ImportHandler {
	return &ImportHandler{
		logger:   deps.Logger.Component("import-handler"),
		store:    deps.Store,
		enqueuer: deps.Enqueuer,
		runner:   deps.Runner,
	}
}

// DestinationHandler handles tenant destination credentials
type DestinationHandler struct {
	logger *logger.Logger
	store  Store
}

func NewDestinationHandler(deps *Dependencies) *DestinationHandler {
	return &DestinationHandler{
		logger: deps.Logger.Component("destination-handler"),
		store:  deps.Store,
	}
}

// RunnerHandler exposes runner ticks and queue stats to operators and schedulers
type RunnerHandler struct {
	logger *logger.Logger
	runner Runner
}

func NewRunnerHandler(deps *Dependencies) *RunnerHandler {
	return &RunnerHandler{
		logger: deps.Logger.Component("runner-handler"),
		runner: deps.Runner,
	}
}

// userID returns the tenant set by the user middleware
func userID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
