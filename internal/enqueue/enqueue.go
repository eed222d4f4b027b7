// Package enqueue turns a migration request into a job and one queue
// message per distinct item.
package enqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/catalog-migrator/internal/discovery"
	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/queue"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Mode selects how items are enumerated
type Mode string

const (
	// ModeAll crawls the store for product pages
	ModeAll Mode = "all"
	// ModeLinks enqueues the supplied links only
	ModeLinks Mode = "links"
)

// Request is a user's migration request
type Request struct {
	UserID     string
	Source     domain.Source
	Mode       Mode
	BaseURL    string
	Links      []string
	Cap        int
	Categories []string
	Tags       []string
	Priority   bool
}

// Discoverer enumerates item references of a store
type Discoverer interface {
	Discover(ctx context.Context, src domain.Source, baseURL string, limit int) ([]string, error)
}

// Notifier wakes the runner after new work is queued
type Notifier interface {
	NotifyRunner(ctx context.Context, src domain.Source) error
}

// Store is the persistence the enqueuer needs
type Store interface {
	storage.JobStore
	storage.LogStore
}

type Config struct {
	BatchSize  int
	DefaultCap int
	MaxCap     int
}

type Enqueuer struct {
	queue      queue.Queue
	store      Store
	discoverer Discoverer
	notifier   Notifier
	cfg        Config
	newID      func() string
	now        func() time.Time
	logger     *logger.Logger
}

// New creates an enqueuer. notifier may be nil.
func New(q queue.Queue, store Store, discoverer Discoverer, notifier Notifier, cfg Config, log *logger.Logger) *Enqueuer {
	return &Enqueuer{
		queue:      q,
		store:      store,
		discoverer: discoverer,
		notifier:   notifier,
		cfg:        cfg,
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     log.Component("enqueue"),
	}
}

// Enqueue creates a queued job for req and sends its items to the source
// lane. Delivery is at-least-once; duplicates are absorbed by the ledger.
func (e *Enqueuer) Enqueue(ctx context.Context, req Request) (*domain.Job, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	limit := e.clampCap(req.Cap)
	refs, err := e.resolve(ctx, req, limit)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, domain.ErrNoItems
	}

	now := e.now()
	job := &domain.Job{
		RequestID: e.newID(),
		UserID:    req.UserID,
		Source:    req.Source,
		Total:     len(refs),
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	lane := domain.LaneNormal
	if req.Priority {
		lane = domain.LaneHigh
	}
	queueName := domain.QueueName(req.Source, lane)

	messages := make([]domain.ItemMessage, 0, len(refs))
	for _, ref := range refs {
		messages = append(messages, domain.ItemMessage{
			UserID:        req.UserID,
			RequestID:     job.RequestID,
			Source:        req.Source,
			ItemRef:       ref,
			BaseURL:       req.BaseURL,
			CategoryHints: req.Categories,
			TagHints:      req.Tags,
		})
	}

	for start := 0; start < len(messages); start += e.batchSize() {
		end := min(start+e.batchSize(), len(messages))
		if _, err := e.queue.SendBatch(ctx, queueName, messages[start:end]); err != nil {
			err = fmt.Errorf("send batch %d-%d to %s: %w", start, end, queueName, err)
			e.abandon(context.WithoutCancel(ctx), job, start, err)
			return nil, err
		}
	}

	e.appendLog(ctx, job, domain.LogLevelInfo, fmt.Sprintf("queued %d items on %s", job.Total, queueName))

	e.logger.Info("Job enqueued",
		slog.String("request_id", job.RequestID),
		slog.String("user_id", job.UserID),
		slog.String("source", job.Source.String()),
		slog.String("queue", queueName),
		slog.Int("total", job.Total),
	)

	if e.notifier != nil {
		if err := e.notifier.NotifyRunner(ctx, req.Source); err != nil {
			e.logger.Warn("Failed to notify runner", slog.String("source", req.Source.String()), slog.Any("error", err))
		}
	}

	return job, nil
}

const (
	// DefaultPreviewCap bounds a discovery preview when the caller sets no cap
	DefaultPreviewCap = 1000
	// MaxPreviewCap is the largest cap a discovery preview accepts
	MaxPreviewCap = 5000
)

// Preview crawls the store the way an "all" import would and returns the
// item references it found. Nothing is queued and no job is created.
func (e *Enqueuer) Preview(ctx context.Context, req Request) ([]string, error) {
	req.Mode = ModeAll
	if err := e.validate(req); err != nil {
		return nil, err
	}

	limit := req.Cap
	if limit <= 0 {
		limit = DefaultPreviewCap
	}
	limit = min(limit, MaxPreviewCap)

	refs, err := e.resolve(ctx, req, limit)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Discovery previewed",
		slog.String("user_id", req.UserID),
		slog.String("source", req.Source.String()),
		slog.Int("found", len(refs)),
	)
	return refs, nil
}

func (e *Enqueuer) validate(req Request) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	case !req.Source.Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidSource, req.Source)
	case req.Mode != ModeAll && req.Mode != ModeLinks:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, req.Mode)
	case req.Mode == ModeAll && strings.TrimSpace(req.BaseURL) == "":
		return fmt.Errorf("%w: base url is required in %s mode", domain.ErrInvalidRequest, ModeAll)
	case req.Source == domain.SourceShopify && strings.TrimSpace(req.BaseURL) == "":
		return fmt.Errorf("%w: base url is required for %s", domain.ErrInvalidRequest, domain.SourceShopify)
	}
	return nil
}

func (e *Enqueuer) resolve(ctx context.Context, req Request, limit int) ([]string, error) {
	raw := req.Links
	if req.Mode == ModeAll {
		found, err := e.discoverer.Discover(ctx, req.Source, req.BaseURL, limit)
		if err != nil {
			return nil, fmt.Errorf("discover items: %w", err)
		}
		raw = found
	}

	seen := make(map[string]bool, len(raw))
	refs := make([]string, 0, len(raw))
	for _, link := range raw {
		ref, ok := discovery.ItemRef(req.Source, req.BaseURL, link)
		if !ok {
			continue
		}
		key := domain.ItemMessage{Source: req.Source, ItemRef: ref}.ItemKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, ref)
		if limit > 0 && len(refs) >= limit {
			break
		}
	}
	return refs, nil
}

func (e *Enqueuer) clampCap(requested int) int {
	if requested <= 0 {
		requested = e.cfg.DefaultCap
	}
	if e.cfg.MaxCap > 0 && requested > e.cfg.MaxCap {
		requested = e.cfg.MaxCap
	}
	return requested
}

func (e *Enqueuer) batchSize() int {
	if e.cfg.BatchSize <= 0 {
		return 300
	}
	return e.cfg.BatchSize
}

// abandon removes the messages already sent for a job that could not be fully
// queued and fails the job, so no partial import runs under it
func (e *Enqueuer) abandon(ctx context.Context, job *domain.Job, sent int, cause error) {
	log := e.logger.With(slog.String("request_id", job.RequestID))

	purged, err := queue.PurgeSource(ctx, e.queue, job.Source, job.RequestID)
	if err != nil {
		log.Error("Failed to purge partially queued job", slog.Any("error", err))
	}
	if _, err := e.store.TransitionJob(ctx, job.RequestID, []domain.JobStatus{domain.JobStatusQueued}, domain.JobStatusError); err != nil {
		log.Error("Failed to mark job failed", slog.Any("error", err))
	}
	e.appendLog(ctx, job, domain.LogLevelError, fmt.Sprintf("enqueue failed after %d of %d items: %v", sent, job.Total, cause))

	log.Error("Enqueue failed, job abandoned",
		slog.Int("sent", sent),
		slog.Int64("purged", purged),
		slog.Any("error", cause),
	)
}

func (e *Enqueuer) appendLog(ctx context.Context, job *domain.Job, level domain.LogLevel, message string) {
	err := e.store.AppendLog(ctx, &domain.LogEntry{
		UserID:    job.UserID,
		RequestID: job.RequestID,
		Level:     level,
		Message:   message,
		CreatedAt: e.now(),
	})
	if err != nil {
		e.logger.Warn("Failed to append job log", slog.String("request_id", job.RequestID), slog.Any("error", err))
	}
}
