// Package runner drains the source queues. A tick locks each requested
// source, reads a batch from its lanes and migrates the items grouped by
// tenant, then classifies every outcome into delete, retry or dead-letter.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/ledger"
	"github.com/cuongbtq/catalog-migrator/internal/lock"
	"github.com/cuongbtq/catalog-migrator/internal/processor"
	"github.com/cuongbtq/catalog-migrator/internal/queue"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

type Config struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	Budget            time.Duration
	MessageTimeout    time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	MaxTenantGroups   int
	BacklogWarning    int64
}

// Store is the persistence the runner reads and writes directly
type Store interface {
	storage.JobStore
	storage.LogStore
	storage.DestinationStore
	CountResults(ctx context.Context, requestID string) (domain.ResultCounts, error)
}

// Processors selects the processor of a source
type Processors interface {
	Get(src domain.Source) (processor.Processor, error)
}

type Runner struct {
	queue      queue.Queue
	store      Store
	ledger     *ledger.Ledger
	processors Processors
	locker     lock.Locker
	cfg        Config
	now        func() time.Time
	logger     *logger.Logger
}

func New(q queue.Queue, store Store, l *ledger.Ledger, processors Processors, locker lock.Locker, cfg Config, log *logger.Logger) *Runner {
	return &Runner{
		queue:      q,
		store:      store,
		ledger:     l,
		processors: processors,
		locker:     locker,
		cfg:        cfg,
		now:        time.Now,
		logger:     log.Component("runner"),
	}
}

// Detail statuses
const (
	StatusLocked    = "locked"
	StatusSuccess   = "success"
	StatusSkipped   = "skipped"
	StatusDuplicate = "duplicate"
	StatusRetry     = "retry"
	StatusArchived  = "archived"
	StatusDropped   = "dropped"
	StatusCanceled  = "canceled"
	StatusStale     = "stale"
	StatusDeferred  = "deferred"
	StatusError     = "error"
)

// Report summarizes a tick
type Report struct {
	OK        bool     `json:"ok"`
	Processed int      `json:"processed"`
	Details   []Detail `json:"details"`
}

// Detail is the outcome of one message, or of a source that was not drained
type Detail struct {
	Source    domain.Source `json:"source"`
	Queue     string        `json:"queue,omitempty"`
	MessageID int64         `json:"msg_id,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Item      string        `json:"item,omitempty"`
	Status    string        `json:"status"`
	Reason    domain.Reason `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type delivery struct {
	queue string
	msg   queue.Message
}

type collector struct {
	mu     sync.Mutex
	report Report
}

func (c *collector) add(d Detail) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.Details = append(c.report.Details, d)
	switch d.Status {
	case StatusLocked, StatusDeferred:
	case StatusError:
		c.report.OK = false
		if d.MessageID != 0 {
			c.report.Processed++
		}
	default:
		c.report.Processed++
	}
}

// Tick runs one pass over the given sources, or every source when none is given
func (r *Runner) Tick(ctx context.Context, sources ...domain.Source) (*Report, error) {
	if len(sources) == 0 {
		sources = domain.AllSources()
	}
	for _, src := range sources {
		if !src.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSource, src)
		}
	}

	deadline := r.now().Add(r.cfg.Budget)
	c := &collector{report: Report{OK: true, Details: []Detail{}}}

	var claimed []sourceBatch
	defer func() {
		for _, b := range claimed {
			r.release(ctx, b)
		}
	}()

	// every source is claimed before any item runs so the budget is shared
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return &c.report, err
		}
		if b, ok := r.claimSource(ctx, src, deadline, c); ok {
			claimed = append(claimed, b)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.MaxTenantGroups, 1))
	for _, b := range claimed {
		groups, order := groupByTenant(b.deliveries)
		for _, userID := range order {
			batch := groups[userID]
			src := b.source
			g.Go(func() error {
				for _, d := range batch {
					if gctx.Err() != nil || r.now().After(deadline) {
						c.add(Detail{Source: src, Queue: d.queue, MessageID: d.msg.ID, Status: StatusDeferred})
						continue
					}
					c.add(r.handle(gctx, src, d))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	r.logger.Info("Tick finished",
		slog.Int("processed", c.report.Processed),
		slog.Bool("ok", c.report.OK),
	)
	return &c.report, nil
}

// sourceBatch is the locked share of one source in a tick
type sourceBatch struct {
	source     domain.Source
	lease      lock.Lease
	deliveries []delivery
}

// claimSource locks src and reads its batch. Nothing is locked or read once
// the deadline has passed.
func (r *Runner) claimSource(ctx context.Context, src domain.Source, deadline time.Time, c *collector) (sourceBatch, bool) {
	if r.now().After(deadline) {
		c.add(Detail{Source: src, Status: StatusDeferred})
		return sourceBatch{}, false
	}

	lease, err := r.locker.Acquire(ctx, src.String(), r.cfg.Budget+r.cfg.MessageTimeout)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		c.add(Detail{Source: src, Status: StatusLocked})
		return sourceBatch{}, false
	}
	if err != nil {
		r.logger.Error("Failed to acquire source lock", slog.String("source", src.String()), slog.Any("error", err))
		c.add(Detail{Source: src, Status: StatusError, Error: err.Error()})
		return sourceBatch{}, false
	}

	b := sourceBatch{source: src, lease: lease}
	b.deliveries, err = r.read(ctx, src, deadline)
	if err != nil {
		r.logger.Error("Failed to read queue", slog.String("source", src.String()), slog.Any("error", err))
		c.add(Detail{Source: src, Status: StatusError, Error: err.Error()})
	}
	return b, true
}

func (r *Runner) release(ctx context.Context, b sourceBatch) {
	if err := b.lease.Release(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("Failed to release source lock", slog.String("source", b.source.String()), slog.Any("error", err))
	}
}

// read takes up to BatchSize messages, high lane first
func (r *Runner) read(ctx context.Context, src domain.Source, deadline time.Time) ([]delivery, error) {
	var out []delivery
	for _, name := range domain.Lanes(src) {
		remaining := r.cfg.BatchSize - len(out)
		if remaining <= 0 || r.now().After(deadline) {
			break
		}
		msgs, err := r.queue.Read(ctx, name, r.cfg.VisibilityTimeout, remaining)
		if err != nil {
			return out, fmt.Errorf("read %s: %w", name, err)
		}
		for _, m := range msgs {
			out = append(out, delivery{queue: name, msg: m})
		}
	}
	return out, nil
}

// groupByTenant keeps the read order within a tenant and across first appearances
func groupByTenant(deliveries []delivery) (map[string][]delivery, []string) {
	groups := make(map[string][]delivery)
	var order []string
	for _, d := range deliveries {
		userID := ""
		if item, err := d.msg.Decode(); err == nil {
			userID = item.UserID
		}
		if _, ok := groups[userID]; !ok {
			order = append(order, userID)
		}
		groups[userID] = append(groups[userID], d)
	}
	return groups, order
}

func (r *Runner) handle(ctx context.Context, src domain.Source, d delivery) Detail {
	detail := Detail{Source: src, Queue: d.queue, MessageID: d.msg.ID, Attempt: d.msg.ReadCount}
	log := r.logger.With(slog.String("queue", d.queue), slog.Int64("msg_id", d.msg.ID))

	item, err := d.msg.Decode()
	if err == nil {
		err = item.Validate()
	}
	if err != nil {
		log.Warn("Dropping malformed message", slog.Any("error", err))
		r.delete(ctx, d)
		detail.Status, detail.Reason, detail.Error = StatusDropped, domain.ReasonMissingFields, err.Error()
		return detail
	}
	detail.RequestID, detail.Item = item.RequestID, item.ItemRef
	log = log.With(slog.String("request_id", item.RequestID), slog.String("item", item.ItemRef))

	done, err := r.ledger.Succeeded(ctx, item.RequestID, item.ItemKey())
	if err != nil {
		return r.infraError(log, detail, "ledger lookup", err)
	}
	if done {
		r.delete(ctx, d)
		detail.Status = StatusSkipped
		return detail
	}

	job, err := r.store.GetJob(ctx, item.RequestID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		return r.infraError(log, detail, "job lookup", err)
	}
	switch {
	case job == nil || (job.Status.Terminal() && !job.Status.Canceled()):
		r.delete(ctx, d)
		detail.Status, detail.Reason = StatusStale, domain.ReasonStaleStopped
		return detail
	case job.Status.Canceled():
		r.delete(ctx, d)
		r.finishCancel(ctx, job)
		detail.Status, detail.Reason = StatusCanceled, domain.ReasonCanceled
		return detail
	}

	owner := fmt.Sprintf("%s:%d", d.queue, d.msg.ID)
	claimed, err := r.ledger.Claim(ctx, item, owner)
	if err != nil {
		return r.infraError(log, detail, "claim", err)
	}
	if !claimed {
		log.Info("Item owned by another delivery, dropping duplicate")
		r.delete(ctx, d)
		detail.Status = StatusDuplicate
		return detail
	}

	if _, err := r.store.TransitionJob(ctx, job.RequestID, []domain.JobStatus{domain.JobStatusQueued}, domain.JobStatusRunning); err != nil {
		log.Warn("Failed to mark job running", slog.Any("error", err))
	}

	out, err := r.process(ctx, item)
	if r.canceledMeanwhile(ctx, item.RequestID) {
		r.releaseClaim(ctx, log, item, owner)
		r.delete(ctx, d)
		detail.Status, detail.Reason = StatusCanceled, domain.ReasonCanceled
		return detail
	}
	if err != nil {
		return r.fail(ctx, log, d, item, owner, err, detail)
	}

	if _, err := r.ledger.RecordSuccess(ctx, item, *out); err != nil {
		return r.infraError(log, detail, "record success", err)
	}
	r.delete(ctx, d)

	detail.Status = StatusSuccess
	return detail
}

func (r *Runner) process(ctx context.Context, item domain.ItemMessage) (*ledger.Outcome, error) {
	dst, err := r.store.GetDestination(ctx, item.UserID)
	if errors.Is(err, domain.ErrDestinationNotFound) {
		return nil, domain.NewProcessError(domain.ReasonMissingConfig, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load destination: %w", err)
	}

	p, err := r.processors.Get(item.Source)
	if err != nil {
		return nil, domain.NewProcessError(domain.ReasonMissingFields, err)
	}

	msgCtx, cancel := context.WithTimeout(ctx, r.cfg.MessageTimeout)
	defer cancel()

	return p.Process(msgCtx, item, dst)
}

func (r *Runner) fail(ctx context.Context, log *logger.Logger, d delivery, item domain.ItemMessage, owner string, cause error, detail Detail) Detail {
	reason := domain.ReasonOf(cause)
	detail.Reason, detail.Error = reason, cause.Error()

	switch reason.Class() {
	case domain.ClassDrop, domain.ClassSilent:
		r.releaseClaim(ctx, log, item, owner)
		r.delete(ctx, d)
		detail.Status = StatusDropped
		return detail

	case domain.ClassTransient:
		if d.msg.ReadCount < r.cfg.MaxAttempts {
			r.releaseClaim(ctx, log, item, owner)
			backoff := r.cfg.RetryBackoff * time.Duration(max(d.msg.ReadCount, 1))
			if err := r.queue.SetVisibilityTimeout(ctx, d.queue, d.msg.ID, backoff); err != nil {
				log.Warn("Failed to re-arm message", slog.Any("error", err))
			}
			log.Info("Item failed, retrying",
				slog.String("reason", string(reason)),
				slog.Int("attempt", d.msg.ReadCount),
				slog.Duration("backoff", backoff),
				slog.Any("error", cause),
			)
			detail.Status = StatusRetry
			return detail
		}
		reason = domain.ReasonMaxRetriesExceeded
		detail.Reason = reason
	}

	r.deadLetter(ctx, log, d, item, reason, cause)
	detail.Status = StatusArchived

	if reason.Class() == domain.ClassUnrecoverable {
		r.abortJob(ctx, item, reason)
	}
	return detail
}

// releaseClaim drops the item lease of a delivery that leaves no outcome
func (r *Runner) releaseClaim(ctx context.Context, log *logger.Logger, item domain.ItemMessage, owner string) {
	if err := r.ledger.Release(ctx, item, owner); err != nil {
		log.Warn("Failed to release claim", slog.Any("error", err))
	}
}

// deadLetter archives the message and records its terminal error
func (r *Runner) deadLetter(ctx context.Context, log *logger.Logger, d delivery, item domain.ItemMessage, reason domain.Reason, cause error) {
	if _, err := r.queue.Archive(ctx, d.queue, d.msg.ID); err != nil {
		log.Error("Failed to archive message", slog.Any("error", err))
	}
	if _, err := r.ledger.RecordFailure(ctx, item, ledger.Outcome{Reason: reason, Message: cause.Error()}); err != nil {
		log.Error("Failed to record failure", slog.Any("error", err))
	}
	r.appendLog(ctx, item.UserID, item.RequestID, domain.LogLevelError,
		fmt.Sprintf("%s failed (%s): %v", item.ItemRef, reason, cause))
	log.Warn("Item dead-lettered", slog.String("reason", string(reason)), slog.Any("error", cause))
}

// abortJob stops a request whose remaining items cannot succeed either
func (r *Runner) abortJob(ctx context.Context, item domain.ItemMessage, reason domain.Reason) {
	n, err := queue.PurgeSource(ctx, r.queue, item.Source, item.RequestID)
	if err != nil {
		r.logger.Error("Failed to purge request", slog.String("request_id", item.RequestID), slog.Any("error", err))
	}
	moved, err := r.store.TransitionJob(ctx, item.RequestID,
		[]domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}, domain.JobStatusError)
	if err != nil {
		r.logger.Error("Failed to fail job", slog.String("request_id", item.RequestID), slog.Any("error", err))
	}
	if moved {
		r.appendLog(ctx, item.UserID, item.RequestID, domain.LogLevelError,
			fmt.Sprintf("job stopped (%s), %d queued items purged", reason, n))
	}
}

// finishCancel completes a cancel observed by the runner
func (r *Runner) finishCancel(ctx context.Context, job *domain.Job) {
	if _, err := queue.PurgeSource(ctx, r.queue, job.Source, job.RequestID); err != nil {
		r.logger.Error("Failed to purge canceled request", slog.String("request_id", job.RequestID), slog.Any("error", err))
		return
	}
	if _, err := r.store.TransitionJob(ctx, job.RequestID,
		[]domain.JobStatus{domain.JobStatusCanceling}, domain.JobStatusCanceled); err != nil {
		r.logger.Error("Failed to finalize cancel", slog.String("request_id", job.RequestID), slog.Any("error", err))
	}
}

// canceledMeanwhile reports whether the job was canceled while its item was
// being processed. Such outcomes are not recorded.
func (r *Runner) canceledMeanwhile(ctx context.Context, requestID string) bool {
	job, err := r.store.GetJob(ctx, requestID)
	return err == nil && job.Status.Canceled()
}

func (r *Runner) delete(ctx context.Context, d delivery) {
	if _, err := r.queue.Delete(ctx, d.queue, d.msg.ID); err != nil {
		r.logger.Warn("Failed to delete message",
			slog.String("queue", d.queue),
			slog.Int64("msg_id", d.msg.ID),
			slog.Any("error", err),
		)
	}
}

// infraError leaves the message to reappear after its visibility timeout
func (r *Runner) infraError(log *logger.Logger, detail Detail, op string, err error) Detail {
	log.Error("Runner storage failure", slog.String("op", op), slog.Any("error", err))
	detail.Status = StatusError
	detail.Error = fmt.Sprintf("%s: %v", op, err)
	return detail
}

func (r *Runner) appendLog(ctx context.Context, userID, requestID string, level domain.LogLevel, message string) {
	err := r.store.AppendLog(ctx, &domain.LogEntry{
		UserID:    userID,
		RequestID: requestID,
		Level:     level,
		Message:   message,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.logger.Warn("Failed to append job log", slog.String("request_id", requestID), slog.Any("error", err))
	}
}
