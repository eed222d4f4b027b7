// Package ledger records one outcome per (request, item) and keeps the job
// counters consistent with it under at-least-once delivery.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Store is the persistence the ledger needs
type Store interface {
	storage.ResultStore
	storage.JobStore
}

type Ledger struct {
	store  Store
	lease  time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// New creates a ledger whose claims expire after lease
func New(store Store, lease time.Duration, log *logger.Logger) *Ledger {
	return &Ledger{
		store:  store,
		lease:  lease,
		now:    time.Now,
		logger: log.Component("ledger"),
	}
}

// Succeeded reports whether the item already has a success row
func (l *Ledger) Succeeded(ctx context.Context, requestID, itemKey string) (bool, error) {
	r, err := l.store.GetResult(ctx, requestID, itemKey)
	if errors.Is(err, domain.ErrResultNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Status == domain.ResultSuccess, nil
}

// Claim leases the item to owner. It returns false when the item already
// succeeded or another owner holds a live lease.
func (l *Ledger) Claim(ctx context.Context, msg domain.ItemMessage, owner string) (bool, error) {
	return l.store.ClaimResult(ctx, domain.Claim{
		RequestID:  msg.RequestID,
		ItemKey:    msg.ItemKey(),
		UserID:     msg.UserID,
		Source:     msg.Source,
		Owner:      owner,
		LeaseUntil: l.now().Add(l.lease),
	})
}

// Release drops owner's lease so a retry of the same item is not blocked
func (l *Ledger) Release(ctx context.Context, msg domain.ItemMessage, owner string) error {
	return l.store.ReleaseClaim(ctx, msg.RequestID, msg.ItemKey(), owner)
}

// Outcome describes a finished item
type Outcome struct {
	DestinationID int64
	Name          string
	Action        domain.Action
	Reason        domain.Reason
	Message       string
}

// RecordSuccess writes a success row and applies its counter contribution
func (l *Ledger) RecordSuccess(ctx context.Context, msg domain.ItemMessage, out Outcome) (*domain.Job, error) {
	return l.record(ctx, msg, domain.ResultSuccess, out)
}

// RecordFailure writes a terminal error row and applies its counter contribution
func (l *Ledger) RecordFailure(ctx context.Context, msg domain.ItemMessage, out Outcome) (*domain.Job, error) {
	return l.record(ctx, msg, domain.ResultError, out)
}

func (l *Ledger) record(ctx context.Context, msg domain.ItemMessage, status domain.ResultStatus, out Outcome) (*domain.Job, error) {
	prev, job, err := l.store.RecordResult(ctx, &domain.Result{
		RequestID:     msg.RequestID,
		ItemKey:       msg.ItemKey(),
		UserID:        msg.UserID,
		Source:        msg.Source,
		Status:        status,
		DestinationID: out.DestinationID,
		Name:          out.Name,
		Action:        out.Action,
		Reason:        out.Reason,
		Message:       out.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("record %s result: %w", status, err)
	}

	if domain.CounterDelta(prev, status).Processed > 0 && job.Status == domain.JobStatusDone {
		l.logger.Info("Job completed",
			slog.String("request_id", job.RequestID),
			slog.Int("success", job.SuccessCount),
			slog.Int("error", job.ErrorCount),
		)
	}

	return job, nil
}

// Counts returns the per-status row counts of a request
func (l *Ledger) Counts(ctx context.Context, requestID string) (domain.ResultCounts, error) {
	return l.store.CountResults(ctx, requestID)
}
