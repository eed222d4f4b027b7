package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/queue"
)

// Cancel stops a tenant's job: it is marked canceling, its queued messages
// are purged from both lanes and it ends canceled. In-flight items finish
// but no longer change the counters.
func (r *Runner) Cancel(ctx context.Context, userID, requestID string) (*domain.Job, error) {
	job, err := r.store.GetJob(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrJobFinished, job.Status)
	}

	moved, err := r.store.TransitionJob(ctx, requestID,
		[]domain.JobStatus{domain.JobStatusQueued, domain.JobStatusRunning}, domain.JobStatusCanceling)
	if err != nil {
		return nil, fmt.Errorf("mark canceling: %w", err)
	}
	if !moved {
		// finished, or already canceling, between the read and the transition
		if job, err = r.store.GetJob(ctx, requestID); err != nil {
			return nil, err
		}
		if job.Status != domain.JobStatusCanceling {
			return nil, fmt.Errorf("%w: status %s", domain.ErrJobFinished, job.Status)
		}
	}
	r.appendLog(ctx, userID, requestID, domain.LogLevelWarn, "canceled by user")

	n, err := queue.PurgeSource(ctx, r.queue, job.Source, requestID)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.TransitionJob(ctx, requestID,
		[]domain.JobStatus{domain.JobStatusCanceling}, domain.JobStatusCanceled); err != nil {
		return nil, fmt.Errorf("mark canceled: %w", err)
	}

	r.logger.Info("Job canceled",
		slog.String("request_id", requestID),
		slog.String("user_id", userID),
		slog.Int64("purged", n),
	)
	return r.store.GetJob(ctx, requestID)
}
