// Package storage persists jobs, progress logs, the per-item result ledger,
// the normalize cache and tenant destinations.
package storage

import (
	"context"
	_ "embed"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// Schema creates every table used by the service, including the queue tables
//
//go:embed schema.sql
var Schema string

type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, requestID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	// ApplyJobDelta atomically adjusts the counters. Counters of canceled
	// jobs are frozen; the current job is returned either way.
	ApplyJobDelta(ctx context.Context, requestID string, delta domain.JobDelta) (*domain.Job, error)
	// TransitionJob moves the job to status `to` if it is currently in one of `from`.
	TransitionJob(ctx context.Context, requestID string, from []domain.JobStatus, to domain.JobStatus) (bool, error)
}

type LogStore interface {
	AppendLog(ctx context.Context, entry *domain.LogEntry) error
	ListLogs(ctx context.Context, requestID string, limit int) ([]domain.LogEntry, error)
}

type ResultStore interface {
	GetResult(ctx context.Context, requestID, itemKey string) (*domain.Result, error)
	// ClaimResult takes the item lease for claim.Owner. It fails when the item
	// already succeeded or another owner holds an unexpired lease.
	ClaimResult(ctx context.Context, claim domain.Claim) (bool, error)
	// ReleaseClaim drops owner's lease. A pending row with no outcome is removed.
	ReleaseClaim(ctx context.Context, requestID, itemKey, owner string) error
	// UpsertResult records an outcome and returns the status the row had before.
	// A success row is never overwritten by an error.
	UpsertResult(ctx context.Context, result *domain.Result) (domain.ResultStatus, error)
	// RecordResult upserts the result and applies its counter delta to the job
	// as one atomic step, moving an active job whose counters reach its total
	// to done. Nothing is written when any part fails.
	RecordResult(ctx context.Context, result *domain.Result) (domain.ResultStatus, *domain.Job, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]domain.Result, error)
	CountResults(ctx context.Context, requestID string) (domain.ResultCounts, error)
}

type CacheStore interface {
	GetCache(ctx context.Context, sourceURL string) (*domain.CacheEntry, error)
	SaveCache(ctx context.Context, entry *domain.CacheEntry) error
	DeleteExpiredCache(ctx context.Context, before time.Time) (int64, error)
}

type DestinationStore interface {
	GetDestination(ctx context.Context, userID string) (*domain.Destination, error)
	SaveDestination(ctx context.Context, dst *domain.Destination) error
}

// Store is the full persistence surface
type Store interface {
	JobStore
	LogStore
	ResultStore
	CacheStore
	DestinationStore
}

type JobFilter struct {
	UserID   string
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	RequestID string
}

type ResultFilter struct {
	RequestID string
	Status    domain.ResultStatus
	PageSize  int
	Cursor    *ResultCursor
}

type ResultCursor struct {
	UpdatedAt time.Time
	ItemKey   string
}
