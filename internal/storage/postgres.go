package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/postgresql"
)

const jobColumns = `request_id, user_id, source, total, processed, success_count, error_count, status, created_at, updated_at`

const resultColumns = `request_id, item_key, user_id, source, status, destination_id, name, action, reason, message, claimed_by, lease_until, updated_at`

// Postgres implements Store on PostgreSQL
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres store
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

func (s *Postgres) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO import_jobs (
			request_id, user_id, source, total,
			processed, success_count, error_count,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			0, 0, 0,
			$5, $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.RequestID,
		job.UserID,
		job.Source,
		job.Total,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Postgres) GetJob(ctx context.Context, requestID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE request_id = $1`

	if err := s.db.GetContext(ctx, &job, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, request_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RequestID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, request_id DESC"

	// one extra row tells the caller whether another page exists
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (s *Postgres) ApplyJobDelta(ctx context.Context, requestID string, delta domain.JobDelta) (*domain.Job, error) {
	if delta.IsZero() {
		return s.GetJob(ctx, requestID)
	}

	query := `
		UPDATE import_jobs
		SET processed = processed + $2,
		    success_count = success_count + $3,
		    error_count = error_count + $4,
		    updated_at = now()
		WHERE request_id = $1
		  AND status NOT IN ('canceling', 'canceled')
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, requestID, delta.Processed, delta.Success, delta.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetJob(ctx, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job counters: %w", err)
	}

	return &job, nil
}

func (s *Postgres) TransitionJob(ctx context.Context, requestID string, from []domain.JobStatus, to domain.JobStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = $2, updated_at = now()
		WHERE request_id = $1 AND status = ANY($3)
	`, requestID, to, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (s *Postgres) AppendLog(ctx context.Context, entry *domain.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := s.db.GetContext(ctx, &entry.ID, `
		INSERT INTO import_logs (user_id, request_id, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, entry.UserID, entry.RequestID, entry.Level, entry.Message, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	return nil
}

func (s *Postgres) ListLogs(ctx context.Context, requestID string, limit int) ([]domain.LogEntry, error) {
	var entries []domain.LogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, request_id, level, message, created_at
		FROM import_logs
		WHERE request_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	return entries, nil
}

func (s *Postgres) GetResult(ctx context.Context, requestID, itemKey string) (*domain.Result, error) {
	var result domain.Result
	query := `SELECT ` + resultColumns + ` FROM import_results WHERE request_id = $1 AND item_key = $2`

	if err := s.db.GetContext(ctx, &result, query, requestID, itemKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return &result, nil
}

func (s *Postgres) ClaimResult(ctx context.Context, claim domain.Claim) (bool, error) {
	query := `
		INSERT INTO import_results (request_id, item_key, user_id, source, status, claimed_by, lease_until, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, now())
		ON CONFLICT (request_id, item_key) DO UPDATE
		SET claimed_by = EXCLUDED.claimed_by,
		    lease_until = EXCLUDED.lease_until
		WHERE import_results.status <> 'success'
		  AND (import_results.claimed_by = EXCLUDED.claimed_by
		       OR import_results.claimed_by = ''
		       OR import_results.lease_until IS NULL
		       OR import_results.lease_until < now())
		RETURNING claimed_by
	`

	var owner string
	err := s.db.GetContext(ctx, &owner, query,
		claim.RequestID, claim.ItemKey, claim.UserID, claim.Source, claim.Owner, claim.LeaseUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim result: %w", err)
	}

	return owner == claim.Owner, nil
}

func (s *Postgres) ReleaseClaim(ctx context.Context, requestID, itemKey, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		WITH dropped AS (
			DELETE FROM import_results
			WHERE request_id = $1 AND item_key = $2 AND claimed_by = $3 AND status = 'pending'
		)
		UPDATE import_results
		SET claimed_by = '', lease_until = NULL
		WHERE request_id = $1 AND item_key = $2 AND claimed_by = $3 AND status <> 'pending'
	`, requestID, itemKey, owner)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// UpsertResult checks for an existing row and updates it, inserting otherwise.
// When a concurrent writer inserts first, the unique violation is retried as an update.
func (s *Postgres) UpsertResult(ctx context.Context, result *domain.Result) (domain.ResultStatus, error) {
	prev, _, err := s.withUpsertRetry(ctx, result, false)
	if err != nil {
		return "", fmt.Errorf("failed to upsert result: %w", err)
	}
	return prev, nil
}

func (s *Postgres) RecordResult(ctx context.Context, result *domain.Result) (domain.ResultStatus, *domain.Job, error) {
	prev, job, err := s.withUpsertRetry(ctx, result, true)
	if err != nil {
		return "", nil, fmt.Errorf("failed to record result: %w", err)
	}
	return prev, job, nil
}

type recorded struct {
	prev domain.ResultStatus
	job  *domain.Job
}

func (s *Postgres) withUpsertRetry(ctx context.Context, result *domain.Result, applyDelta bool) (domain.ResultStatus, *domain.Job, error) {
	run := func() (recorded, error) {
		return postgresql.Transact(ctx, s.db, func(tx *sqlx.Tx) (recorded, error) {
			prev, err := upsertResult(ctx, tx, result)
			if err != nil || !applyDelta {
				return recorded{prev: prev}, err
			}
			job, err := applyResultDelta(ctx, tx, result.RequestID, domain.CounterDelta(prev, result.Status))
			return recorded{prev: prev, job: job}, err
		})
	}

	out, err := run()
	if postgresql.IsUniqueViolation(err) {
		s.logger.Debug("Result insert raced, retrying as update",
			slog.String("request_id", result.RequestID),
			slog.String("item_key", result.ItemKey),
		)
		out, err = run()
	}
	return out.prev, out.job, err
}

func upsertResult(ctx context.Context, tx *sqlx.Tx, r *domain.Result) (domain.ResultStatus, error) {
	var prev domain.ResultStatus
	err := tx.GetContext(ctx, &prev, `
		SELECT status FROM import_results
		WHERE request_id = $1 AND item_key = $2
		FOR UPDATE
	`, r.RequestID, r.ItemKey)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO import_results (
				request_id, item_key, user_id, source, status,
				destination_id, name, action, reason, message, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		`, r.RequestID, r.ItemKey, r.UserID, r.Source, r.Status,
			r.DestinationID, r.Name, r.Action, r.Reason, r.Message)
		return "", err
	case err != nil:
		return "", err
	case prev == domain.ResultSuccess && r.Status != domain.ResultSuccess:
		return prev, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE import_results
		SET status = $3, destination_id = $4, name = $5, action = $6,
		    reason = $7, message = $8, claimed_by = '', lease_until = NULL,
		    updated_at = now()
		WHERE request_id = $1 AND item_key = $2
	`, r.RequestID, r.ItemKey, r.Status, r.DestinationID, r.Name, r.Action, r.Reason, r.Message)
	return prev, err
}

// applyResultDelta adjusts the counters of an uncanceled job and finishes it
// once every item has an outcome
func applyResultDelta(ctx context.Context, tx *sqlx.Tx, requestID string, delta domain.JobDelta) (*domain.Job, error) {
	query := `
		UPDATE import_jobs
		SET processed = processed + $2,
		    success_count = success_count + $3,
		    error_count = error_count + $4,
		    status = CASE
		        WHEN status IN ('queued', 'running') AND total > 0 AND processed + $2 >= total THEN 'done'
		        ELSE status
		    END,
		    updated_at = now()
		WHERE request_id = $1
		  AND status NOT IN ('canceling', 'canceled')
		RETURNING ` + jobColumns

	var job domain.Job
	err := tx.GetContext(ctx, &job, query, requestID, delta.Processed, delta.Success, delta.Error)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM import_jobs WHERE request_id = $1`, requestID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Postgres) ListResults(ctx context.Context, filter ResultFilter) ([]domain.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM import_results WHERE request_id = $1`
	args := []interface{}{filter.RequestID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	} else {
		query += " AND status <> 'pending'"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (updated_at, item_key) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.UpdatedAt, filter.Cursor.ItemKey)
		argIdx += 2
	}

	query += " ORDER BY updated_at DESC, item_key DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var results []domain.Result
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	return results, nil
}

func (s *Postgres) CountResults(ctx context.Context, requestID string) (domain.ResultCounts, error) {
	var counts domain.ResultCounts
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			count(*) FILTER (WHERE status = 'success') AS success,
			count(*) FILTER (WHERE status = 'error') AS error,
			count(*) FILTER (WHERE status = 'pending') AS pending
		FROM import_results
		WHERE request_id = $1
	`, requestID)
	if err != nil {
		return counts, fmt.Errorf("failed to count results: %w", err)
	}

	return counts, nil
}

func (s *Postgres) GetCache(ctx context.Context, sourceURL string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT source_url, content_hash, payload, updated_at
		FROM import_cache
		WHERE source_url = $1
	`, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return &entry, nil
}

func (s *Postgres) SaveCache(ctx context.Context, entry *domain.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_cache (source_url, content_hash, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_url) DO UPDATE
		SET content_hash = EXCLUDED.content_hash,
		    payload = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
	`, entry.SourceURL, entry.ContentHash, entry.Payload, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	return nil
}

func (s *Postgres) DeleteExpiredCache(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM import_cache WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache: %w", err)
	}
	return result.RowsAffected()
}

func (s *Postgres) GetDestination(ctx context.Context, userID string) (*domain.Destination, error) {
	var dst domain.Destination
	err := s.db.GetContext(ctx, &dst, `
		SELECT user_id, store_url, consumer_key, consumer_secret, updated_at
		FROM tenant_destinations
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDestinationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination: %w", err)
	}

	return &dst, nil
}

func (s *Postgres) SaveDestination(ctx context.Context, dst *domain.Destination) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_destinations (user_id, store_url, consumer_key, consumer_secret, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE
		SET store_url = EXCLUDED.store_url,
		    consumer_key = EXCLUDED.consumer_key,
		    consumer_secret = EXCLUDED.consumer_secret,
		    updated_at = now()
	`, dst.UserID, dst.StoreURL, dst.ConsumerKey, dst.ConsumerSecret)
	if err != nil {
		return fmt.Errorf("failed to save destination: %w", err)
	}

	return nil
}
