package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

type resultKey struct {
	requestID string
	itemKey   string
}

// Memory implements Store in process memory. It backs the memory driver and tests.
type Memory struct {
	Now func() time.Time

	mu           sync.Mutex
	jobs         map[string]*domain.Job
	logs         []domain.LogEntry
	results      map[resultKey]*domain.Result
	cache        map[string]*domain.CacheEntry
	destinations map[string]*domain.Destination
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		Now:          time.Now,
		jobs:         make(map[string]*domain.Job),
		results:      make(map[resultKey]*domain.Result),
		cache:        make(map[string]*domain.CacheEntry),
		destinations: make(map[string]*domain.Destination),
	}
}

func (m *Memory) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	m.jobs[job.RequestID] = &cp
	return nil
}

func (m *Memory) GetJob(_ context.Context, requestID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[requestID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) ListJobs(_ context.Context, filter JobFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []domain.Job
	for _, job := range m.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil {
			if job.CreatedAt.After(c.CreatedAt) ||
				(job.CreatedAt.Equal(c.CreatedAt) && job.RequestID >= c.RequestID) {
				continue
			}
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].RequestID > jobs[j].RequestID
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}

func (m *Memory) ApplyJobDelta(_ context.Context, requestID string, delta domain.JobDelta) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[requestID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if !job.Status.Canceled() && !delta.IsZero() {
		job.Processed += delta.Processed
		job.SuccessCount += delta.Success
		job.ErrorCount += delta.Error
		job.UpdatedAt = m.Now()
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) TransitionJob(_ context.Context, requestID string, from []domain.JobStatus, to domain.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[requestID]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if job.Status == st {
			job.Status = to
			job.UpdatedAt = m.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) AppendLog(_ context.Context, entry *domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.Now()
	}
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *Memory) ListLogs(_ context.Context, requestID string, limit int) ([]domain.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.LogEntry
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].RequestID != requestID {
			continue
		}
		out = append(out, m.logs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetResult(_ context.Context, requestID, itemKey string) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.results[resultKey{requestID, itemKey}]
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ClaimResult(_ context.Context, claim domain.Claim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	key := resultKey{claim.RequestID, claim.ItemKey}
	lease := claim.LeaseUntil

	r, ok := m.results[key]
	if !ok {
		m.results[key] = &domain.Result{
			RequestID:  claim.RequestID,
			ItemKey:    claim.ItemKey,
			UserID:     claim.UserID,
			Source:     claim.Source,
			Status:     domain.ResultPending,
			ClaimedBy:  claim.Owner,
			LeaseUntil: &lease,
			UpdatedAt:  now,
		}
		return true, nil
	}

	if r.Status == domain.ResultSuccess {
		return false, nil
	}
	free := r.ClaimedBy == "" || r.ClaimedBy == claim.Owner || r.LeaseUntil == nil || r.LeaseUntil.Before(now)
	if !free {
		return false, nil
	}
	r.ClaimedBy = claim.Owner
	r.LeaseUntil = &lease
	return true, nil
}

func (m *Memory) ReleaseClaim(_ context.Context, requestID, itemKey, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resultKey{requestID, itemKey}
	r, ok := m.results[key]
	if !ok || r.ClaimedBy != owner {
		return nil
	}
	if r.Status == domain.ResultPending {
		delete(m.results, key)
		return nil
	}
	r.ClaimedBy = ""
	r.LeaseUntil = nil
	return nil
}

func (m *Memory) UpsertResult(_ context.Context, result *domain.Result) (domain.ResultStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsertResult(result), nil
}

func (m *Memory) RecordResult(_ context.Context, result *domain.Result) (domain.ResultStatus, *domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[result.RequestID]
	if !ok {
		return "", nil, domain.ErrJobNotFound
	}

	prev := m.upsertResult(result)
	if delta := domain.CounterDelta(prev, result.Status); !job.Status.Canceled() && !delta.IsZero() {
		job.Processed += delta.Processed
		job.SuccessCount += delta.Success
		job.ErrorCount += delta.Error
		job.UpdatedAt = m.Now()
	}
	if job.Status.Active() && job.Complete() {
		job.Status = domain.JobStatusDone
		job.UpdatedAt = m.Now()
	}

	cp := *job
	return prev, &cp, nil
}

// upsertResult must be called with m.mu held
func (m *Memory) upsertResult(result *domain.Result) domain.ResultStatus {
	key := resultKey{result.RequestID, result.ItemKey}
	existing, ok := m.results[key]
	if !ok {
		cp := *result
		cp.ClaimedBy = ""
		cp.LeaseUntil = nil
		cp.UpdatedAt = m.Now()
		m.results[key] = &cp
		return ""
	}

	prev := existing.Status
	if prev == domain.ResultSuccess && result.Status != domain.ResultSuccess {
		return prev
	}

	existing.Status = result.Status
	existing.DestinationID = result.DestinationID
	existing.Name = result.Name
	existing.Action = result.Action
	existing.Reason = result.Reason
	existing.Message = result.Message
	existing.ClaimedBy = ""
	existing.LeaseUntil = nil
	existing.UpdatedAt = m.Now()
	return prev
}

func (m *Memory) ListResults(_ context.Context, filter ResultFilter) ([]domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Result
	for _, r := range m.results {
		if r.RequestID != filter.RequestID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Status == "" && r.Status == domain.ResultPending {
			continue
		}
		if c := filter.Cursor; c != nil {
			if r.UpdatedAt.After(c.UpdatedAt) ||
				(r.UpdatedAt.Equal(c.UpdatedAt) && r.ItemKey >= c.ItemKey) {
				continue
			}
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ItemKey > out[j].ItemKey
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (m *Memory) CountResults(_ context.Context, requestID string) (domain.ResultCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counts domain.ResultCounts
	for _, r := range m.results {
		if r.RequestID != requestID {
			continue
		}
		switch r.Status {
		case domain.ResultSuccess:
			counts.Success++
		case domain.ResultError:
			counts.Error++
		case domain.ResultPending:
			counts.Pending++
		}
	}
	return counts, nil
}

func (m *Memory) GetCache(_ context.Context, sourceURL string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[sourceURL]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	cp := *entry
	return &cp, nil
}

func (m *Memory) SaveCache(_ context.Context, entry *domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.cache[entry.SourceURL] = &cp
	return nil
}

func (m *Memory) DeleteExpiredCache(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for url, entry := range m.cache {
		if entry.UpdatedAt.Before(before) {
			delete(m.cache, url)
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetDestination(_ context.Context, userID string) (*domain.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst, ok := m.destinations[userID]
	if !ok {
		return nil, domain.ErrDestinationNotFound
	}
	cp := *dst
	return &cp, nil
}

func (m *Memory) SaveDestination(_ context.Context, dst *domain.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *dst
	cp.UpdatedAt = m.Now()
	m.destinations[dst.UserID] = &cp
	return nil
}
