package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

func setup(t *testing.T, total int) (*Ledger, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.CreateJob(context.Background(), &domain.Job{
		RequestID: "req-1",
		UserID:    "tenant-1",
		Source:    domain.SourceWix,
		Total:     total,
		Status:    domain.JobStatusRunning,
	}))
	return New(store, time.Minute, logger.NewDiscard()), store
}

func msg(ref string) domain.ItemMessage {
	return domain.ItemMessage{UserID: "tenant-1", RequestID: "req-1", Source: domain.SourceWix, ItemRef: ref}
}

func TestLedger_DuplicateSuccessCountsOnce(t *testing.T) {
	ctx := context.Background()
	l, store := setup(t, 2)

	for i := 0; i < 3; i++ {
		_, err := l.RecordSuccess(ctx, msg("https://shop.example/product-page/mug"), Outcome{DestinationID: 10, Action: domain.ActionCreate})
		require.NoError(t, err)
	}

	job, err := store.GetJob(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, domain.JobStatusRunning, job.Status)

	ok, err := l.Succeeded(ctx, "req-1", msg("https://shop.example/product-page/mug").ItemKey())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Succeeded(ctx, "req-1", "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_CompletesJob(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, 2)

	job, err := l.RecordSuccess(ctx, msg("a"), Outcome{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, job.Status)

	job, err = l.RecordFailure(ctx, msg("b"), Outcome{Reason: domain.ReasonMaxRetriesExceeded})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, 2, job.Processed)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, 1, job.ErrorCount)

	counts, err := l.Counts(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCounts{Success: 1, Error: 1}, counts)
}

func TestLedger_ErrorThenSuccessMovesCounters(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, 3)

	_, err := l.RecordFailure(ctx, msg("a"), Outcome{Reason: domain.ReasonInvalidSKU})
	require.NoError(t, err)

	job, err := l.RecordSuccess(ctx, msg("a"), Outcome{DestinationID: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, 0, job.ErrorCount)
}

func TestLedger_ClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, 1)

	ok, err := l.Claim(ctx, msg("a"), "import_wix:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, msg("a"), "import_wix_high:2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, msg("a"), "import_wix:1"))

	ok, err = l.Claim(ctx, msg("a"), "import_wix_high:2")
	require.NoError(t, err)
	assert.True(t, ok)
}

type flakyStore struct {
	*storage.Memory
	failures int
}

func (s *flakyStore) RecordResult(ctx context.Context, r *domain.Result) (domain.ResultStatus, *domain.Job, error) {
	if s.failures > 0 {
		s.failures--
		return "", nil, errors.New("connection reset")
	}
	return s.Memory.RecordResult(ctx, r)
}

func TestLedger_FailedRecordLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	_, mem := setup(t, 1)
	store := &flakyStore{Memory: mem, failures: 1}
	l := New(store, time.Minute, logger.NewDiscard())

	_, err := l.RecordSuccess(ctx, msg("a"), Outcome{DestinationID: 3})
	require.Error(t, err)

	ok, err := l.Succeeded(ctx, "req-1", msg("a").ItemKey())
	require.NoError(t, err)
	assert.False(t, ok)

	job, err := l.RecordSuccess(ctx, msg("a"), Outcome{DestinationID: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, domain.JobStatusDone, job.Status)
}
