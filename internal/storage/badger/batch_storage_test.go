package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
)

func newTestBatchStorage(t *testing.T) interfaces.BatchStorage {
	t.Helper()
	return NewBatchStorage(newTestDB(t), arbor.NewLogger())
}

func terminalBatch(id string, status models.JobStatus, endedAt time.Time) *models.Batch {
	batch := models.NewBatch(id, id)
	batch.Status = status
	batch.CompletedAt = endedAt
	return batch
}

func TestBatchStorage_SaveAndGet(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	batch := models.NewBatch("batch_1", "invoices")
	require.NoError(t, storage.SaveBatch(ctx, batch))

	fetched, err := storage.GetBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, "invoices", fetched.Name)
	assert.Equal(t, models.JobStatusPending, fetched.Status)
}

func TestBatchStorage_GetMissing(t *testing.T) {
	storage := newTestBatchStorage(t)

	_, err := storage.GetBatch(context.Background(), "batch_missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBatchStorage_UpsertReplacesDerivedFields(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	batch := models.NewBatch("batch_1", "invoices")
	require.NoError(t, storage.SaveBatch(ctx, batch))

	batch.Status = models.JobStatusProcessing
	batch.Progress = 42.5
	batch.TotalJobs = 4
	require.NoError(t, storage.SaveBatch(ctx, batch))

	fetched, err := storage.GetBatch(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, fetched.Status)
	assert.Equal(t, 42.5, fetched.Progress)
	assert.Equal(t, 4, fetched.TotalJobs)
}

func TestBatchStorage_GetAllBatchesSorted(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	older := models.NewBatch("batch_older", "older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := models.NewBatch("batch_newer", "newer")

	require.NoError(t, storage.SaveBatch(ctx, newer))
	require.NoError(t, storage.SaveBatch(ctx, older))

	all, err := storage.GetAllBatches(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "batch_older", all[0].ID)
	assert.Equal(t, "batch_newer", all[1].ID)
}

func TestBatchStorage_GetActiveBatches(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveBatch(ctx, models.NewBatch("batch_pending", "pending")))
	require.NoError(t, storage.SaveBatch(ctx, terminalBatch("batch_done", models.JobStatusCompleted, time.Now())))

	processing := models.NewBatch("batch_processing", "processing")
	processing.Status = models.JobStatusProcessing
	require.NoError(t, storage.SaveBatch(ctx, processing))

	active, err := storage.GetActiveBatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, batch := range active {
		assert.NotEqual(t, "batch_done", batch.ID)
	}
}

func TestBatchStorage_DeleteBatch(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveBatch(ctx, models.NewBatch("batch_1", "invoices")))
	require.NoError(t, storage.DeleteBatch(ctx, "batch_1"))

	_, err := storage.GetBatch(ctx, "batch_1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, storage.DeleteBatch(ctx, "batch_missing"))
}

func TestBatchStorage_DeleteFinishedBefore(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SaveBatch(ctx, terminalBatch("batch_old_done", models.JobStatusCompleted, now.AddDate(0, 0, -10))))
	require.NoError(t, storage.SaveBatch(ctx, terminalBatch("batch_old_failed", models.JobStatusFailed, now.AddDate(0, 0, -10))))
	require.NoError(t, storage.SaveBatch(ctx, terminalBatch("batch_recent", models.JobStatusCompleted, now.AddDate(0, 0, -3))))
	require.NoError(t, storage.SaveBatch(ctx, models.NewBatch("batch_live", "live")))

	deleted, err := storage.DeleteFinishedBefore(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = storage.GetBatch(ctx, "batch_old_done")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	for _, id := range []string{"batch_recent", "batch_live"} {
		_, err = storage.GetBatch(ctx, id)
		assert.NoError(t, err, "batch %s must survive the sweep", id)
	}
}

func TestBatchStorage_CountBatches(t *testing.T) {
	storage := newTestBatchStorage(t)
	ctx := context.Background()

	count, err := storage.CountBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, storage.SaveBatch(ctx, models.NewBatch("batch_1", "one")))

	count, err = storage.CountBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
