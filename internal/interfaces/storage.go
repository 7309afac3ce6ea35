package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/curo/internal/models"
)

// ErrNotFound is returned when a record does not exist. It propagates to
// the caller of the public operation; the engine never retries or swallows it.
var ErrNotFound = errors.New("record not found")

// JobStorage manages durable job records
type JobStorage interface {
	// SaveJob inserts or fully replaces a job by ID
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob returns ErrNotFound if the ID is absent
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// UpdateJobStatus patches status to processing, failed or cancelled and,
	// for terminal statuses, stamps the end timestamp. errorMsg is only
	// applied for failed transitions. Jobs already terminal are left
	// untouched (late results from cancelled operations are discarded).
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error

	// CompleteJob patches a job to completed with progress 100 and its
	// output reference. Jobs already terminal are left untouched.
	CompleteJob(ctx context.Context, jobID string, outputRef string) error

	// UpdateJobProgress patches progress and ETA. Progress is monotonic
	// non-decreasing while a job is processing; stale lower values are ignored.
	UpdateJobProgress(ctx context.Context, jobID string, progress int, eta *time.Duration) error

	// GetJobsForBatch returns all jobs belonging to a batch
	GetJobsForBatch(ctx context.Context, batchID string) ([]*models.Job, error)

	// GetJobsByStatus returns all jobs with the given status
	GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// DeleteJob removes a job; deleting a missing job is not an error
	DeleteJob(ctx context.Context, jobID string) error

	// DeleteFinishedBefore deletes completed and failed jobs whose end
	// timestamp is older than cutoff. Cancelled jobs are never pruned.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// CountJobs returns the total number of stored jobs
	CountJobs(ctx context.Context) (int, error)

	// FailProcessingJobs marks every processing job as failed with the given
	// reason. Used at startup to recover jobs orphaned by a previous run.
	FailProcessingJobs(ctx context.Context, reason string) (int, error)
}

// BatchStorage manages durable batch records
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.Batch) error

	// GetBatch returns ErrNotFound if the ID is absent
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)

	// GetAllBatches returns all batches sorted by creation time ascending
	GetAllBatches(ctx context.Context) ([]*models.Batch, error)

	// GetActiveBatches returns batches with status pending or processing
	GetActiveBatches(ctx context.Context) ([]*models.Batch, error)

	DeleteBatch(ctx context.Context, batchID string) error

	// DeleteFinishedBefore deletes completed and failed batches whose end
	// timestamp is older than cutoff. Cancelled batches are never pruned.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)

	CountBatches(ctx context.Context) (int, error)
}

// StorageManager provides access to all storage services
type StorageManager interface {
	JobStorage() JobStorage
	BatchStorage() BatchStorage
	Close() error
}
