package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Terminal states are final; late transitions from cancelled operations
	// are discarded rather than applied
	if job.IsTerminal() {
		return nil
	}

	switch status {
	case models.JobStatusProcessing:
		job.MarkProcessing()
	case models.JobStatusFailed:
		job.MarkFailed(errorMsg)
	case models.JobStatusCancelled:
		job.MarkCancelled()
	default:
		return fmt.Errorf("unsupported status transition to %s", status)
	}

	return s.SaveJob(ctx, job)
}

func (s *JobStorage) CompleteJob(ctx context.Context, jobID string, outputRef string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.IsTerminal() {
		return nil
	}

	job.MarkCompleted(outputRef)
	return s.SaveJob(ctx, job)
}

func (s *JobStorage) UpdateJobProgress(ctx context.Context, jobID string, progress int, eta *time.Duration) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Progress only moves while processing and never decreases
	if job.Status != models.JobStatusProcessing {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < job.Progress {
		return nil
	}

	job.Progress = progress
	job.ETA = eta
	return s.SaveJob(ctx, job)
}

func (s *JobStorage) GetJobsForBatch(ctx context.Context, batchID string) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("BatchID").Eq(batchID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to get jobs for batch: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// Cancelled jobs are excluded from the predicate and never auto-pruned
	var jobs []models.Job
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed).
		And("CompletedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to find expired jobs: %w", err)
	}

	deleted := 0
	for i := range jobs {
		if err := s.db.Store().Delete(jobs[i].ID, &models.Job{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete expired job %s: %w", jobs[i].ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) FailProcessingJobs(ctx context.Context, reason string) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, fmt.Errorf("failed to find processing jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		jobs[i].MarkFailed(reason)
		if err := s.SaveJob(ctx, &jobs[i]); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to fail orphaned job")
			continue
		}
		count++
	}
	return count, nil
}
