package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/ternarybob/curo/internal/services/batches"
	"github.com/ternarybob/curo/internal/services/scheduler"
	"github.com/ternarybob/curo/internal/services/sessions"
)

// Service is the engine facade exposed to the API layer. It routes submitted
// work through the session manager, persists the job entities and hands them
// to the scheduler.
type Service struct {
	storage    interfaces.StorageManager
	sessions   *sessions.Manager
	scheduler  *scheduler.Scheduler
	aggregator *batches.Aggregator
	logger     arbor.ILogger
}

// NewService creates the engine facade
func NewService(storage interfaces.StorageManager, sessionMgr *sessions.Manager, sched *scheduler.Scheduler, aggregator *batches.Aggregator, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		sessions:   sessionMgr,
		scheduler:  sched,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Submit routes newly submitted inputs into a session (explicit or
// auto-grouped), creates a fresh batch there and enqueues one job per input
func (s *Service) Submit(ctx context.Context, sessionID, batchName string, inputs []models.JobInput) (*models.Batch, []*models.Job, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("at least one input is required")
	}

	session, err := s.sessions.ResolveSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	if batchName == "" {
		batchName = defaultBatchName(inputs)
	}

	batch, err := s.sessions.CreateBatch(ctx, session.ID, batchName)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := s.AddJobsToBatch(ctx, batch.ID, inputs)
	if err != nil {
		return nil, nil, err
	}

	return batch, jobs, nil
}

// AddJobsToBatch creates pending jobs for the inputs and enqueues them.
// The batch's totalJobs counter catches up on the next aggregation; the two
// writes are not a transaction and callers must tolerate brief staleness.
func (s *Service) AddJobsToBatch(ctx context.Context, batchID string, inputs []models.JobInput) ([]*models.Job, error) {
	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.HasEnded() {
		s.logger.Warn().Str("batch_id", batchID).Msg("Adding jobs to an ended batch")
	}

	jobs := make([]*models.Job, 0, len(inputs))
	for _, input := range inputs {
		job := models.NewJob(common.NewJobID(), batchID, input.FileName, input.FileSize)
		if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
		s.scheduler.Enqueue(job)
	}

	if _, err := s.aggregator.Recompute(ctx, batchID); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to recompute batch after adding jobs")
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("jobs", len(jobs)).
		Msg("Jobs added to batch")

	return jobs, nil
}

// CancelJob cancels a single job (queued or in-flight)
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	return s.scheduler.Cancel(ctx, jobID)
}

// CancelBatch cancels every non-terminal job in the batch
func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	jobs, err := s.storage.JobStorage().GetJobsForBatch(ctx, batchID)
	if err != nil {
		return err
	}

	cancelled := 0
	for _, job := range jobs {
		if job.IsTerminal() {
			continue
		}
		if err := s.scheduler.Cancel(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to cancel job")
			continue
		}
		cancelled++
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("cancelled", cancelled).
		Msg("Batch cancelled")

	return nil
}

// GetActiveBatches returns batches with status pending or processing
func (s *Service) GetActiveBatches(ctx context.Context) ([]*models.Batch, error) {
	return s.storage.BatchStorage().GetActiveBatches(ctx)
}

// GetAllBatches returns all batches
func (s *Service) GetAllBatches(ctx context.Context) ([]*models.Batch, error) {
	return s.storage.BatchStorage().GetAllBatches(ctx)
}

// GetBatch returns a single batch
func (s *Service) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.storage.BatchStorage().GetBatch(ctx, batchID)
}

// GetJobsForBatch returns the jobs belonging to a batch
func (s *Service) GetJobsForBatch(ctx context.Context, batchID string) ([]*models.Job, error) {
	return s.storage.JobStorage().GetJobsForBatch(ctx, batchID)
}

// GetJob returns a single job
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.storage.JobStorage().GetJob(ctx, jobID)
}

// RecoverOrphans fails jobs left processing by a previous run and
// re-aggregates the batches they belonged to. The engine does not guarantee
// exactly-once execution across restarts; callers decide whether to resubmit.
func (s *Service) RecoverOrphans(ctx context.Context) error {
	count, err := s.storage.JobStorage().FailProcessingJobs(ctx, "interrupted by restart")
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	s.logger.Warn().Int("jobs", count).Msg("Recovered jobs orphaned by previous run")

	active, err := s.storage.BatchStorage().GetActiveBatches(ctx)
	if err != nil {
		return err
	}
	for _, batch := range active {
		if _, err := s.aggregator.Recompute(ctx, batch.ID); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to recompute batch during recovery")
		}
	}
	return nil
}

func defaultBatchName(inputs []models.JobInput) string {
	names := make([]string, 0, 2)
	for i, input := range inputs {
		if i >= 2 {
			break
		}
		names = append(names, input.FileName)
	}
	if len(inputs) <= 2 {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(names, ", "), len(inputs)-len(names))
}
