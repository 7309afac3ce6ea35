package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
)

// Service deletes finished jobs and batches past the configured age, on a
// cron schedule and on demand. Only completed and failed entities are
// eligible; cancelled entities are never auto-pruned.
type Service struct {
	jobs          interfaces.JobStorage
	batches       interfaces.BatchStorage
	cron          *cron.Cron
	config        *common.RetentionConfig
	sessionPruner func() int
	logger        arbor.ILogger
}

// NewService creates a retention service
func NewService(jobs interfaces.JobStorage, batches interfaces.BatchStorage, config *common.RetentionConfig, logger arbor.ILogger) *Service {
	return &Service{
		jobs:    jobs,
		batches: batches,
		config:  config,
		logger:  logger,
	}
}

// SetSessionPruner registers a callback that sweeps ended sessions from the
// in-memory registry on the same schedule as the storage cleanup
func (s *Service) SetSessionPruner(pruner func() int) {
	s.sessionPruner = pruner
}

// Start registers the cleanup sweep on the configured schedule
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Retention cleanup disabled")
		return nil
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, _, err := s.CleanupOldJobs(context.Background(), s.config.MaxAgeDays); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled retention cleanup failed")
		}
		if s.sessionPruner != nil {
			if pruned := s.sessionPruner(); pruned > 0 {
				s.logger.Info().Int("sessions_pruned", pruned).Msg("Ended sessions swept from registry")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention cleanup: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Int("max_age_days", s.config.MaxAgeDays).
		Msg("Retention cleanup scheduled")
	return nil
}

// Stop stops the cron runner
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// CleanupOldJobs deletes completed and failed jobs and batches whose end
// timestamp is older than the given number of days. Returns the number of
// jobs and batches deleted.
func (s *Service) CleanupOldJobs(ctx context.Context, olderThanDays int) (int, int, error) {
	if olderThanDays < 1 {
		return 0, 0, fmt.Errorf("olderThanDays must be at least 1, got %d", olderThanDays)
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	jobsDeleted, err := s.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}

	batchesDeleted, err := s.batches.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return jobsDeleted, 0, err
	}

	if jobsDeleted > 0 || batchesDeleted > 0 {
		s.logger.Info().
			Int("jobs_deleted", jobsDeleted).
			Int("batches_deleted", batchesDeleted).
			Int("older_than_days", olderThanDays).
			Msg("Retention cleanup complete")
	}

	return jobsDeleted, batchesDeleted, nil
}
