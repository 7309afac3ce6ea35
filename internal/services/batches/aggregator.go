package batches

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
)

// Aggregator derives a batch's status, progress, counters and ETA from its
// member jobs. It is invoked every time a member job mutates; aggregation is
// eventually consistent, a recompute may observe one job advanced while a
// sibling patch is still in flight.
type Aggregator struct {
	jobs    interfaces.JobStorage
	batches interfaces.BatchStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewAggregator creates a new batch aggregator
func NewAggregator(jobs interfaces.JobStorage, batches interfaces.BatchStorage, events interfaces.EventService, logger arbor.ILogger) *Aggregator {
	return &Aggregator{
		jobs:    jobs,
		batches: batches,
		events:  events,
		logger:  logger,
	}
}

// Recompute fetches the batch and its member jobs, folds the derived fields,
// persists the result and publishes a BatchProgressUpdate event.
func (a *Aggregator) Recompute(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := a.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	jobs, err := a.jobs.GetJobsForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	Fold(batch, jobs)

	if err := a.batches.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	a.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventBatchProgress,
		Payload: models.BatchProgressUpdate{
			BatchID:       batch.ID,
			Progress:      batch.Progress,
			Status:        batch.Status,
			CompletedJobs: batch.CompletedJobs,
			FailedJobs:    batch.FailedJobs,
			ETA:           batch.ETA,
		},
	})

	return batch, nil
}

// Fold applies the aggregation to batch in place from the given member jobs.
// Running it twice over an unchanged job set yields identical derived fields;
// the end timestamp is stamped once and never re-stamped.
//
// Status priority: any processing member wins; then all-completed; then
// all-failed; then all-terminal (mixed outcomes collapse to completed, callers
// inspect FailedJobs to distinguish partial failure); otherwise pending.
// An empty batch stays pending.
func Fold(batch *models.Batch, jobs []*models.Job) {
	total := len(jobs)
	completed, failed, processing := 0, 0, 0
	progressSum := 0
	var eta *time.Duration

	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusCompleted:
			completed++
		case models.JobStatusFailed:
			failed++
		case models.JobStatusProcessing:
			processing++
			// Worst case across processing members, not an average
			if job.ETA != nil && (eta == nil || *job.ETA > *eta) {
				v := *job.ETA
				eta = &v
			}
		}
		progressSum += job.Progress
	}

	batch.TotalJobs = total
	batch.CompletedJobs = completed
	batch.FailedJobs = failed

	batch.Progress = 0
	if total > 0 {
		batch.Progress = float64(progressSum) / float64(total)
	}

	switch {
	case processing > 0:
		batch.Status = models.JobStatusProcessing
	case total > 0 && completed == total:
		batch.Status = models.JobStatusCompleted
	case total > 0 && failed == total:
		batch.Status = models.JobStatusFailed
	case total > 0 && completed+failed == total:
		batch.Status = models.JobStatusCompleted
	default:
		batch.Status = models.JobStatusPending
	}

	batch.ETA = eta

	if (batch.Status == models.JobStatusCompleted || batch.Status == models.JobStatusFailed) && batch.CompletedAt.IsZero() {
		batch.CompletedAt = time.Now()
	}
}
