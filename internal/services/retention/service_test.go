package retention

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
)

// sweepRecorder records the cutoff passed to DeleteFinishedBefore and stubs
// the rest of the storage interfaces.
type sweepRecorder struct {
	cutoff  time.Time
	deleted int
}

func (r *sweepRecorder) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.cutoff = cutoff
	return r.deleted, nil
}

type jobSweep struct{ sweepRecorder }

func (j *jobSweep) SaveJob(ctx context.Context, job *models.Job) error { return nil }
func (j *jobSweep) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, interfaces.ErrNotFound
}
func (j *jobSweep) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	return nil
}
func (j *jobSweep) CompleteJob(ctx context.Context, jobID string, outputRef string) error {
	return nil
}
func (j *jobSweep) UpdateJobProgress(ctx context.Context, jobID string, progress int, eta *time.Duration) error {
	return nil
}
func (j *jobSweep) GetJobsForBatch(ctx context.Context, batchID string) ([]*models.Job, error) {
	return nil, nil
}
func (j *jobSweep) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return nil, nil
}
func (j *jobSweep) DeleteJob(ctx context.Context, jobID string) error { return nil }
func (j *jobSweep) CountJobs(ctx context.Context) (int, error)        { return 0, nil }
func (j *jobSweep) FailProcessingJobs(ctx context.Context, reason string) (int, error) {
	return 0, nil
}

type batchSweep struct{ sweepRecorder }

func (b *batchSweep) SaveBatch(ctx context.Context, batch *models.Batch) error { return nil }
func (b *batchSweep) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return nil, interfaces.ErrNotFound
}
func (b *batchSweep) GetAllBatches(ctx context.Context) ([]*models.Batch, error)    { return nil, nil }
func (b *batchSweep) GetActiveBatches(ctx context.Context) ([]*models.Batch, error) { return nil, nil }
func (b *batchSweep) DeleteBatch(ctx context.Context, batchID string) error         { return nil }
func (b *batchSweep) CountBatches(ctx context.Context) (int, error)                 { return 0, nil }

func TestCleanupOldJobs(t *testing.T) {
	jobs := &jobSweep{sweepRecorder{deleted: 3}}
	batches := &batchSweep{sweepRecorder{deleted: 1}}
	config := &common.RetentionConfig{Enabled: true, Schedule: "0 3 * * *", MaxAgeDays: 7}
	service := NewService(jobs, batches, config, arbor.NewLogger())

	jobsDeleted, batchesDeleted, err := service.CleanupOldJobs(context.Background(), 7)
	if err != nil {
		t.Fatalf("CleanupOldJobs failed: %v", err)
	}

	if jobsDeleted != 3 || batchesDeleted != 1 {
		t.Errorf("Expected 3 jobs and 1 batch deleted, got %d/%d", jobsDeleted, batchesDeleted)
	}

	expected := time.Now().AddDate(0, 0, -7)
	for _, cutoff := range []time.Time{jobs.cutoff, batches.cutoff} {
		diff := expected.Sub(cutoff)
		if diff < -time.Minute || diff > time.Minute {
			t.Errorf("Expected cutoff near %v, got %v", expected, cutoff)
		}
	}
}

func TestCleanupOldJobs_RejectsNonPositiveAge(t *testing.T) {
	service := NewService(&jobSweep{}, &batchSweep{}, &common.RetentionConfig{}, arbor.NewLogger())

	if _, _, err := service.CleanupOldJobs(context.Background(), 0); err == nil {
		t.Error("Expected error for zero age")
	}
	if _, _, err := service.CleanupOldJobs(context.Background(), -3); err == nil {
		t.Error("Expected error for negative age")
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	config := &common.RetentionConfig{Enabled: false}
	service := NewService(&jobSweep{}, &batchSweep{}, config, arbor.NewLogger())

	if err := service.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	service.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	config := &common.RetentionConfig{Enabled: true, Schedule: "not a schedule", MaxAgeDays: 7}
	service := NewService(&jobSweep{}, &batchSweep{}, config, arbor.NewLogger())

	if err := service.Start(); err == nil {
		t.Error("Expected error for invalid cron schedule")
		service.Stop()
	}
}
