package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/ternarybob/curo/internal/services/batches"
	"github.com/ternarybob/curo/internal/services/events"
)

// Thread-safe in-memory stores honoring the storage contracts the scheduler
// relies on: terminal states are final and progress is monotonic.

type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]*models.Job)}
}

func (m *memJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (m *memJobStorage) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return interfaces.ErrNotFound
	}
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
	}
	return nil
}

func (m *memJobStorage) CompleteJob(ctx context.Context, jobID string, outputRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.IsTerminal() {
		return nil
	}
	job.MarkCompleted(outputRef)
	return nil
}

func (m *memJobStorage) UpdateJobProgress(ctx context.Context, jobID string, progress int, eta *time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return nil
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.ETA = eta
	return nil
}

func (m *memJobStorage) GetJobsForBatch(ctx context.Context, batchID string) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.BatchID == batchID {
			clone := *job
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *memJobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.Status == status {
			clone := *job
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *memJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memJobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (m *memJobStorage) CountJobs(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func (m *memJobStorage) FailProcessingJobs(ctx context.Context, reason string) (int, error) {
	return 0, nil
}

type memBatchStorage struct {
	mu      sync.Mutex
	batches map[string]*models.Batch
}

func newMemBatchStorage() *memBatchStorage {
	return &memBatchStorage{batches: make(map[string]*models.Batch)}
}

func (m *memBatchStorage) SaveBatch(ctx context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *batch
	m.batches[batch.ID] = &clone
	return nil
}

func (m *memBatchStorage) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *batch
	return &clone, nil
}

func (m *memBatchStorage) GetAllBatches(ctx context.Context) ([]*models.Batch, error) {
	return nil, nil
}

func (m *memBatchStorage) GetActiveBatches(ctx context.Context) ([]*models.Batch, error) {
	return nil, nil
}

func (m *memBatchStorage) DeleteBatch(ctx context.Context, batchID string) error { return nil }

func (m *memBatchStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (m *memBatchStorage) CountBatches(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches), nil
}

type testEnv struct {
	jobs       *memJobStorage
	batchStore *memBatchStorage
	scheduler  *Scheduler
}

func newTestEnv(t *testing.T, processor interfaces.Processor, maxConcurrent int) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()
	jobStore := newMemJobStorage()
	batchStore := newMemBatchStorage()
	eventService := events.NewService(logger)
	aggregator := batches.NewAggregator(jobStore, batchStore, eventService, logger)

	sched := New(jobStore, aggregator, eventService, processor, maxConcurrent, logger)
	sched.Start()
	t.Cleanup(func() {
		sched.Stop()
		eventService.Close()
	})

	return &testEnv{jobs: jobStore, batchStore: batchStore, scheduler: sched}
}

func (e *testEnv) addJob(t *testing.T, id, batchID string) *models.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := e.batchStore.GetBatch(ctx, batchID); errors.Is(err, interfaces.ErrNotFound) {
		e.batchStore.SaveBatch(ctx, models.NewBatch(batchID, batchID))
	}
	job := models.NewJob(id, batchID, id+".pdf", 100)
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	return job
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestScheduler_CompletesJob(t *testing.T) {
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		report(50)
		return "/output/" + job.ID, nil
	})
	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	job := env.addJob(t, "job_1", "batch_1")
	env.scheduler.Enqueue(job)

	waitFor(t, 2*time.Second, "job completion", func() bool {
		stored, err := env.jobs.GetJob(ctx, "job_1")
		return err == nil && stored.Status == models.JobStatusCompleted
	})

	stored, _ := env.jobs.GetJob(ctx, "job_1")
	if stored.Progress != 100 {
		t.Errorf("Completed job must report progress 100, got %d", stored.Progress)
	}
	if stored.OutputRef != "/output/job_1" {
		t.Errorf("Expected output reference, got %q", stored.OutputRef)
	}
	if !stored.HasEnded() {
		t.Error("Completed job must carry an end timestamp")
	}

	waitFor(t, 2*time.Second, "batch completion", func() bool {
		batch, err := env.batchStore.GetBatch(ctx, "batch_1")
		return err == nil && batch.Status == models.JobStatusCompleted
	})
}

func TestScheduler_ConcurrencyCap(t *testing.T) {
	var running, peak int32
	release := make(chan struct{})
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		current := atomic.AddInt32(&running, 1)
		for {
			observed := atomic.LoadInt32(&peak)
			if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return "done", nil
	})

	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	for _, id := range []string{"job_1", "job_2", "job_3", "job_4", "job_5"} {
		env.scheduler.Enqueue(env.addJob(t, id, "batch_1"))
	}

	waitFor(t, 2*time.Second, "two jobs in flight", func() bool {
		return atomic.LoadInt32(&running) == 2
	})

	// The remaining three must hold in the queue while both slots are busy
	if depth := env.scheduler.QueueDepth(); depth != 3 {
		t.Errorf("Expected queue depth 3, got %d", depth)
	}

	close(release)

	waitFor(t, 2*time.Second, "all jobs completed", func() bool {
		completed, _ := env.jobs.GetJobsByStatus(ctx, models.JobStatusCompleted)
		return len(completed) == 5
	})

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("Concurrency cap violated: peak %d", p)
	}
}

func TestScheduler_FailureCapturedVerbatim(t *testing.T) {
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		report(30)
		return "", errors.New("decode error")
	})
	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	env.scheduler.Enqueue(env.addJob(t, "job_1", "batch_1"))

	waitFor(t, 2*time.Second, "job failure", func() bool {
		stored, err := env.jobs.GetJob(ctx, "job_1")
		return err == nil && stored.Status == models.JobStatusFailed
	})

	stored, _ := env.jobs.GetJob(ctx, "job_1")
	if stored.Error != "decode error" {
		t.Errorf("Expected verbatim error message, got %q", stored.Error)
	}
	if stored.Progress != 30 {
		t.Errorf("Failed job keeps its last reported progress, got %d", stored.Progress)
	}

	waitFor(t, 2*time.Second, "batch failure", func() bool {
		batch, err := env.batchStore.GetBatch(ctx, "batch_1")
		return err == nil && batch.Status == models.JobStatusFailed
	})
}

func TestScheduler_CancelQueuedNeverInvokesOperation(t *testing.T) {
	var invoked sync.Map
	release := make(chan struct{})
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		invoked.Store(job.ID, true)
		<-release
		return "done", nil
	})

	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	// Fill both slots, then queue a third
	env.scheduler.Enqueue(env.addJob(t, "job_1", "batch_1"))
	env.scheduler.Enqueue(env.addJob(t, "job_2", "batch_1"))
	env.scheduler.Enqueue(env.addJob(t, "job_3", "batch_1"))

	waitFor(t, 2*time.Second, "third job queued behind busy slots", func() bool {
		return env.scheduler.QueueDepth() == 1
	})

	if err := env.scheduler.Cancel(ctx, "job_3"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	stored, _ := env.jobs.GetJob(ctx, "job_3")
	if stored.Status != models.JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", stored.Status)
	}

	close(release)

	waitFor(t, 2*time.Second, "remaining jobs completed", func() bool {
		completed, _ := env.jobs.GetJobsByStatus(ctx, models.JobStatusCompleted)
		return len(completed) == 2
	})

	if _, ok := invoked.Load("job_3"); ok {
		t.Error("Cancelled queued job's operation must never be invoked")
	}
}

func TestScheduler_CancelInFlightDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		close(started)
		<-ctx.Done()
		// Deliver a late result after cancellation; it must be discarded
		report(99)
		return "/output/late", nil
	})

	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	env.scheduler.Enqueue(env.addJob(t, "job_1", "batch_1"))
	<-started

	waitFor(t, 2*time.Second, "job marked processing", func() bool {
		stored, err := env.jobs.GetJob(ctx, "job_1")
		return err == nil && stored.Status == models.JobStatusProcessing
	})

	if err := env.scheduler.Cancel(ctx, "job_1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	waitFor(t, 2*time.Second, "job cancelled", func() bool {
		stored, err := env.jobs.GetJob(ctx, "job_1")
		return err == nil && stored.Status == models.JobStatusCancelled
	})

	// Give the operation goroutine time to return its late result
	time.Sleep(50 * time.Millisecond)

	stored, _ := env.jobs.GetJob(ctx, "job_1")
	if stored.Status != models.JobStatusCancelled {
		t.Errorf("Late result must not resurrect a cancelled job, got %s", stored.Status)
	}
	if stored.OutputRef != "" {
		t.Errorf("Late output must be discarded, got %q", stored.OutputRef)
	}
	if stored.Progress == 99 {
		t.Error("Late progress must be discarded")
	}
}

func TestScheduler_CancelTerminalJobIsError(t *testing.T) {
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		return "done", nil
	})
	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	env.scheduler.Enqueue(env.addJob(t, "job_1", "batch_1"))

	waitFor(t, 2*time.Second, "job completion", func() bool {
		stored, err := env.jobs.GetJob(ctx, "job_1")
		return err == nil && stored.Status == models.JobStatusCompleted
	})

	if err := env.scheduler.Cancel(ctx, "job_1"); err == nil {
		t.Error("Cancelling a completed job must be an error")
	}
}

func TestScheduler_CancelUnknownJob(t *testing.T) {
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		return "done", nil
	})
	env := newTestEnv(t, processor, 2)

	err := env.scheduler.Cancel(context.Background(), "job_missing")
	if !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_ThreeJobBatchLifecycle(t *testing.T) {
	processor := interfaces.ProcessorFunc(func(ctx context.Context, job *models.Job, report interfaces.ProgressFunc) (string, error) {
		report(25)
		report(75)
		if job.ID == "job_2" {
			return "", errors.New("corrupt input")
		}
		return "/output/" + job.ID, nil
	})
	env := newTestEnv(t, processor, 2)
	ctx := context.Background()

	for _, id := range []string{"job_1", "job_2", "job_3"} {
		env.scheduler.Enqueue(env.addJob(t, id, "batch_1"))
	}

	waitFor(t, 2*time.Second, "all members terminal", func() bool {
		jobs, _ := env.jobs.GetJobsForBatch(ctx, "batch_1")
		for _, job := range jobs {
			if !job.IsTerminal() {
				return false
			}
		}
		return len(jobs) == 3
	})

	waitFor(t, 2*time.Second, "batch aggregation settled", func() bool {
		batch, err := env.batchStore.GetBatch(ctx, "batch_1")
		return err == nil && batch.Status == models.JobStatusCompleted
	})

	batch, _ := env.batchStore.GetBatch(ctx, "batch_1")
	if batch.CompletedJobs != 2 || batch.FailedJobs != 1 {
		t.Errorf("Expected 2 completed and 1 failed, got %d/%d", batch.CompletedJobs, batch.FailedJobs)
	}
	if !batch.HasEnded() {
		t.Error("Batch with all members terminal must carry an end timestamp")
	}
}

func TestEstimateRemaining(t *testing.T) {
	if eta := estimateRemaining(time.Now(), 0); eta != nil {
		t.Error("No estimate before meaningful progress")
	}

	startedAt := time.Now().Add(-time.Minute)
	eta := estimateRemaining(startedAt, 50)
	if eta == nil {
		t.Fatal("Expected an estimate at 50 percent")
	}
	// One minute elapsed at half way projects roughly one minute remaining
	if *eta < 55*time.Second || *eta > 65*time.Second {
		t.Errorf("Expected roughly one minute remaining, got %v", *eta)
	}

	if eta := estimateRemaining(startedAt, 100); eta == nil || *eta != 0 {
		t.Error("Complete progress must project zero remaining")
	}
}
