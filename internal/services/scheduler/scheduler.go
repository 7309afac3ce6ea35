package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/ternarybob/curo/internal/services/batches"
)

// Scheduler executes opaque processing operations for queued jobs with a
// hard cap on simultaneous executions.
//
// Queued jobs are dispatched FIFO. Every progress report patches the job,
// triggers batch re-aggregation and publishes a JobProgressUpdate; operation
// failures are fully recovered into the job's failed state and never crash
// the dispatch loop.
//
// Cancellation is cooperative: a queued job is removed from the queue before
// the operation is ever invoked; an in-flight job only has its context
// cancelled and is marked cancelled, and any progress or result the
// operation still delivers afterwards is discarded.
type Scheduler struct {
	jobs       interfaces.JobStorage
	aggregator *batches.Aggregator
	events     interfaces.EventService
	processor  interfaces.Processor
	logger     arbor.ILogger

	maxConcurrent int

	mu       sync.Mutex
	queue    []*entry
	entries  map[string]*entry
	inflight int

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	job       *models.Job
	running   bool
	cancelled bool
	cancelOp  context.CancelFunc
}

// New creates a scheduler bounded at maxConcurrent simultaneous executions
func New(jobs interfaces.JobStorage, aggregator *batches.Aggregator, events interfaces.EventService, processor interfaces.Processor, maxConcurrent int, logger arbor.ILogger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		jobs:          jobs,
		aggregator:    aggregator,
		events:        events,
		processor:     processor,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		entries:       make(map[string]*entry),
		wake:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the dispatch loop
func (s *Scheduler) Start() {
	s.logger.Info().
		Int("max_concurrent", s.maxConcurrent).
		Msg("Starting scheduler")

	s.wg.Add(1)
	go s.dispatchLoop()
}

// Stop cancels all in-flight operation contexts and waits for the dispatch
// loop and execution goroutines to drain
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping scheduler")
	s.cancel()
	s.wg.Wait()
}

// Enqueue appends a pending job to the FIFO queue
func (s *Scheduler) Enqueue(job *models.Job) {
	s.mu.Lock()
	e := &entry{job: job}
	s.queue = append(s.queue, e)
	s.entries[job.ID] = e
	depth := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("batch_id", job.BatchID).
		Int("queue_depth", depth).
		Msg("Job enqueued")

	s.signal()
}

// QueueDepth returns the number of queued (not yet dispatched) jobs
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Cancel cancels a job. A queued job is removed from the queue without the
// operation ever being invoked; an in-flight job has its context cancelled
// and is marked cancelled, without any guarantee the operation stops.
// Cancelling a job that already reached a terminal state is an error.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	e, ok := s.entries[jobID]
	if !ok {
		s.mu.Unlock()
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.IsTerminal() {
			return fmt.Errorf("job %s is already %s", jobID, job.Status)
		}
		// Not tracked by this scheduler instance (e.g. left over from a
		// previous run); cancel directly in the store
		return s.finishCancel(ctx, job.BatchID, jobID)
	}

	if e.cancelled {
		s.mu.Unlock()
		return nil
	}
	e.cancelled = true

	if !e.running {
		for i, queued := range s.queue {
			if queued == e {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		delete(s.entries, jobID)
	} else if e.cancelOp != nil {
		e.cancelOp()
	}
	batchID := e.job.BatchID
	s.mu.Unlock()

	return s.finishCancel(ctx, batchID, jobID)
}

// finishCancel marks the job cancelled, publishes its update and triggers
// batch re-aggregation
func (s *Scheduler) finishCancel(ctx context.Context, batchID, jobID string) error {
	if err := s.jobs.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled, ""); err != nil {
		return err
	}

	s.logger.Info().Str("job_id", jobID).Msg("Job cancelled")

	s.publishJobUpdate(ctx, jobID)
	if _, err := s.aggregator.Recompute(ctx, batchID); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to recompute batch after cancel")
	}
	return nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for {
		s.fill()

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// fill dispatches queued jobs until the queue is empty or the cap is reached
func (s *Scheduler) fill() {
	for {
		s.mu.Lock()
		if s.inflight >= s.maxConcurrent || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		e.running = true
		s.inflight++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.run(e)
	}
}

func (s *Scheduler) run(e *entry) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.inflight--
		delete(s.entries, e.job.ID)
		s.mu.Unlock()
		s.signal()
	}()

	ctx := s.ctx
	job := e.job

	if err := s.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing, ""); err != nil {
		// Dispatch failure: the job goes directly to failed
		s.failJob(ctx, job, fmt.Sprintf("dispatch failed: %v", err))
		return
	}
	if s.isCancelled(e) {
		return
	}

	s.publishJobUpdate(ctx, job.ID)
	s.recompute(ctx, job.BatchID)

	opCtx, cancelOp := context.WithCancel(ctx)
	defer cancelOp()
	s.mu.Lock()
	e.cancelOp = cancelOp
	s.mu.Unlock()

	startedAt := time.Now()
	report := func(percent int) {
		if s.isCancelled(e) {
			return
		}
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}

		eta := estimateRemaining(startedAt, percent)
		if err := s.jobs.UpdateJobProgress(ctx, job.ID, percent, eta); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job progress")
			return
		}

		s.publishJobUpdate(ctx, job.ID)
		s.recompute(ctx, job.BatchID)
	}

	outputRef, err := s.processor.Process(opCtx, job, report)

	// A cancelled job's late result is discarded
	if s.isCancelled(e) {
		return
	}

	if err != nil {
		s.failJob(ctx, job, err.Error())
		return
	}

	if err := s.jobs.CompleteJob(ctx, job.ID, outputRef); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to complete job")
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("batch_id", job.BatchID).
		Dur("duration", time.Since(startedAt)).
		Msg("Job completed")

	s.publishJobUpdate(ctx, job.ID)
	s.recompute(ctx, job.BatchID)
}

// failJob captures the error message verbatim into the job's failed state;
// operation errors are reported only via the terminal state and its events
func (s *Scheduler) failJob(ctx context.Context, job *models.Job, errorMsg string) {
	if err := s.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, errorMsg); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
		return
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Str("batch_id", job.BatchID).
		Str("error", errorMsg).
		Msg("Job failed")

	s.publishJobUpdate(ctx, job.ID)
	s.recompute(ctx, job.BatchID)
}

func (s *Scheduler) isCancelled(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.cancelled
}

func (s *Scheduler) publishJobUpdate(ctx context.Context, jobID string) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load job for event")
		}
		return
	}

	s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobProgress,
		Payload: models.JobProgressUpdate{
			JobID:    job.ID,
			BatchID:  job.BatchID,
			Progress: job.Progress,
			Status:   job.Status,
			ETA:      job.ETA,
			Error:    job.Error,
		},
	})
}

func (s *Scheduler) recompute(ctx context.Context, batchID string) {
	if _, err := s.aggregator.Recompute(ctx, batchID); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Batch aggregation failed")
	}
}

// estimateRemaining projects time remaining from elapsed time and reported
// percentage; nil until the operation reports meaningful progress
func estimateRemaining(startedAt time.Time, percent int) *time.Duration {
	if percent <= 0 || percent > 100 {
		return nil
	}
	elapsed := time.Since(startedAt)
	remaining := time.Duration(float64(elapsed) * float64(100-percent) / float64(percent))
	return &remaining
}
