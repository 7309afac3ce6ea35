package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a processing job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents one unit of processing work over a single input.
//
// Lifecycle: pending -> processing -> {completed | failed | cancelled}.
// No transition leaves a terminal state. A retry is a new Job with a fresh ID,
// never a resurrection of an existing one.
//
// Invariants maintained by the Mark* methods:
//   - CompletedAt is set exactly once, on entering a terminal status
//   - Error is set only when status is failed
//   - Progress is 100 iff status is completed; cancelled/failed jobs keep
//     whatever progress they last reported
type Job struct {
	ID      string `json:"id" badgerhold:"key"`
	BatchID string `json:"batch_id" badgerhold:"index"`

	// Input descriptor
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`

	Status   JobStatus `json:"status" badgerhold:"index"`
	Progress int       `json:"progress"` // 0-100, monotonic while processing

	// ETA is advisory only and may fluctuate; nil when the operation has not
	// reported one
	ETA *time.Duration `json:"estimated_time_remaining,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`   // zero until dispatched
	CompletedAt time.Time `json:"completed_at,omitempty"` // zero until terminal

	// Error contains the failure message, surfaced verbatim from the
	// processing operation. Only populated when status is failed.
	Error string `json:"error,omitempty"`

	// OutputRef references the produced output. Only populated when status
	// is completed.
	OutputRef string `json:"output_ref,omitempty"`
}

// JobInput describes one input submitted for processing
type JobInput struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// NewJob creates a pending job for the given batch and input descriptor
func NewJob(id, batchID, fileName string, fileSize int64) *Job {
	return &Job{
		ID:        id,
		BatchID:   batchID,
		FileName:  fileName,
		FileSize:  fileSize,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Validate checks required fields before persistence
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.BatchID == "" {
		return fmt.Errorf("job batch ID is required")
	}
	if j.FileName == "" {
		return fmt.Errorf("job file name is required")
	}
	return nil
}

// IsTerminal returns true if the job reached a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// HasEnded reports whether the end timestamp has been stamped
func (j *Job) HasEnded() bool {
	return !j.CompletedAt.IsZero()
}

// MarkProcessing transitions the job to processing at dispatch time
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.StartedAt = time.Now()
}

// MarkCompleted transitions the job to completed with its output reference
func (j *Job) MarkCompleted(outputRef string) {
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.OutputRef = outputRef
	j.ETA = nil
	j.CompletedAt = time.Now()
}

// MarkFailed transitions the job to failed, capturing the error message.
// Progress is left at its last reported value.
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	j.ETA = nil
	j.CompletedAt = time.Now()
}

// MarkCancelled transitions the job to cancelled. Progress is left at
// whatever value it had; callers must not assume 0 or 100.
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	j.ETA = nil
	j.CompletedAt = time.Now()
}
