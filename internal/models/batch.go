package models

import (
	"fmt"
	"time"
)

// Batch is a named group of jobs submitted together or auto-grouped into a
// session window. Status, Progress, the job counters and ETA are derived from
// the member jobs by the aggregator every time a member job changes; they are
// never written directly by callers.
//
// A batch with all members terminal reports status completed even when some
// members failed. Callers distinguish full success from partial failure by
// inspecting FailedJobs, not Status.
type Batch struct {
	ID   string `json:"id" badgerhold:"key"`
	Name string `json:"name"`

	Status   JobStatus `json:"status" badgerhold:"index"`
	Progress float64   `json:"progress"` // 0-100, unweighted mean of member job progress

	TotalJobs     int `json:"total_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`

	// ETA is the maximum ETA among currently processing member jobs that
	// report one; nil when none do
	ETA *time.Duration `json:"estimated_time_remaining,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"` // stamped once, when all members are terminal
}

// NewBatch creates an empty pending batch
func NewBatch(id, name string) *Batch {
	return &Batch{
		ID:        id,
		Name:      name,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Validate checks required fields before persistence
func (b *Batch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if b.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	return nil
}

// IsTerminal returns true if the batch reached a terminal state
func (b *Batch) IsTerminal() bool {
	return b.Status.IsTerminal()
}

// HasEnded reports whether the end timestamp has been stamped
func (b *Batch) HasEnded() bool {
	return !b.CompletedAt.IsZero()
}
