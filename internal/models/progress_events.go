package models

import "time"

// JobProgressUpdate is the event payload published every time a job's
// progress or status changes
type JobProgressUpdate struct {
	JobID    string         `json:"job_id"`
	BatchID  string         `json:"batch_id"`
	Progress int            `json:"progress"`
	Status   JobStatus      `json:"status"`
	ETA      *time.Duration `json:"estimated_time_remaining,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// BatchProgressUpdate is the event payload published after every batch
// re-aggregation
type BatchProgressUpdate struct {
	BatchID       string         `json:"batch_id"`
	Progress      float64        `json:"progress"`
	Status        JobStatus      `json:"status"`
	CompletedJobs int            `json:"completed_jobs"`
	FailedJobs    int            `json:"failed_jobs"`
	ETA           *time.Duration `json:"estimated_time_remaining,omitempty"`
}
