package models

import "time"

// Session is a time-window cluster of batches. Sessions are not persisted;
// the manager keeps a process-lifetime registry for routing new work, and
// the grouper derives display clusters on demand from batch start times.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	BatchIDs  []string  `json:"batch_ids"`
}

// HasEnded reports whether the session has been explicitly ended
func (s *Session) HasEnded() bool {
	return !s.EndedAt.IsZero()
}

// SessionStats is a second-layer aggregate folded on demand from the live
// derived fields of a session's member batches. It is never cached; the fold
// is the single source of truth for session-level counters.
type SessionStats struct {
	TotalJobs     int       `json:"total_jobs"`
	CompletedJobs int       `json:"completed_jobs"`
	FailedJobs    int       `json:"failed_jobs"`
	Progress      float64   `json:"progress"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
}

// SessionGroup is one time-proximity cluster produced by the grouper
type SessionGroup struct {
	StartedAt time.Time `json:"started_at"`
	Batches   []*Batch  `json:"batches"`
}
