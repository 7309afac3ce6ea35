package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
)

// Manager owns the process-wide session registry and the "current session"
// pointer used to route newly submitted work. It is instance state, not a
// package-level singleton, so independent engine instances can coexist.
//
// Sessions are ephemeral: the registry starts empty at process start and
// ended sessions are swept by Prune after a configurable age. Session-level
// counters are always folded from live batch data on demand; the manager
// never maintains its own counters.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	current  string

	window   time.Duration
	pruneAge time.Duration

	batches interfaces.BatchStorage
	logger  arbor.ILogger
}

// NewManager creates a session manager with an empty registry
func NewManager(batches interfaces.BatchStorage, window, pruneAge time.Duration, logger arbor.ILogger) *Manager {
	return &Manager{
		sessions: make(map[string]*models.Session),
		window:   window,
		pruneAge: pruneAge,
		batches:  batches,
		logger:   logger,
	}
}

// CreateSession allocates a new active session and makes it current
func (m *Manager) CreateSession(name string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSessionLocked(name)
}

func (m *Manager) createSessionLocked(name string) *models.Session {
	session := &models.Session{
		ID:        common.NewSessionID(),
		Name:      name,
		Active:    true,
		StartedAt: time.Now(),
	}
	m.sessions[session.ID] = session
	m.current = session.ID

	m.logger.Info().
		Str("session_id", session.ID).
		Str("name", name).
		Msg("Session created")

	return copySession(session)
}

// EndSession marks a session inactive and stamps its end time. Ending an
// already-ended session is a no-op.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}

	if session.Active {
		session.Active = false
		session.EndedAt = time.Now()
		m.logger.Info().Str("session_id", sessionID).Msg("Session ended")
	}
	if m.current == sessionID {
		m.current = ""
	}
	return nil
}

// GetSession returns a session by ID
func (m *Manager) GetSession(sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}
	return copySession(session), nil
}

// Sessions returns all registered sessions
func (m *Manager) Sessions() []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, copySession(session))
	}
	return result
}

// ResolveSession decides which session newly submitted work joins.
// An explicit session ID routes there unconditionally. Otherwise the current
// session is reused while it is active and younger than the window; anything
// else starts a new session and makes it current.
func (m *Manager) ResolveSession(explicitID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if explicitID != "" {
		session, ok := m.sessions[explicitID]
		if !ok {
			return nil, fmt.Errorf("session %s: %w", explicitID, interfaces.ErrNotFound)
		}
		return copySession(session), nil
	}

	if m.current != "" {
		if session, ok := m.sessions[m.current]; ok {
			if session.Active && time.Since(session.StartedAt) < m.window {
				return copySession(session), nil
			}
		}
	}

	name := fmt.Sprintf("Session %s", time.Now().Format("2006-01-02 15:04"))
	return m.createSessionLocked(name), nil
}

// CreateBatch allocates a fresh batch, persists it pending and appends it to
// the session's batch list. The batch is persisted before the session learns
// about it so a failed save never leaves the session referencing a batch
// that was never stored.
func (m *Manager) CreateBatch(ctx context.Context, sessionID, name string) (*models.Batch, error) {
	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}
	m.mu.Unlock()

	batch := models.NewBatch(common.NewBatchID(), name)
	if err := m.batches.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if session, ok := m.sessions[sessionID]; ok {
		session.BatchIDs = append(session.BatchIDs, batch.ID)
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("batch_id", batch.ID).
		Str("session_id", sessionID).
		Str("name", name).
		Msg("Batch created")

	return batch, nil
}

// SessionStats folds session-level statistics from the live derived fields
// of the session's member batches. The fold is the source of truth; batches
// already pruned from storage are skipped.
func (m *Manager) SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", sessionID, interfaces.ErrNotFound)
	}
	batchIDs := append([]string(nil), session.BatchIDs...)
	stats := &models.SessionStats{
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
	}
	m.mu.Unlock()

	progressSum := 0.0
	counted := 0
	for _, batchID := range batchIDs {
		batch, err := m.batches.GetBatch(ctx, batchID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return nil, err
		}
		stats.TotalJobs += batch.TotalJobs
		stats.CompletedJobs += batch.CompletedJobs
		stats.FailedJobs += batch.FailedJobs
		progressSum += batch.Progress
		counted++
	}

	if counted > 0 {
		stats.Progress = progressSum / float64(counted)
	}
	return stats, nil
}

// GroupedBatches clusters all stored batches into display groups using the
// manager's window
func (m *Manager) GroupedBatches(ctx context.Context) ([]models.SessionGroup, error) {
	batches, err := m.batches.GetAllBatches(ctx)
	if err != nil {
		return nil, err
	}
	return GroupBatches(batches, m.window), nil
}

// Prune removes ended sessions whose end time is older than the configured
// prune age. Active sessions are never pruned.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.pruneAge)
	removed := 0
	for id, session := range m.sessions {
		if !session.Active && session.HasEnded() && session.EndedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Pruned ended sessions")
	}
	return removed
}

func copySession(s *models.Session) *models.Session {
	clone := *s
	clone.BatchIDs = append([]string(nil), s.BatchIDs...)
	return &clone
}
