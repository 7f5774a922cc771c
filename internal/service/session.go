package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// FilterSession owns the mutable filter list for one cohort-building session
// and the cohort state derived from it. All mutations run under a single
// mutex and recompute the derived state synchronously before returning, so a
// caller never observes a filter list and a patient count from different
// moments.
type FilterSession struct {
	mu sync.Mutex

	id        string
	filters   []*domain.Filter
	state     domain.CohortState
	engine    *AnalyticsEngine
	logger    *logrus.Logger
	updatedAt time.Time
}

// NewFilterSession creates an empty session backed by the analytics engine
func NewFilterSession(id string, engine *AnalyticsEngine, logger *logrus.Logger) *FilterSession {
	s := &FilterSession{
		id:     id,
		engine: engine,
		logger: logger,
	}
	s.recompute()
	return s
}

// ID returns the session identifier
func (s *FilterSession) ID() string {
	return s.id
}

// AddFilter appends a filter and returns the recomputed cohort state
func (s *FilterSession) AddFilter(f *domain.Filter) domain.CohortState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = append(s.filters, f)
	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"filter_id":  f.ID,
		"type":       f.Kind,
	}).Info("Added filter to session")

	return s.recompute()
}

// RemoveFilter removes the filter with the given ID and returns the
// recomputed state. An unknown ID is a silent no-op: the state is returned
// unchanged, matching the remove-if-present contract of the filter list.
func (s *FilterSession) RemoveFilter(filterID string) domain.CohortState {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.filters {
		if f.ID == filterID {
			s.filters = append(s.filters[:i], s.filters[i+1:]...)
			s.logger.WithFields(logrus.Fields{
				"session_id": s.id,
				"filter_id":  filterID,
			}).Info("Removed filter from session")
			return s.recompute()
		}
	}

	return s.state
}

// ToggleFilter flips the enabled flag of the filter with the given ID and
// returns the recomputed state. Unknown IDs are a silent no-op.
func (s *FilterSession) ToggleFilter(filterID string) domain.CohortState {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.filters {
		if f.ID == filterID {
			f.Toggle()
			s.logger.WithFields(logrus.Fields{
				"session_id": s.id,
				"filter_id":  filterID,
				"enabled":    f.Enabled,
			}).Info("Toggled filter")
			return s.recompute()
		}
	}

	return s.state
}

// ClearAll removes every filter and returns the recomputed state
func (s *FilterSession) ClearAll() domain.CohortState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = nil
	s.logger.WithField("session_id", s.id).Info("Cleared all filters")
	return s.recompute()
}

// State returns the current derived cohort state
func (s *FilterSession) State() domain.CohortState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Filters returns a copy of the current filter list
func (s *FilterSession) Filters() []*domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Filter(nil), s.filters...)
}

// Snapshot materializes the cohort for the current enabled filter set
func (s *FilterSession) Snapshot() *CohortSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot(s.id, s.filters)
}

// recompute rebuilds the derived state from the filter list. Callers must
// hold the mutex. Enabled filters get their affected counts refreshed;
// disabled filters keep whatever count they last carried, which makes a
// disable and re-enable land back on the same numbers.
func (s *FilterSession) recompute() domain.CohortState {
	snap := s.engine.Snapshot(s.id, s.filters)

	for _, f := range s.filters {
		if f.Enabled {
			count := s.engine.FilterAffectedCount(f)
			f.AffectedCount = &count
		}
	}

	s.state = domain.CohortState{
		CohortID:     s.id,
		PatientCount: snap.PatientCount,
		Filters:      append([]*domain.Filter(nil), s.filters...),
		ComputedAt:   snap.ComputedAt,
	}
	s.updatedAt = snap.ComputedAt
	return s.state
}

// SessionManager tracks live filter sessions by ID
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*FilterSession
	engine   *AnalyticsEngine
	logger   *logrus.Logger
}

// NewSessionManager creates an empty session manager
func NewSessionManager(engine *AnalyticsEngine, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*FilterSession),
		engine:   engine,
		logger:   logger,
	}
}

// Create starts a new session with a generated ID
func (m *SessionManager) Create() *FilterSession {
	session := NewFilterSession(uuid.New().String(), m.engine, m.logger)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.WithField("session_id", session.ID()).Info("Created filter session")
	return session
}

// Get returns the session with the given ID, or nil when none exists
func (m *SessionManager) Get(sessionID string) *FilterSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// GetOrCreate returns the session with the given ID, creating it on demand.
// Unlike Create the caller chooses the ID, which lets clients resume a
// session across reconnects.
func (m *SessionManager) GetOrCreate(sessionID string) *FilterSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[sessionID]; ok {
		return session
	}
	session := NewFilterSession(sessionID, m.engine, m.logger)
	m.sessions[sessionID] = session
	return session
}

// Delete removes a session. Deleting an unknown ID is a no-op.
func (m *SessionManager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
