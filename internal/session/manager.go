package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/service"
)

// EngineFactory creates the ranking engine of a new session
type EngineFactory func() *service.RankingEngine

// Manager owns the live sessions
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	newEngine EngineFactory
	graphs    *service.GraphBuilder
	ttl       time.Duration
	logger    *logrus.Logger
	onCount   func(int)
}

// NewManager creates a session manager. ttl <= 0 disables expiry.
func NewManager(newEngine EngineFactory, graphs *service.GraphBuilder, ttl time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		newEngine: newEngine,
		graphs:    graphs,
		ttl:       ttl,
		logger:    logger,
	}
}

// OnCountChange registers fn to receive the live session count.
func (m *Manager) OnCountChange(fn func(int)) {
	m.mu.Lock()
	m.onCount = fn
	m.mu.Unlock()
}

// Create starts a new session for userID.
func (m *Manager) Create(userID string) *Session {
	s := New(uuid.NewString(), userID, m.newEngine(), m.graphs)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count, fn := len(m.sessions), m.onCount
	m.mu.Unlock()

	if fn != nil {
		fn(count)
	}
	m.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"user_id":    userID,
	}).Info("Session created")
	return s
}

// Get returns the session with id and records activity on it.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	s.Touch()
	return s, nil
}

// Delete closes and removes the session with id.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count, fn := len(m.sessions), m.onCount
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	if fn != nil {
		fn(count)
	}
	m.logger.WithField("session_id", id).Info("Session closed")
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired closes sessions idle for longer than the ttl.
func (m *Manager) CleanupExpired(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastAccess()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	count, fn := len(m.sessions), m.onCount
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		if fn != nil {
			fn(count)
		}
		m.logger.WithField("expired", len(expired)).Info("Expired sessions removed")
	}
	return len(expired)
}

// Run removes expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CleanupExpired(now)
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
