// Package session tracks the live WebSocket sessions of this process.
package session

import (
	"sync"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// Store holds one Session per open connection.
type Store interface {
	// Add registers a session under its connection id.
	Add(s *models.Session)

	// Get returns a copy of the session, or false if the connection is unknown.
	Get(connectionID string) (models.Session, bool)

	// Update applies fn to the stored session under the store lock.
	// Returns false if the connection is unknown.
	Update(connectionID string, fn func(s *models.Session)) bool

	// Remove discards the session of a closed connection.
	Remove(connectionID string)

	// Count returns the number of open sessions.
	Count() int
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
	}
}

// Add registers a session under its connection id.
func (m *MemoryStore) Add(s *models.Session) {
	if s == nil || s.ConnectionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ConnectionID] = &cp
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(connectionID string) (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connectionID]
	if !ok {
		return models.Session{}, false
	}
	return *s, true
}

// Update applies fn to the stored session.
func (m *MemoryStore) Update(connectionID string, fn func(s *models.Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[connectionID]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Remove discards a session.
func (m *MemoryStore) Remove(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, connectionID)
}

// Count returns the number of open sessions.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
