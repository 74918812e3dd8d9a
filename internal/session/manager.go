package session

import (
	"fmt"
	"sync"
)

// Manager is the process-wide SessionId -> Session registry (spec.md
// §4.5). It never hides static state: callers construct one and pass
// it by reference to whatever owns session lifecycle (cmd/nextfixd's
// server wiring).
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*Session
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[ID]*Session)}
}

// Register adds s to the registry under its ID. Returns an error if a
// session with the same ID is already registered.
func (m *Manager) Register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID()]; exists {
		return fmt.Errorf("session %s already registered", s.ID())
	}
	m.sessions[s.ID()] = s
	return nil
}

// Lookup returns the session registered under id, if any.
func (m *Manager) Lookup(id ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// UnregisterAll disconnects and removes every registered session.
func (m *Manager) UnregisterAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Disconnect("engine shutdown")
		delete(m.sessions, id)
	}
}

// Sessions returns a snapshot slice of every currently registered
// session.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// SendToTarget is the public send-by-identity entry point (spec.md
// §4.5): locate the session by id and send msg through it. Returns
// false if no such session is registered.
func (m *Manager) SendToTarget(msg Message, id ID) bool {
	s, ok := m.Lookup(id)
	if !ok {
		return false
	}
	return s.Send(msg)
}
