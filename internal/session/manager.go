package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSession is returned for ids that are not open.
var ErrUnknownSession = errors.New("unknown session")

// Manager keeps one session per open tab. Sessions share nothing but the
// configuration template they are created from.
type Manager struct {
	template Config

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewManager creates a manager that opens sessions from template. The
// template ID is ignored.
func NewManager(template Config) *Manager {
	template.ID = ""
	return &Manager{
		template: template,
		sessions: make(map[string]*Session),
	}
}

// Open creates and registers a new session.
func (m *Manager) Open() (*Session, error) {
	cfg := m.template
	cfg.ID = NewID()
	s, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.order = append(m.order, s.ID())
	m.mu.Unlock()
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns open sessions in the order they were opened.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	s.Close()
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.order = nil
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
