package services

import (
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"schemacanvas/internal/metrics"
	"schemacanvas/internal/utils"
)

// SessionManager owns the editing sessions of the process. Each session gets its own backend
// from newBackend so per-connection state is never shared.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*CanvasSession
	newBackend func() Backend
	snapshots  SnapshotStore
	opts       SessionOptions
}

func NewSessionManager(newBackend func() Backend, snapshots SnapshotStore, opts SessionOptions) *SessionManager {
	return &SessionManager{
		sessions:   make(map[uuid.UUID]*CanvasSession),
		newBackend: newBackend,
		snapshots:  snapshots,
		opts:       opts,
	}
}

func (m *SessionManager) Create() *CanvasSession {
	s := NewCanvasSession(m.newBackend(), m.snapshots, m.opts)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.SessionOpened()
	log.Printf("session %s opened", s.ID)
	return s
}

func (m *SessionManager) Get(id uuid.UUID) (*CanvasSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, utils.NewNotFoundError("session", id.String())
	}
	return s, nil
}

// Close removes a session and stops its background work.
func (m *SessionManager) Close(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return utils.NewNotFoundError("session", id.String())
	}

	s.Close()
	metrics.SessionClosed()
	log.Printf("session %s closed", id)
	return nil
}

func (m *SessionManager) CloseAll() {
	for _, id := range m.IDs() {
		_ = m.Close(id)
	}
}

// IDs lists open sessions in a stable order.
func (m *SessionManager) IDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
