package registry

import (
	"context"
	"fmt"
	"sync"

	"swap-orchestrator/core/models"
)

// MemoryStore keeps session records in process memory. A process restart
// loses all sessions; artifact files on disk survive but become orphaned.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	events   map[string][]models.SessionEvent
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		events:   make(map[string][]models.SessionEvent),
	}
}

// Create stores a new session record
func (m *MemoryStore) Create(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the session record
func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update applies the mutator under the store lock. The mutator runs on a
// copy; the stored record only changes when the mutator succeeds, so a
// failed update never leaves a half-applied session behind.
func (m *MemoryStore) Update(_ context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	next := session.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

// Delete removes the session record
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.events, id)
	return nil
}

// AppendEvent records a transition event for a session
func (m *MemoryStore) AppendEvent(_ context.Context, event models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[event.SessionID] = append(m.events[event.SessionID], event)
	return nil
}

// ListEvents returns a session's transition events, oldest first
func (m *MemoryStore) ListEvents(_ context.Context, sessionID string) ([]models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[sessionID]
	out := make([]models.SessionEvent, len(events))
	copy(out, events)
	return out, nil
}
