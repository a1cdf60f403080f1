package api

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"kycgate/internal/workflow"
)

// ErrSessionNotFound is returned for unknown or dismissed session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps the in-progress workflow instances, one per session id.
// Workflows never share state, so the store only guards its own map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*workflow.Workflow
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*workflow.Workflow)}
}

// Create registers a workflow and returns its session id.
func (s *SessionStore) Create(wf *workflow.Workflow) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = wf
	return id
}

// Get returns the workflow for a session id.
func (s *SessionStore) Get(id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return wf, nil
}

// Delete dismisses a session.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}
