package memory

import (
	"sync"
	"time"

	"quizwhiz/internal/app"
)

// SessionStore keeps live quiz sessions in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*app.Session)}
}

// GetOrCreate returns the session registered under id, registering the one
// built by create when there is none.
func (s *SessionStore) GetOrCreate(id string, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing
	}
	fresh := create()
	s.sessions[id] = fresh
	return fresh
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found, ok := s.sessions[id]
	return found, ok
}

// DeleteIfIdle unregisters the session once nobody is subscribed to it.
func (s *SessionStore) DeleteIfIdle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if found, ok := s.sessions[id]; ok && found.IsIdle() {
		delete(s.sessions, id)
	}
}

// Prune unregisters idle sessions not updated since cutoff and returns
// their ids.
func (s *SessionStore) Prune(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []string
	for id, session := range s.sessions {
		if session.IsIdle() && session.LastUpdated().Before(cutoff) {
			delete(s.sessions, id)
			pruned = append(pruned, id)
		}
	}
	return pruned
}

// Len is the number of registered sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
