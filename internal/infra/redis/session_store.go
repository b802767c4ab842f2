package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizwhiz/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in a local map because the engine holds live timers and
// subscriber channels; Redis only records liveness so other instances and
// operators can see which sessions exist.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	prefix   string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		prefix:   defaultPrefix,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(id string, create func() *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		return session
	}
	session := create()
	s.sessions[id] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(id), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(id), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return
	}
	if session.IsIdle() {
		delete(s.sessions, id)
		_ = s.client.Del(context.Background(), s.key(id)).Err()
	}
}

// Prune unregisters idle sessions not updated since cutoff and drops their
// liveness markers.
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
	if len(pruned) > 0 {
		keys := make([]string, len(pruned))
		for i, id := range pruned {
			keys[i] = s.key(id)
		}
		_ = s.client.Del(context.Background(), keys...).Err()
	}
	return pruned
}

// Live counts the liveness markers across every instance sharing the server.
func (s *SessionStore) Live(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (s *SessionStore) key(id string) string {
	return s.prefix + ":session:" + id
}
