package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizwhiz/internal/domain"
)

// QuestionStore is an in-memory implementation of app.QuestionStore. It is
// the default pool for tests and single-process demos.
type QuestionStore struct {
	mu           sync.RWMutex
	order        []string
	questions    map[string]domain.StoredQuestion
	fingerprints map[string]struct{}
	rnd          *rand.Rand
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		questions:    make(map[string]domain.StoredQuestion),
		fingerprints: make(map[string]struct{}),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[id] = domain.StoredQuestion{ID: id, Topic: topic, Question: q.Clone()}
	s.order = append(s.order, id)
	s.fingerprints[domain.Fingerprint(q)] = struct{}{}
	return id, nil
}

// SampleRandom returns up to limit distinct questions in random order.
func (s *QuestionStore) SampleRandom(ctx context.Context, limit int) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.order...)
	s.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if limit >= 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.questions[id].Question.Clone())
	}
	return out, nil
}

func (s *QuestionStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.questions = make(map[string]domain.StoredQuestion)
	s.fingerprints = make(map[string]struct{})
	return nil
}

func (s *QuestionStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// ExistsSimilar matches on the normalized question and answer text.
func (s *QuestionStore) ExistsSimilar(ctx context.Context, q domain.Question) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fingerprints[domain.Fingerprint(q)]
	return ok, nil
}
