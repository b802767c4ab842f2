package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quizwhiz/internal/domain"
)

// QuizService owns the process-wide collaborators and hands out per-user
// sessions that share them.
type QuizService struct {
	sessions SessionRepository
	store    QuestionStore
	gen      Generator
	opts     Options
	log      logrus.FieldLogger
	metrics  Recorder
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

var errNoStore = errors.New("no question store configured")

// ServiceOption customises a QuizService.
type ServiceOption func(*QuizService)

// WithClock overrides the clock used by new sessions.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

// WithRand fixes the option shuffle source of new sessions.
func WithRand(rnd *rand.Rand) ServiceOption {
	return func(s *QuizService) { s.rnd = rnd }
}

// NewQuizService wires the service. store and gen may be nil; operations that
// need them then fail with a store or acquisition error.
func NewQuizService(sessions SessionRepository, store QuestionStore, gen Generator, opts Options, log logrus.FieldLogger, metrics Recorder, options ...ServiceOption) *QuizService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	s := &QuizService{
		sessions: sessions,
		store:    store,
		gen:      gen,
		opts:     opts.withDefaults(),
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Options returns the effective session options.
func (s *QuizService) Options() Options {
	return s.opts
}

// NewSession creates and registers a session under a fresh id.
func (s *QuizService) NewSession() *Session {
	id := uuid.NewString()
	return s.sessions.GetOrCreate(id, func() *Session {
		return NewSession(id, s.deps(), s.opts)
	})
}

// Session looks up a registered session.
func (s *QuizService) Session(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return session, nil
}

// Release drops the session once nobody is subscribed to it.
func (s *QuizService) Release(id string) {
	s.sessions.DeleteIfIdle(id)
}

// PruneIdle unregisters sessions nobody has touched for maxAge.
func (s *QuizService) PruneIdle(maxAge time.Duration) int {
	pruned := s.sessions.Prune(s.now().Add(-maxAge))
	if len(pruned) > 0 {
		s.log.WithField("count", len(pruned)).Info("pruned idle sessions")
	}
	return len(pruned)
}

// PoolCount returns the number of stored questions.
func (s *QuizService) PoolCount(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, domain.NewStoreError("count", errNoStore)
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, domain.NewStoreError("count", err)
	}
	return n, nil
}

// ClearPool deletes every stored question.
func (s *QuizService) ClearPool(ctx context.Context) error {
	if s.store == nil {
		return domain.NewStoreError("delete", errNoStore)
	}
	if err := s.store.DeleteAll(ctx); err != nil {
		return domain.NewStoreError("delete", err)
	}
	s.log.Info("question pool cleared")
	return nil
}

// SamplePool returns up to limit random stored questions.
func (s *QuizService) SamplePool(ctx context.Context, limit int) ([]domain.Question, error) {
	if s.store == nil {
		return nil, domain.NewStoreError("sample", errNoStore)
	}
	if limit <= 0 {
		limit = s.opts.QuestionLimit
	}
	qs, err := s.store.SampleRandom(ctx, limit)
	if err != nil {
		return nil, domain.NewStoreError("sample", err)
	}
	return qs, nil
}

// SeedResult summarises a Seed run.
type SeedResult struct {
	Generated  int `json:"generated"`
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Seed generates n questions for topic, shuffles their options and pushes
// them through the dedup gate. Generation failures are counted and do not stop the run; a
// cancelled ctx does.
func (s *QuizService) Seed(ctx context.Context, topic string, n int) (SeedResult, error) {
	var res SeedResult
	if s.store == nil {
		return res, domain.NewStoreError("append", errNoStore)
	}
	if s.gen == nil {
		return res, domain.NewAcquisitionError("seed", domain.ErrGeneratorUnavailable)
	}
	gate := NewGate(s.store, s.log, s.metrics)
	shuffle := NewRandomizer(s.deps().Rand)
	log := s.log.WithField("topic", topic)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
		q, err := s.gen.FetchQuestion(fetchCtx, topic, nil)
		cancel()
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			res.Failed++
			s.metrics.AcquisitionFailed("seed")
			log.WithError(err).Warn("seed generation failed")
			continue
		}
		res.Generated++
		s.metrics.QuestionAcquired("generator")
		out := gate.Persist(ctx, topic, shuffle.Shuffle(q))
		switch {
		case out.Duplicate:
			res.Duplicates++
		case out.AppendErr != nil:
			res.Failed++
		default:
			res.Saved++
		}
	}
	log.WithFields(logrus.Fields{
		"saved":      res.Saved,
		"duplicates": res.Duplicates,
		"failed":     res.Failed,
	}).Info("seed finished")
	return res, nil
}

func (s *QuizService) deps() Deps {
	var rnd *rand.Rand
	s.rndMu.Lock()
	if s.rnd != nil {
		rnd = rand.New(rand.NewSource(s.rnd.Int63()))
	}
	s.rndMu.Unlock()
	return Deps{
		Generator: s.gen,
		Store:     s.store,
		Logger:    s.log,
		Metrics:   s.metrics,
		Now:       s.now,
		Rand:      rnd,
	}
}
