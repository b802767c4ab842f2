package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
	"quizwhiz/internal/infra/memory"
)

var errBoom = errors.New("boom")

// scriptedGenerator returns "Question N" for the Nth call. Calls listed in
// fail return that error instead; when block is set every call waits on it.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   int
	fail    map[int]error
	bad     map[int]bool
	block   chan struct{}
	entered chan struct{}
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{fail: map[int]error{}, bad: map[int]bool{}, entered: make(chan struct{}, 16)}
}

func (g *scriptedGenerator) FetchQuestion(ctx context.Context, topic string, _ []string) (domain.Question, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	err := g.fail[n]
	bad := g.bad[n]
	block := g.block
	g.mu.Unlock()

	select {
	case g.entered <- struct{}{}:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.Question{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Question{}, err
	}
	q := numberedQuestion(n)
	if bad {
		q.Answer = "not an option"
	}
	return q, nil
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func numberedQuestion(n int) domain.Question {
	return domain.Question{
		Text:        fmt.Sprintf("Question %d", n),
		Options:     []string{"alpha", "beta", "gamma", "delta"},
		Answer:      "gamma",
		Explanation: "gamma is third",
	}
}

// flakyStore fails the selected operations and delegates the rest.
type flakyStore struct {
	*memory.QuestionStore
	mu         sync.Mutex
	failExists bool
	failAppend bool
	failSample bool
	appends    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{QuestionStore: memory.NewQuestionStore()}
}

func (s *flakyStore) ExistsSimilar(ctx context.Context, q domain.Question) (bool, error) {
	s.mu.Lock()
	fail := s.failExists
	s.mu.Unlock()
	if fail {
		return false, errBoom
	}
	return s.QuestionStore.ExistsSimilar(ctx, q)
}

func (s *flakyStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	s.mu.Lock()
	s.appends++
	fail := s.failAppend
	s.mu.Unlock()
	if fail {
		return "", errBoom
	}
	return s.QuestionStore.Append(ctx, topic, q)
}

func (s *flakyStore) SampleRandom(ctx context.Context, limit int) ([]domain.Question, error) {
	s.mu.Lock()
	fail := s.failSample
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.QuestionStore.SampleRandom(ctx, limit)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type harness struct {
	session *app.Session
	gen     *scriptedGenerator
	store   *flakyStore
	clock   *fakeClock
	hook    *logtest.Hook
}

func newHarness(t *testing.T, opts app.Options) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		gen:   newScriptedGenerator(),
		store: newFlakyStore(),
		clock: newFakeClock(),
		hook:  hook,
	}
	h.session = app.NewSession("s-1", app.Deps{
		Generator: h.gen,
		Store:     h.store,
		Logger:    logger,
		Now:       h.clock.Now,
		Rand:      rand.New(rand.NewSource(42)),
	}, opts)
	return h
}

// correctOption finds the index of the answer in the current, shuffled question.
func correctOption(t *testing.T, s *app.Session) int {
	t.Helper()
	snap := s.Snapshot()
	if snap.Question == nil {
		t.Fatalf("no current question in %+v", snap)
	}
	return snap.Question.AnswerIndex()
}

func wrongOption(t *testing.T, s *app.Session) int {
	t.Helper()
	return (correctOption(t, s) + 1) % 4
}

func warnings(hook *logtest.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}
