package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quizwhiz/internal/domain"
)

const (
	// DefaultQuestionLimit is the number of questions in a generated session.
	DefaultQuestionLimit = 10
	// DefaultAcquireTimeout bounds a single generator call.
	DefaultAcquireTimeout = 20 * time.Second
)

const (
	noticeSkipped = "Skipped! This question was not answered and has been marked as incorrect."
	noticeExpired = "Time is up! This question was not answered and has been marked as incorrect."
	noticeCorrect = "Correct!"
)

// Options configures session behaviour.
type Options struct {
	QuestionLimit    int
	QuestionDuration time.Duration
	AcquireTimeout   time.Duration
	Persist          bool
}

// withDefaults fills zero values with the package defaults.
func (o Options) withDefaults() Options {
	if o.QuestionLimit <= 0 {
		o.QuestionLimit = DefaultQuestionLimit
	}
	if o.QuestionDuration <= 0 {
		o.QuestionDuration = DefaultQuestionDuration
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	return o
}

// Deps are the collaborators of a session. Store may be nil when no
// question pool is configured.
type Deps struct {
	Generator Generator
	Store     QuestionStore
	Logger    logrus.FieldLogger
	Metrics   Recorder
	Now       func() time.Time
	Rand      *rand.Rand
}

// state is the single mutable aggregate of one quiz run. It is replaced
// wholesale on reset, never patched from a stale copy.
type state struct {
	topic     string
	snippets  []string
	questions []domain.Question
	answers   map[int]int
	settled   map[int]bool
	current   int
	right     int
	wrong     int
	limit     int
	phase     domain.Phase
	batch     bool
	timer     *Timer
	handled   bool // expiry of the current timer already triggered an advance
	acquiring bool
}

func newState(limit int) *state {
	return &state{
		answers: make(map[int]int),
		settled: make(map[int]bool),
		limit:   limit,
		phase:   domain.PhaseNotStarted,
	}
}

// Session is the quiz engine for one user. All mutation is serialized by mu;
// blocking collaborator calls run without the lock and are discarded if the
// session was reset meanwhile.
type Session struct {
	id      string
	opts    Options
	gen     Generator
	store   QuestionStore
	gate    *Gate
	shuffle *Randomizer
	log     logrus.FieldLogger
	metrics Recorder
	now     func() time.Time

	mu            sync.RWMutex
	st            *state
	epoch         uint64
	cancelAcquire context.CancelFunc
	subscribers   map[chan domain.Update]struct{}
	lastUpdated   time.Time
}

// NewSession builds an idle session.
func NewSession(id string, deps Deps, opts Options) *Session {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		id:          id,
		opts:        opts,
		gen:         deps.Generator,
		store:       deps.Store,
		shuffle:     NewRandomizer(deps.Rand),
		log:         deps.Logger.WithField("session", id),
		metrics:     deps.Metrics,
		now:         deps.Now,
		st:          newState(opts.QuestionLimit),
		subscribers: make(map[chan domain.Update]struct{}),
	}
	if deps.Store != nil {
		s.gate = NewGate(deps.Store, s.log, deps.Metrics)
	}
	s.lastUpdated = s.now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start fetches the first question for topic. On failure the session stays
// NotStarted.
func (s *Session) Start(ctx context.Context, topic string, snippets []string) error {
	s.mu.Lock()
	if s.st.acquiring {
		s.mu.Unlock()
		return domain.ErrAcquisitionPending
	}
	if s.st.phase != domain.PhaseNotStarted {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	s.st.topic = topic
	s.st.snippets = append([]string(nil), snippets...)
	s.st.acquiring = true
	epoch := s.epoch
	acqCtx, cancel := s.acquireContextLocked(ctx)
	s.broadcastLocked("")
	s.mu.Unlock()
	defer cancel()

	q, notice, err := s.acquire(acqCtx, "start", topic, snippets)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return domain.ErrSuperseded
	}
	s.st.acquiring = false
	if err != nil {
		s.broadcastLocked("Failed to load a quiz question. Please try again.")
		return err
	}
	s.st.questions = append(s.st.questions, q)
	s.st.current = 0
	s.st.phase = domain.PhaseInProgress
	s.armLocked()
	s.log.WithField("topic", topic).Info("session started")
	s.broadcastLocked(notice)
	return nil
}

// Restart replaces the session and starts it again on topic.
func (s *Session) Restart(ctx context.Context, topic string, snippets []string) error {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return s.Start(ctx, topic, snippets)
}

// Reset discards the current run and any in-flight acquisition.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.broadcastLocked("")
}

// LoadBatch replaces the session with a pre-loaded batch. The question limit
// becomes the batch size and no generation or persistence happens. An empty
// or invalid batch leaves the session untouched.
func (s *Session) LoadBatch(batch []domain.Question) error {
	return s.loadBatch(batch, nil)
}

// LoadRandom samples limit questions from the store and loads them as a batch.
// Store failures leave the session untouched.
func (s *Session) LoadRandom(ctx context.Context, limit int) error {
	if s.store == nil {
		return domain.NewStoreError("sample", errNoStore)
	}
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
	defer cancel()
	batch, err := s.store.SampleRandom(ctx, limit)
	if err != nil {
		s.log.WithError(err).Warn("failed to sample questions")
		return domain.NewStoreError("sample", err)
	}
	if len(batch) == 0 {
		return domain.NewStoreError("sample", domain.ErrStoreEmpty)
	}
	return s.loadBatch(batch, &epoch)
}

func (s *Session) loadBatch(batch []domain.Question, expectEpoch *uint64) error {
	if len(batch) == 0 {
		return domain.ErrEmptyBatch
	}
	questions := make([]domain.Question, 0, len(batch))
	for i, q := range batch {
		if err := q.Validate(); err != nil {
			return domain.NewAcquisitionError(fmt.Sprintf("load[%d]", i), err)
		}
		questions = append(questions, q.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if expectEpoch != nil && *expectEpoch != s.epoch {
		return domain.ErrSuperseded
	}
	s.resetLocked()
	s.st.questions = questions
	s.st.limit = len(questions)
	s.st.batch = true
	s.st.current = 0
	s.st.phase = domain.PhaseInProgress
	s.armLocked()
	s.metrics.QuestionAcquired("batch")
	s.log.WithField("count", len(questions)).Info("batch loaded")
	s.broadcastLocked(fmt.Sprintf("%d questions loaded!", len(questions)))
	return nil
}

// SubmitAnswer records the selected option for the current question and
// scores it once. It reports whether the option was correct.
func (s *Session) SubmitAnswer(option int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	if st.phase != domain.PhaseInProgress {
		return false, domain.ErrInvalidTransition
	}
	if st.acquiring {
		return false, domain.ErrAcquisitionPending
	}
	if st.settled[st.current] {
		return false, domain.ErrAlreadyAnswered
	}
	if st.timer == nil || st.timer.Poll(s.now()) {
		return false, domain.ErrTimerExpired
	}
	q := st.questions[st.current]
	if option < 0 || option >= len(q.Options) {
		return false, domain.ErrOptionOutOfRange
	}

	st.answers[st.current] = option
	st.settled[st.current] = true
	st.timer = nil
	correct := q.IsCorrect(option)
	notice := noticeCorrect
	if correct {
		st.right++
		s.metrics.AnswerScored("right")
	} else {
		st.wrong++
		s.metrics.AnswerScored("wrong")
		notice = fmt.Sprintf("Sorry, the correct answer was: %s", q.Answer)
	}
	s.broadcastLocked(notice)
	return correct, nil
}

// Advance leaves the current question. An unscored question counts as wrong.
// Past the limit the session completes; otherwise the next question is armed,
// fetching it first when the session is generator-backed. A failed fetch
// leaves the session on the current question with its countdown re-armed, so
// the next expiry retries the advance.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	plan, err := s.beginAdvanceLocked(ctx, noticeSkipped, "skipped")
	s.mu.Unlock()
	if err != nil || plan == nil {
		return err
	}
	return s.finishAdvance(plan)
}

// Retreat moves back one question and restarts its countdown. Any recorded
// answer is kept.
func (s *Session) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	if st.phase != domain.PhaseInProgress {
		return domain.ErrInvalidTransition
	}
	if st.acquiring {
		return domain.ErrAcquisitionPending
	}
	if st.current == 0 {
		return domain.ErrNoPreviousQuestion
	}
	st.current--
	s.armLocked()
	s.broadcastLocked("")
	return nil
}

// Tick polls the current countdown. The first time it observes expiry it
// advances synchronously, exactly as a skip would. It reports whether the
// expiry fired on this call.
func (s *Session) Tick(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	st := s.st
	if st.phase != domain.PhaseInProgress || st.acquiring || st.timer == nil {
		s.mu.Unlock()
		return false, nil
	}
	if !st.timer.Poll(now) || st.handled {
		s.mu.Unlock()
		return false, nil
	}
	st.handled = true
	s.log.WithField("index", st.current).Debug("question timer expired")
	plan, err := s.beginAdvanceLocked(ctx, noticeExpired, "expired")
	s.mu.Unlock()
	if err != nil || plan == nil {
		return true, err
	}
	return true, s.finishAdvance(plan)
}

// Score is the current tally.
func (s *Session) Score() domain.Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NewScore(s.st.right, s.st.wrong)
}

// Phase is the current lifecycle stage.
func (s *Session) Phase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.phase
}

// Questions returns a copy of the questions acquired so far.
func (s *Session) Questions() []domain.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, len(s.st.questions))
	for i, q := range s.st.questions {
		out[i] = q.Clone()
	}
	return out
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// IsIdle reports whether nobody is subscribed to the session.
func (s *Session) IsIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers) == 0
}

// LastUpdated is the time of the latest state change.
func (s *Session) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Subscribe returns a channel that receives an update after every state
// change, starting with the current snapshot. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Update, func()) {
	ch := make(chan domain.Update, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := domain.Update{Snapshot: s.snapshotLocked()}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

type advancePlan struct {
	ctx    context.Context
	cancel context.CancelFunc
	epoch  uint64
	next   int
	topic  string
	snips  []string
}

// beginAdvanceLocked scores the question being left and either completes,
// moves to an already-loaded question, or returns a plan for fetching the
// next one. The caller holds mu.
func (s *Session) beginAdvanceLocked(ctx context.Context, skipNotice, skipResult string) (*advancePlan, error) {
	st := s.st
	if st.phase != domain.PhaseInProgress {
		return nil, domain.ErrInvalidTransition
	}
	if st.acquiring {
		return nil, domain.ErrAcquisitionPending
	}

	notice := ""
	if !st.settled[st.current] {
		st.settled[st.current] = true
		st.wrong++
		s.metrics.AnswerScored(skipResult)
		notice = skipNotice
	}

	if st.current+1 >= st.limit {
		st.phase = domain.PhaseCompleted
		st.timer = nil
		s.metrics.SessionCompleted()
		s.log.WithField("score", domain.NewScore(st.right, st.wrong)).Info("session completed")
		s.broadcastLocked(notice)
		return nil, nil
	}

	next := st.current + 1
	if next < len(st.questions) {
		st.current = next
		s.armLocked()
		s.broadcastLocked(notice)
		return nil, nil
	}
	if st.batch {
		// Batch sessions never outgrow their limit; reaching here means the
		// limit and the loaded questions disagree.
		return nil, domain.ErrInvalidTransition
	}

	st.acquiring = true
	st.timer = nil
	acqCtx, cancel := s.acquireContextLocked(ctx)
	s.broadcastLocked(notice)
	return &advancePlan{
		ctx:    acqCtx,
		cancel: cancel,
		epoch:  s.epoch,
		next:   next,
		topic:  st.topic,
		snips:  st.snippets,
	}, nil
}

func (s *Session) finishAdvance(plan *advancePlan) error {
	defer plan.cancel()
	q, notice, err := s.acquire(plan.ctx, "advance", plan.topic, plan.snips)

	s.mu.Lock()
	defer s.mu.Unlock()
	if plan.epoch != s.epoch {
		return domain.ErrSuperseded
	}
	st := s.st
	st.acquiring = false
	if err != nil {
		// The question stays settled; its fresh countdown retries the fetch
		// through Tick.
		s.armLocked()
		s.broadcastLocked("Failed to load the next quiz question.")
		return err
	}
	st.questions = append(st.questions, q)
	st.current = plan.next
	s.armLocked()
	s.broadcastLocked(notice)
	return nil
}

// acquire fetches, validates, randomizes and optionally persists one question.
// It runs without the session lock.
func (s *Session) acquire(ctx context.Context, op, topic string, snippets []string) (domain.Question, string, error) {
	log := s.log.WithField("topic", topic)
	if s.gen == nil {
		s.metrics.AcquisitionFailed(op)
		return domain.Question{}, "", domain.NewAcquisitionError(op, domain.ErrGeneratorUnavailable)
	}
	raw, err := s.gen.FetchQuestion(ctx, topic, snippets)
	if err != nil {
		s.metrics.AcquisitionFailed(op)
		log.WithError(err).Warn("failed to fetch question")
		return domain.Question{}, "", domain.NewAcquisitionError(op, err)
	}
	if err := raw.Validate(); err != nil {
		s.metrics.AcquisitionFailed(op)
		log.WithError(err).Warn("generator returned an invalid question")
		return domain.Question{}, "", domain.NewAcquisitionError(op, err)
	}
	q := s.shuffle.Shuffle(raw)
	s.metrics.QuestionAcquired("generator")

	if !s.opts.Persist || s.gate == nil {
		return q, "", nil
	}
	out := s.gate.Persist(ctx, topic, q)
	return q, out.Notice(), nil
}

// acquireContextLocked cancels any previous acquisition and derives a
// time-bounded context for a new one.
func (s *Session) acquireContextLocked(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cancelAcquire != nil {
		s.cancelAcquire()
	}
	acqCtx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
	s.cancelAcquire = cancel
	return acqCtx, cancel
}

func (s *Session) resetLocked() {
	s.epoch++
	if s.cancelAcquire != nil {
		s.cancelAcquire()
		s.cancelAcquire = nil
	}
	s.st = newState(s.opts.QuestionLimit)
}

func (s *Session) armLocked() {
	s.st.timer = NewTimer(s.opts.QuestionDuration, s.now())
	s.st.handled = false
}

func (s *Session) snapshotLocked() domain.Snapshot {
	st := s.st
	snap := domain.Snapshot{
		SessionID: s.id,
		Topic:     st.topic,
		Phase:     st.phase,
		Index:     st.current,
		Limit:     st.limit,
		Loaded:    len(st.questions),
		Settled:   st.settled[st.current],
		Acquiring: st.acquiring,
		Score:     domain.NewScore(st.right, st.wrong),
	}
	if st.phase == domain.PhaseInProgress && st.current < len(st.questions) {
		q := st.questions[st.current].Clone()
		snap.Question = &q
	}
	if sel, ok := st.answers[st.current]; ok {
		snap.Selected = &sel
	}
	if st.timer != nil {
		now := s.now()
		snap.Expired = st.timer.Expired() || !now.Before(st.timer.Deadline())
		snap.Remaining = st.timer.Remaining(now)
		snap.Seconds = int((snap.Remaining + time.Second - 1) / time.Second)
	}
	return snap
}

func (s *Session) broadcastLocked(notice string) {
	s.lastUpdated = s.now()
	update := domain.Update{Snapshot: s.snapshotLocked(), Notice: notice}
	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// Slow subscribers only need the latest state.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
