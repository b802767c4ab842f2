package app

import (
	"context"
	"time"

	"quizwhiz/internal/domain"
)

// Generator produces a fresh question for a topic, optionally grounded on
// study material snippets.
type Generator interface {
	FetchQuestion(ctx context.Context, topic string, snippets []string) (domain.Question, error)
}

// QuestionStore is the shared, process-wide question pool. Implementations
// must tolerate concurrent use from unrelated sessions.
type QuestionStore interface {
	Append(ctx context.Context, topic string, q domain.Question) (string, error)
	SampleRandom(ctx context.Context, limit int) ([]domain.Question, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	ExistsSimilar(ctx context.Context, q domain.Question) (bool, error)
}

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(id string, create func() *Session) *Session
	Get(id string) (*Session, bool)
	DeleteIfIdle(id string)
	// Prune unregisters idle sessions not updated since cutoff.
	Prune(cutoff time.Time) []string
}

// Recorder receives engine metrics. A nil Recorder is replaced by a no-op.
type Recorder interface {
	QuestionAcquired(source string)
	AcquisitionFailed(op string)
	AnswerScored(result string)
	DedupChecked(outcome string)
	AppendFailed()
	SessionCompleted()
}

type nopRecorder struct{}

func (nopRecorder) QuestionAcquired(string)  {}
func (nopRecorder) AcquisitionFailed(string) {}
func (nopRecorder) AnswerScored(string)      {}
func (nopRecorder) DedupChecked(string)      {}
func (nopRecorder) AppendFailed()            {}
func (nopRecorder) SessionCompleted()        {}
