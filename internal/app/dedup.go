package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"quizwhiz/internal/domain"
)

const defaultPersistTimeout = 5 * time.Second

// Gate decides whether a freshly generated question is persisted. Lookup
// failures fail open so a store outage never blocks a quiz.
type Gate struct {
	store   QuestionStore
	log     logrus.FieldLogger
	metrics Recorder
	timeout time.Duration
}

// NewGate builds a gate over store.
func NewGate(store QuestionStore, log logrus.FieldLogger, metrics Recorder) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Gate{store: store, log: log, metrics: metrics, timeout: defaultPersistTimeout}
}

// PersistOutcome describes what the gate did with a candidate.
type PersistOutcome struct {
	ID        string
	Duplicate bool
	CheckErr  error
	AppendErr error
}

// Degraded reports whether any store call failed.
func (o PersistOutcome) Degraded() bool {
	return o.CheckErr != nil || o.AppendErr != nil
}

// Notice is the user-visible message for a degraded outcome.
func (o PersistOutcome) Notice() string {
	switch {
	case o.AppendErr != nil:
		return "Question could not be saved to the question pool."
	case o.CheckErr != nil:
		return "Duplicate check unavailable; question saved without it."
	default:
		return ""
	}
}

// IsDuplicate asks the store whether a similar question exists. On failure it
// returns false together with the error.
func (g *Gate) IsDuplicate(ctx context.Context, candidate domain.Question) (bool, error) {
	dup, err := g.store.ExistsSimilar(ctx, candidate)
	if err != nil {
		g.metrics.DedupChecked("error")
		return false, domain.NewStoreError("exists", err)
	}
	if dup {
		g.metrics.DedupChecked("duplicate")
	} else {
		g.metrics.DedupChecked("unique")
	}
	return dup, nil
}

// Persist appends candidate unless the store already holds a similar one.
// It runs detached from ctx cancellation with its own deadline, since the
// question was generated regardless of what happens to the caller.
func (g *Gate) Persist(ctx context.Context, topic string, candidate domain.Question) PersistOutcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	log := g.log.WithField("topic", topic)
	var out PersistOutcome
	dup, err := g.IsDuplicate(ctx, candidate)
	if err != nil {
		out.CheckErr = err
		log.WithError(err).Warn("duplicate check failed, persisting anyway")
	}
	if dup {
		out.Duplicate = true
		log.Debug("similar question already stored, skipping append")
		return out
	}
	id, err := g.store.Append(ctx, topic, candidate)
	if err != nil {
		out.AppendErr = domain.NewStoreError("append", err)
		g.metrics.AppendFailed()
		log.WithError(err).Warn("failed to save question")
		return out
	}
	out.ID = id
	return out
}
