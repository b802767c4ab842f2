// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizwhiz"

// Metrics implements app.Recorder. A nil *Metrics records nothing.
type Metrics struct {
	QuestionsAcquired   *prometheus.CounterVec
	AcquisitionFailures *prometheus.CounterVec
	Answers             *prometheus.CounterVec
	DedupChecks         *prometheus.CounterVec
	AppendFailures      prometheus.Counter
	SessionsCompleted   prometheus.Counter
	ActiveSessions      prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QuestionsAcquired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_acquired_total",
			Help:      "Questions added to sessions, by source.",
		}, []string{"source"}),
		AcquisitionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_failures_total",
			Help:      "Failed question acquisitions, by operation.",
		}, []string{"op"}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Scored questions, by result.",
		}, []string{"result"}), // right, wrong, skipped, expired
		DedupChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_checks_total",
			Help:      "Duplicate checks against the question pool, by outcome.",
		}, []string{"outcome"}),
		AppendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_append_failures_total",
			Help:      "Questions that could not be saved to the pool.",
		}),
		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions that reached the summary.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions with a connected client.",
		}),
	}
}

func (m *Metrics) QuestionAcquired(source string) {
	if m == nil {
		return
	}
	m.QuestionsAcquired.WithLabelValues(source).Inc()
}

func (m *Metrics) AcquisitionFailed(op string) {
	if m == nil {
		return
	}
	m.AcquisitionFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) AnswerScored(result string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(result).Inc()
}

func (m *Metrics) DedupChecked(outcome string) {
	if m == nil {
		return
	}
	m.DedupChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AppendFailed() {
	if m == nil {
		return
	}
	m.AppendFailures.Inc()
}

func (m *Metrics) SessionCompleted() {
	if m == nil {
		return
	}
	m.SessionsCompleted.Inc()
}

// SessionOpened and SessionClosed track the active sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
