package domain

import (
	"fmt"
	"time"
)

// Question is a multiple-choice quiz question. It is treated as immutable once
// acquired; correctness is decided by comparing option text with Answer.
type Question struct {
	Text        string   `json:"question" yaml:"question" validate:"required"`
	Options     []string `json:"options" yaml:"options" validate:"min=2,dive,required"`
	Answer      string   `json:"answer" yaml:"answer" validate:"required"`
	Explanation string   `json:"explanation" yaml:"explanation" validate:"required"`
}

// IsCorrect reports whether the option at index matches the answer by value.
func (q Question) IsCorrect(index int) bool {
	if index < 0 || index >= len(q.Options) {
		return false
	}
	return q.Options[index] == q.Answer
}

// AnswerIndex returns the position of Answer in Options or -1.
func (q Question) AnswerIndex() int {
	for i, opt := range q.Options {
		if opt == q.Answer {
			return i
		}
	}
	return -1
}

// Clone returns a copy that does not share the Options backing array.
func (q Question) Clone() Question {
	out := q
	out.Options = append([]string(nil), q.Options...)
	return out
}

// StoredQuestion is the document shape persisted by question stores.
type StoredQuestion struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Question
}

// Phase is the lifecycle stage of a quiz session.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase as its string name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_started":
		*p = PhaseNotStarted
	case "in_progress":
		*p = PhaseInProgress
	case "completed":
		*p = PhaseCompleted
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Score summarises a session's tally.
type Score struct {
	Right   int     `json:"right"`
	Wrong   int     `json:"wrong"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// NewScore computes the percentage; a zero denominator yields 0%.
func NewScore(right, wrong int) Score {
	total := right + wrong
	pct := 0.0
	if total > 0 {
		pct = float64(right) / float64(total) * 100
	}
	return Score{Right: right, Wrong: wrong, Total: total, Percent: pct}
}

// Snapshot is a read-only view of a session suitable for rendering.
type Snapshot struct {
	SessionID string        `json:"sessionId"`
	Topic     string        `json:"topic"`
	Phase     Phase         `json:"phase"`
	Index     int           `json:"index"`
	Limit     int           `json:"limit"`
	Loaded    int           `json:"loaded"`
	Question  *Question     `json:"question,omitempty"`
	Selected  *int          `json:"selected,omitempty"`
	Settled   bool          `json:"settled"`
	Expired   bool          `json:"expired"`
	Acquiring bool          `json:"acquiring"`
	Remaining time.Duration `json:"-"`
	Seconds   int           `json:"remainingSeconds"`
	Score     Score         `json:"score"`
}

// Update is broadcast to session subscribers after every state change.
// Notice carries a user-visible message when there is one.
type Update struct {
	Snapshot Snapshot `json:"snapshot"`
	Notice   string   `json:"notice,omitempty"`
}
