package tui

import (
	"time"

	"quizwhiz/internal/domain"
)

// updateMsg carries a session broadcast into the update loop.
type updateMsg domain.Update

// clockTickMsg is sent every tick to poll the countdown.
type clockTickMsg time.Time

// opDoneMsg is sent when a command driving the session returns.
type opDoneMsg struct {
	Op  string
	Err error
}

// exportedMsg is sent once the session has been written to disk.
type exportedMsg struct {
	Path  string
	Count int
	Err   error
}

// clearedMsg is sent after the question pool has been deleted.
type clearedMsg struct {
	Err error
}
