// Package tui provides the Bubble Tea quiz interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
)

// DefaultExportPath is where the e key writes the session.
const DefaultExportPath = "quiz_session.json"

type screen int

const (
	screenTopics screen = iota
	screenQuiz
	screenConfirmClear
)

// Config tunes the terminal front end.
type Config struct {
	Topics     []string
	Tick       time.Duration
	ExportPath string
	// Topic starts the quiz right away when set.
	Topic string
}

// Model implements the Bubble Tea quiz UI. Every engine call that may block
// on the generator or the store runs inside a tea.Cmd.
type Model struct {
	service     *app.QuizService
	session     *app.Session
	updates     <-chan domain.Update
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	cfg          Config
	screen       screen
	returnTo     screen
	topicCursor  int
	optionCursor int
	lastIndex    int
	notice       string
	errMsg       string
	spinner      spinner.Model

	width  int
	height int
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E6C07B"))
	cardStyle     = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// NewModel opens a session on service. Call Close once the program exits.
func NewModel(service *app.QuizService, cfg Config) *Model {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.ExportPath == "" {
		cfg.ExportPath = DefaultExportPath
	}
	session := service.NewSession()
	updates, unsubscribe := session.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	m := &Model{
		service:     service,
		session:     session,
		updates:     updates,
		unsubscribe: unsubscribe,
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		spinner:     sp,
		lastIndex:   -1,
	}
	for i, t := range cfg.Topics {
		if t == cfg.Topic {
			m.topicCursor = i
		}
	}
	return m
}

// Close cancels in-flight work and releases the session.
func (m *Model) Close() {
	m.cancel()
	m.unsubscribe()
	m.service.Release(m.session.ID())
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForUpdate(m.updates), m.tickCmd(), m.spinner.Tick}
	if m.cfg.Topic != "" {
		m.screen = screenQuiz
		cmds = append(cmds, m.startCmd(m.cfg.Topic, false))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case updateMsg:
		if msg.Notice != "" {
			m.notice = msg.Notice
		}
		if msg.Snapshot.Index != m.lastIndex {
			m.lastIndex = msg.Snapshot.Index
			m.optionCursor = 0
		}
		return m, waitForUpdate(m.updates)
	case clockTickMsg:
		next := m.tickCmd()
		snap := m.session.Snapshot()
		if m.screen != screenQuiz || snap.Phase != domain.PhaseInProgress || snap.Acquiring {
			return m, next
		}
		return m, tea.Batch(next, m.sessionTickCmd(time.Time(msg)))
	case opDoneMsg:
		m.handleErr(msg.Err)
		return m, nil
	case exportedMsg:
		if msg.Err != nil {
			m.errMsg = fmt.Sprintf("Export failed: %v", msg.Err)
			return m, nil
		}
		m.errMsg = ""
		m.notice = fmt.Sprintf("Exported %d questions to %s", msg.Count, msg.Path)
		return m, nil
	case clearedMsg:
		if msg.Err != nil {
			m.errMsg = userMessage(msg.Err)
			return m, nil
		}
		m.errMsg = ""
		m.notice = "All stored questions deleted."
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenConfirmClear:
			return m.updateConfirm(msg)
		case screenQuiz:
			return m.updateQuiz(msg)
		default:
			return m.updateTopics(msg)
		}
	default:
		return m, nil
	}
}

func (m *Model) updateTopics(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.topicCursor > 0 {
			m.topicCursor--
		}
	case "down", "j":
		if m.topicCursor < len(m.cfg.Topics)-1 {
			m.topicCursor++
		}
	case "enter":
		if len(m.cfg.Topics) == 0 {
			return m, nil
		}
		m.screen = screenQuiz
		m.clearMessages()
		return m, m.startCmd(m.cfg.Topics[m.topicCursor], true)
	case "l":
		m.screen = screenQuiz
		m.clearMessages()
		return m, m.loadCmd()
	case "d":
		m.confirmClear()
	}
	return m, nil
}

func (m *Model) updateQuiz(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.session.Snapshot()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "t":
		m.session.Reset()
		m.screen = screenTopics
		m.clearMessages()
	case "up", "k":
		if m.optionCursor > 0 {
			m.optionCursor--
		}
	case "down", "j":
		if snap.Question != nil && m.optionCursor < len(snap.Question.Options)-1 {
			m.optionCursor++
		}
	case "enter", " ":
		if snap.Phase != domain.PhaseInProgress || snap.Question == nil || snap.Settled {
			return m, nil
		}
		m.clearMessages()
		_, err := m.session.SubmitAnswer(m.optionCursor)
		m.handleErr(err)
	case "n":
		m.clearMessages()
		return m, m.advanceCmd()
	case "p":
		m.clearMessages()
		m.handleErr(m.session.Retreat())
	case "l":
		m.clearMessages()
		return m, m.loadCmd()
	case "r":
		topic := snap.Topic
		if topic == "" && len(m.cfg.Topics) > 0 {
			topic = m.cfg.Topics[m.topicCursor]
		}
		m.clearMessages()
		return m, m.startCmd(topic, true)
	case "e":
		return m, m.exportCmd()
	case "d":
		m.confirmClear()
	}
	return m, nil
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.screen = m.returnTo
		return m, m.clearCmd()
	case "n", "N", "esc", "q":
		m.screen = m.returnTo
	}
	return m, nil
}

func (m *Model) confirmClear() {
	m.returnTo = m.screen
	m.screen = screenConfirmClear
}

func (m *Model) clearMessages() {
	m.notice = ""
	m.errMsg = ""
}

func (m *Model) handleErr(err error) {
	if err == nil || errors.Is(err, domain.ErrSuperseded) {
		return
	}
	m.errMsg = userMessage(err)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrStoreEmpty):
		return "No stored questions yet. Answer a few generated ones first."
	case errors.Is(err, domain.ErrAcquisitionPending):
		return "Still loading the question..."
	case errors.Is(err, domain.ErrTimerExpired):
		return "Time is up for this question."
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "This question has already been scored."
	case errors.Is(err, domain.ErrNoPreviousQuestion):
		return "This is the first question."
	case errors.Is(err, domain.ErrInvariant):
		return "Not available right now."
	case errors.Is(err, domain.ErrGeneratorUnauthorized):
		return "The question generator rejected the API key."
	default:
		return err.Error()
	}
}

func waitForUpdate(updates <-chan domain.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.cfg.Tick, func(t time.Time) tea.Msg {
		return clockTickMsg(t)
	})
}

func (m *Model) sessionTickCmd(now time.Time) tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.Tick(m.ctx, now)
		return opDoneMsg{Op: "tick", Err: err}
	}
}

func (m *Model) startCmd(topic string, restart bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if restart {
			err = m.session.Restart(m.ctx, topic, nil)
		} else {
			err = m.session.Start(m.ctx, topic, nil)
		}
		return opDoneMsg{Op: "start", Err: err}
	}
}

func (m *Model) advanceCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{Op: "next", Err: m.session.Advance(m.ctx)}
	}
}

func (m *Model) loadCmd() tea.Cmd {
	limit := m.service.Options().QuestionLimit
	return func() tea.Msg {
		return opDoneMsg{Op: "load", Err: m.session.LoadRandom(m.ctx, limit)}
	}
}

func (m *Model) exportCmd() tea.Cmd {
	path := m.cfg.ExportPath
	return func() tea.Msg {
		data, err := m.session.Export(app.ExportJSON)
		if err != nil {
			return exportedMsg{Err: err}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportedMsg{Err: err}
		}
		return exportedMsg{Path: path, Count: len(m.session.Questions())}
	}
}

func (m *Model) clearCmd() tea.Cmd {
	return func() tea.Msg {
		return clearedMsg{Err: m.service.ClearPool(m.ctx)}
	}
}
