package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"quizwhiz/internal/domain"
)

const fallbackContentWidth = 72

// View implements tea.Model.
func (m *Model) View() string {
	var content string
	switch m.screen {
	case screenConfirmClear:
		content = m.renderConfirm()
	case screenQuiz:
		snap := m.session.Snapshot()
		if snap.Phase == domain.PhaseCompleted {
			content = m.renderSummary(snap)
		} else {
			content = m.renderQuestion(snap)
		}
	default:
		content = m.renderTopics()
	}
	if msgs := m.renderMessages(); msgs != "" {
		content += "\n\n" + msgs
	}
	card := cardStyle.Render(content)
	footer := m.renderFooter()
	if m.width == 0 || m.height < 3 {
		return card + "\n" + footer
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, card)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return fallbackContentWidth
	}
	w := int(float64(m.width)*0.70) - 6
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) renderTopics() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Pick a topic"))
	b.WriteString("\n\n")
	if len(m.cfg.Topics) == 0 {
		b.WriteString(mutedStyle.Render("No topics configured."))
		return b.String()
	}
	for i, t := range m.cfg.Topics {
		if i == m.topicCursor {
			b.WriteString(cursorStyle.Render("> " + t))
		} else {
			b.WriteString(optionStyle.Render("  " + t))
		}
		if i < len(m.cfg.Topics)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m *Model) renderQuestion(snap domain.Snapshot) string {
	width := m.contentWidth()
	var b strings.Builder
	header := fmt.Sprintf("%s  Question %d/%d", snap.Topic, snap.Index+1, snap.Limit)
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	if snap.Question == nil {
		if snap.Acquiring {
			b.WriteString(m.spinner.View() + " Generating a question...")
		} else {
			b.WriteString(mutedStyle.Render("No question loaded."))
		}
		return b.String()
	}

	q := snap.Question
	b.WriteString(questionStyle.Render(strings.Join(wrapText(q.Text, width), "\n")))
	b.WriteString("\n\n")
	answer := q.AnswerIndex()
	for i, opt := range q.Options {
		head := fmt.Sprintf("  %d. ", i+1)
		if i == m.optionCursor && !snap.Settled {
			head = fmt.Sprintf("> %d. ", i+1)
		}
		line := indentLines(wrapText(opt, width-len(head)), head)
		style := optionStyle
		switch {
		case snap.Settled && i == answer:
			style = correctStyle
		case snap.Settled && snap.Selected != nil && *snap.Selected == i:
			style = wrongStyle
		case !snap.Settled && i == m.optionCursor:
			style = cursorStyle
		}
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	switch {
	case snap.Acquiring:
		b.WriteString(m.spinner.View() + " Loading the next question...")
	case snap.Settled && snap.Selected != nil:
		b.WriteString(mutedStyle.Render(strings.Join(wrapText(q.Explanation, width), "\n")))
	case snap.Expired:
		b.WriteString(wrongStyle.Render("Time is up."))
	case snap.Settled:
		b.WriteString(wrongStyle.Render("Skipped."))
	default:
		b.WriteString(renderCountdown(snap.Seconds))
	}
	return b.String()
}

func renderCountdown(seconds int) string {
	text := fmt.Sprintf("%ds left", seconds)
	if seconds <= 5 {
		return wrongStyle.Render(text)
	}
	return mutedStyle.Render(text)
}

func (m *Model) renderSummary(snap domain.Snapshot) string {
	s := snap.Score
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quiz complete"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  %d\n", correctStyle.Render("Right"), s.Right)
	fmt.Fprintf(&b, "%s  %d\n", wrongStyle.Render("Wrong"), s.Wrong)
	fmt.Fprintf(&b, "Total  %d\n", s.Total)
	fmt.Fprintf(&b, "Score  %.1f%%", s.Percent)
	return b.String()
}

func (m *Model) renderConfirm() string {
	return wrongStyle.Render("Delete all stored questions?") + "\n\n" + mutedStyle.Render("y to confirm, n to cancel")
}

func (m *Model) renderMessages() string {
	var parts []string
	width := m.contentWidth()
	if m.notice != "" {
		parts = append(parts, noticeStyle.Render(strings.Join(wrapText(m.notice, width), "\n")))
	}
	if m.errMsg != "" {
		parts = append(parts, wrongStyle.Render(strings.Join(wrapText(m.errMsg, width), "\n")))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderFooter() string {
	var keys []string
	switch m.screen {
	case screenConfirmClear:
		keys = []string{"y delete", "n cancel"}
	case screenQuiz:
		snap := m.session.Snapshot()
		keys = []string{"enter answer", "n next", "p prev", "l load", "r restart", "e export", "d delete", "t topics", "q quit"}
		if snap.Phase == domain.PhaseCompleted {
			keys = []string{"l load", "r restart", "e export", "d delete", "t topics", "q quit"}
		}
		score := snap.Score
		keys = append([]string{fmt.Sprintf("%d right · %d wrong", score.Right, score.Wrong)}, keys...)
	default:
		keys = []string{"enter start", "l load saved", "d delete", "q quit"}
	}
	return mutedStyle.Render(strings.Join(keys, "  "))
}
