// Package tui is a full-screen Bubble Tea labeler.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dedupe/internal/active"
	"dedupe/internal/domain"
)

type queryMsg struct {
	query active.Query
	ok    bool
}

type answeredMsg struct {
	stop bool
}

// Model is the Bubble Tea model that shows one candidate pair at a time.
type Model struct {
	ctx      context.Context
	queries  <-chan active.Query
	answers  chan<- active.Answer
	viewport viewport.Model
	current  *active.Query
	status   string
	answered int
	ready    bool
	waiting  bool
	finished bool
}

// New creates a model reading queries and sending answers on the given channels.
func New(ctx context.Context, queries <-chan active.Query, answers chan<- active.Answer) Model {
	return Model{
		ctx:      ctx,
		queries:  queries,
		answers:  answers,
		viewport: viewport.New(0, 0),
		status:   "Waiting for the first pair...",
	}
}

// Init starts listening for queries.
func (m Model) Init() tea.Cmd { return m.next() }

// Update handles queries, answers, key and window events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, vh := pairBoxStyle.GetFrameSize()
		reserved := 4 // header, progress, help, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-vh)
		m.viewport.SetContent(m.renderPair())
		return m, nil
	case queryMsg:
		if !msg.ok {
			m.finished = true
			return m, tea.Quit
		}
		q := msg.query
		m.current = &q
		m.waiting = false
		m.status = fmt.Sprintf("Pair %d", q.Seq+1)
		m.viewport.SetContent(m.renderPair())
		m.viewport.GotoTop()
		return m, nil
	case answeredMsg:
		if msg.stop {
			m.finished = true
			return m, tea.Quit
		}
		m.answered++
		return m, m.next()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m.answer(active.Answer{Stop: true})
		}
		switch msg.String() {
		case "y":
			return m.answer(active.Answer{Label: domain.LabelMatch})
		case "n":
			return m.answer(active.Answer{Label: domain.LabelDistinct})
		case "u":
			return m.answer(active.Answer{Label: domain.LabelUncertain})
		case "f", "esc", "q":
			return m.answer(active.Answer{Stop: true})
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// answer sends the reply to the current query.
func (m Model) answer(a active.Answer) (tea.Model, tea.Cmd) {
	if m.current == nil || m.waiting {
		if a.Stop && m.current == nil {
			// nothing asked yet; leave without answering
			m.finished = true
			return m, tea.Quit
		}
		return m, nil
	}
	a.Seq = m.current.Seq
	m.waiting = true
	if a.Stop {
		m.status = "Finishing..."
	} else {
		m.status = fmt.Sprintf("Recorded %s", a.Label)
	}
	ctx, answers := m.ctx, m.answers
	return m, func() tea.Msg {
		select {
		case answers <- a:
		case <-ctx.Done():
			return answeredMsg{stop: true}
		}
		return answeredMsg{stop: a.Stop}
	}
}

func (m Model) next() tea.Cmd {
	ctx, queries := m.ctx, m.queries
	return func() tea.Msg {
		select {
		case q, ok := <-queries:
			return queryMsg{query: q, ok: ok}
		case <-ctx.Done():
			return queryMsg{}
		}
	}
}

// View renders the pair, progress and key help.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Do these records refer to the same thing?")
	progress := ""
	if m.current != nil {
		p := m.current.Progress
		progress = mutedStyle.Render(fmt.Sprintf("%d positive, %d negative, %d unsure, %d candidates left",
			p.Matches, p.Distincts, p.Uncertain, p.Remaining))
	}
	help := mutedStyle.Render("(y)es  (n)o  (u)nsure  (f)inished")
	status := statusStyle.Render(m.status)
	return header + "\n" + progress + "\n" + pairBoxStyle.Render(m.viewport.View()) + "\n" + help + "\n" + status
}

func (m Model) renderPair() string {
	if m.current == nil {
		return "No pair yet."
	}
	q := m.current
	width := len("field")
	for _, f := range q.Fields {
		width = max(width, len(f.Name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %s\n", width, "field", headerStyle.Render(fmt.Sprintf("%s | %s", q.Pair.Left, q.Pair.Right)))
	for _, f := range q.Fields {
		left, right := q.Left.Get(f.Name), q.Right.Get(f.Name)
		line := fmt.Sprintf("%s | %s", value(left), value(right))
		if left.Present && right.Present && strings.EqualFold(strings.TrimSpace(left.Text), strings.TrimSpace(right.Text)) {
			line = sameStyle.Render(line)
		}
		fmt.Fprintf(&b, "%-*s  %s\n", width, f.Name, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func value(v domain.Value) string {
	if !v.Present {
		return mutedStyle.Render("-")
	}
	return v.Text
}

var (
	pairBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	sameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Labeler runs the model as an active.Labeler.
type Labeler struct {
	opts []tea.ProgramOption
}

// NewLabeler returns a labeler; options are passed to the Bubble Tea program.
func NewLabeler(opts ...tea.ProgramOption) *Labeler {
	return &Labeler{opts: opts}
}

// Run implements active.Labeler.
func (l *Labeler) Run(ctx context.Context, queries <-chan active.Query, answers chan<- active.Answer) error {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, l.opts...)
	p := tea.NewProgram(New(ctx, queries, answers), opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("labeling ui: %w", err)
	}
	return nil
}
