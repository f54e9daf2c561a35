package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// Item and exchange states shown next to each row.
const (
	statePending   = "pending"
	stateActive    = "active"
	stateDone      = "done"
	stateFailed    = "failed"
	stateSucceeded = "succeeded"
)

const (
	defaultBarWidth = 40
	maxBarWidth     = 80
	// boxChrome covers the label column, border and padding.
	boxChrome = 40
)

// ProgressMsg carries one progress event into the model.
type ProgressMsg transfer.ProgressEvent

// DoneMsg ends the program. Err is nil on success.
type DoneMsg struct {
	Err error
}

type itemRow struct {
	item   types.Item
	done   int64
	state  string
	seen   bool
	active bool
}

// ProgressModel is a Bubble Tea model that draws one bar per item.
type ProgressModel struct {
	role     types.Role
	rows     []itemRow
	bar      progress.Model
	cancel   func()
	finished bool
	err      error
	quitting bool
}

// NewProgressModel creates a progress model for role. cancel, when not nil,
// is called if the user quits before the exchange finishes.
func NewProgressModel(role types.Role, cancel func()) ProgressModel {
	return ProgressModel{
		role: role,
		bar: progress.New(
			progress.WithGradient(string(primaryColor), string(highlightColor)),
			progress.WithWidth(defaultBarWidth),
		),
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-boxChrome, 10), maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if m.cancel != nil && !m.finished {
				m.cancel()
			}
			return m, tea.Quit
		}

	case ProgressMsg:
		m.apply(transfer.ProgressEvent(msg))
		return m, nil

	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		for i := range m.rows {
			if m.rows[i].state == stateActive {
				if msg.Err != nil {
					m.rows[i].state = stateFailed
				} else {
					m.rows[i].state = stateDone
				}
			}
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *ProgressModel) apply(ev transfer.ProgressEvent) {
	if ev.Count > len(m.rows) {
		rows := make([]itemRow, ev.Count)
		copy(rows, m.rows)
		for i := len(m.rows); i < ev.Count; i++ {
			rows[i].state = statePending
		}
		m.rows = rows
	}
	if ev.Index < 0 || ev.Index >= len(m.rows) {
		return
	}

	row := &m.rows[ev.Index]
	row.item = ev.Item
	row.seen = true
	// Done never moves backwards.
	row.done = max(row.done, ev.Done)
	if row.done >= ev.Item.Size {
		row.state = stateDone
	} else {
		row.state = stateActive
	}
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	if m.quitting && !m.finished {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("ferry %s", m.role)))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(ValueStyle.Render("waiting for peer..."))
		b.WriteString("\n")
	}

	for _, row := range m.rows {
		name := "(pending)"
		fraction := 0.0
		if row.seen {
			name = row.item.Name
			fraction = transfer.ProgressEvent{Item: row.item, Done: row.done}.Fraction()
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			LabelStyle.Render(name),
			m.bar.ViewAs(fraction),
			StateStyle(row.state).Render(row.state),
		)
	}

	switch {
	case m.finished && m.err != nil:
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
	case m.finished:
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render(stateSucceeded))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to abort")
	return BoxStyle.Render(b.String()) + "\n" + help + "\n"
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
