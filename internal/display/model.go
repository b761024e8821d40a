package display

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const windowTitle = "GlowRoutine"

type refreshMsg time.Time

// model is the Bubble Tea model: a status bar over a single-line prompt.
type model struct {
	sessions SessionLister
	input    textinput.Model
	inputCh  chan<- string
	readyCh  chan struct{}
	echo     func(string)
	items    []barItem
	width    int
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refresh(), markReady(m.readyCh))
}

func markReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

// refresh polls the sessions twice a second so countdowns stay smooth
// even when the tick interval is shortened.
func refresh() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.input.Reset()
			return m, nil
		case tea.KeyEnter:
			v := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if v == "" {
				return m, nil
			}
			m.inputCh <- v
			// Echo from a Cmd so Println doesn't block inside Update.
			echo := m.echo
			return m, func() tea.Msg {
				echo(v)
				return nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(prompt) {
			m.input.Width = msg.Width - len(prompt)
		}
		return m, nil

	case refreshMsg:
		if m.sessions != nil {
			m.items = barItems(m.sessions.ActiveSessions())
		}
		title := windowTitle
		if len(m.items) > 0 {
			title += " | " + titleText(m.items)
		}
		return m, tea.Batch(refresh(), tea.SetWindowTitle(title))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	if len(m.items) > 0 {
		b.WriteString(renderBar(m.items, m.width))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}
