// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type keeps a session status bar and an input prompt pinned to
// the bottom of the terminal. Everything else is printed above them via
// Program.Println, so output from timer goroutines never garbles the
// prompt.
package display

import (
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/glowroutine/internal/engine"
)

const prompt = "glow> "

// Output palette.
var (
	// BannerStyle is used for the startup banner.
	BannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5d0c5"))

	chatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbcfe8"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0")).Bold(true)
	bodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e4e4e7"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#78716c"))
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
	xpGainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a")).Bold(true)
	xpLossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fda4af"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9a8d4"))
	echoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a8a29e"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9a8d4"))
	echoPrompter = promptStyle.Render("glow") + hintStyle.Render("> ")
)

// SessionLister reports the running sessions shown in the status bar.
// *engine.Engine satisfies it.
type SessionLister interface {
	ActiveSessions() []engine.SessionInfo
}

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may call the
// Print helpers and read [UI.InputChan] once [UI.WaitReady] returns.
type UI struct {
	sessions SessionLister
	program  *tea.Program
	inputCh  chan string
	readyCh  chan struct{}
	done     atomic.Bool
}

// NewUI creates the display. Call Run to start it.
func NewUI(sessions SessionLister) *UI {
	return &UI{
		sessions: sessions,
		inputCh:  make(chan string, 16),
		readyCh:  make(chan struct{}),
	}
}

// Println prints a line above the prompt. Before Run starts and after it
// returns, output goes straight to stdout.
func (u *UI) Println(a ...interface{}) {
	if u.live() {
		u.program.Println(a...)
		return
	}
	fmt.Println(a...)
}

// Printf prints formatted text above the prompt on its own line.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.live() {
		u.program.Printf(format, a...)
		return
	}
	fmt.Printf(format+"\n", a...)
}

func (u *UI) live() bool { return u.program != nil && !u.done.Load() }

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// PrintChat prints a conversational line.
func (u *UI) PrintChat(text string) { u.Println(chatStyle.Render("  " + text)) }

// PrintStep prints a step header like "Step 2/6 · Vitamin C serum".
func (u *UI) PrintStep(text string) { u.Println(stepStyle.Render("  " + text)) }

// PrintInstruction prints the step's main instruction.
func (u *UI) PrintInstruction(text string) { u.Println(bodyStyle.Render("  " + text)) }

// PrintHint prints a dimmed line for tips and prompts.
func (u *UI) PrintHint(text string) { u.Println(hintStyle.Render("  " + text)) }

// PrintUrgent prints an error or alert.
func (u *UI) PrintUrgent(text string) { u.Println(alertStyle.Render("  " + text)) }

// PrintXP prints an XP award or penalty.
func (u *UI) PrintXP(amount int) {
	if amount < 0 {
		u.Println(xpLossStyle.Render(fmt.Sprintf("  %d XP", amount)))
		return
	}
	u.Println(xpGainStyle.Render(fmt.Sprintf("  +%d XP", amount)))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// Run starts the Bubble Tea event loop and blocks until quit.
func (u *UI) Run() error {
	ti := textinput.New()
	// A plain-text prompt keeps textinput's width math right; styled
	// prompts add ANSI bytes it counts as columns.
	ti.Prompt = prompt
	ti.PromptStyle = promptStyle
	ti.TextStyle = echoStyle
	ti.Cursor.Style = cursorStyle
	ti.CharLimit = 200
	ti.Width = 60
	ti.Focus()

	m := model{
		sessions: u.sessions,
		input:    ti,
		inputCh:  u.inputCh,
		readyCh:  u.readyCh,
		echo: func(v string) {
			u.Println(echoPrompter + echoStyle.Render(v))
		},
	}

	u.program = tea.NewProgram(m)
	_, err := u.program.Run()
	u.done.Store(true)
	return err
}
