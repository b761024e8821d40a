package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
)

var (
	barStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#292524")).
			Foreground(lipgloss.Color("#d6d3d1"))
	waitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a"))
	turnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#78716c")).Italic(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0"))
	xpBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9a8d4"))
	sepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#57534e"))
)

// barItem is one running session in the status bar.
type barItem struct {
	label     string
	remaining time.Duration
	waiting   bool
	done      bool
	xp        int
	totalXP   int
}

// barItems converts running sessions to status bar entries, sorted by
// label so the bar doesn't shuffle between refreshes.
func barItems(sessions []engine.SessionInfo) []barItem {
	items := make([]barItem, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Snapshot
		label := fmt.Sprintf("%s %d/%d", s.Section, min(snap.StepIndex+1, snap.StepCount), snap.StepCount)
		if snap.Step != nil && snap.State != sequencer.StateComplete {
			label += " " + snap.Step.DisplayName
			if snap.TotalSets > 0 {
				label += fmt.Sprintf(" (set %d/%d)", snap.CurrentSet, snap.TotalSets)
			}
		}
		items = append(items, barItem{
			label:     label,
			remaining: time.Duration(snap.WaitRemaining) * time.Second,
			waiting:   snap.State == sequencer.StateWaiting,
			done:      snap.State == sequencer.StateComplete,
			xp:        snap.XPEarned,
			totalXP:   snap.TotalXP,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].label < items[j].label })
	return items
}

func titleText(items []barItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.done:
			parts = append(parts, it.label+": done")
		case it.waiting:
			parts = append(parts, it.label+": "+fmtDuration(it.remaining))
		default:
			parts = append(parts, it.label)
		}
	}
	return strings.Join(parts, " | ")
}

func renderBar(items []barItem, width int) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch {
		case it.done:
			s = doneStyle.Render(it.label + " ✓")
		case it.waiting:
			s = it.label + " " + waitStyle.Render(fmtDuration(it.remaining))
		default:
			s = it.label + turnStyle.Render(" your turn")
		}
		s += sepStyle.Render(" · ") + xpBarStyle.Render(fmt.Sprintf("%d/%d XP", it.xp, it.totalXP))
		parts = append(parts, s)
	}
	if width <= 0 {
		width = 80
	}
	return barStyle.Width(width).Render(" " + strings.Join(parts, sepStyle.Render("  │  ")) + " ")
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
