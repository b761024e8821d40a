package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

const tagline = "wash · treat · protect · level up"

// RenderBanner returns the banner art and tagline centred for the current
// terminal width. Replace banner.txt to change the art.
func RenderBanner() string {
	return renderBanner(bannerRaw, termWidth())
}

func renderBanner(raw string, width int) string {
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	lines = append(lines, "", tagline)

	// Centre the block on its widest line so the art keeps its shape.
	maxW := 0
	for _, l := range lines {
		maxW = max(maxW, len([]rune(l)))
	}
	pad := ""
	if width > maxW {
		pad = strings.Repeat(" ", (width-maxW)/2)
	}

	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString(pad)
			b.WriteString(BannerStyle.Render(l))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
