// Package render formats expectation reports for terminals, pipes, and
// automation.
package render

import (
	"strings"

	"github.com/halvard/xpect/pkg/expect"
	"github.com/mattn/go-runewidth"
)

// Renderer converts a classified report to formatted output.
type Renderer interface {
	Render(rep *expect.Report) string
}

func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func padLeft(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
