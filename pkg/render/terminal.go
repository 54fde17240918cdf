package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/halvard/xpect/pkg/expect"
)

// Terminal renders a report as styled terminal output via lipgloss.
type Terminal struct {
	theme Theme
	width int
	caser cases.Caser
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme, width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	return &Terminal{theme: theme, width: width, caser: cases.Title(language.English)}
}

// Render formats the report for terminal display: one line per verdict,
// grouped by package, followed by a counts line and table maintenance
// warnings.
func (t *Terminal) Render(rep *expect.Report) string {
	var sb strings.Builder

	if rep.Suite != "" {
		sb.WriteString(t.theme.Bold.Render(t.caser.String(rep.Suite)))
		sb.WriteString("\n")
	}

	groups, order := groupByPackage(rep.Verdicts)
	nameWidth := t.nameColumnWidth(rep.Verdicts)

	for _, pkg := range order {
		label := pkg
		if label == "" {
			label = "(suite)"
		}
		sb.WriteString("  ")
		sb.WriteString(t.theme.Primary.Render(label))
		sb.WriteString("\n")
		for _, v := range groups[pkg] {
			t.renderVerdict(&sb, v, nameWidth)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(t.countsLine(rep))
	sb.WriteString("\n")

	for _, e := range rep.Unmatched {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Error.Render(fmt.Sprintf("stale entry: %s (%s) matched nothing", e.Test, e.Disposition)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderVerdict(sb *strings.Builder, v expect.Verdict, nameWidth int) {
	icon, style := t.kindIconStyle(v.Kind)
	sb.WriteString("    ")
	sb.WriteString(style.Render(icon + " "))
	sb.WriteString(padRight(truncate(v.Test, nameWidth), nameWidth))

	if v.Duration > 0 {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Muted.Render(padLeft(formatDuration(v.Duration), 7)))
	}
	if note := verdictNote(v); note != "" {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Muted.Render(note))
	}
	sb.WriteString("\n")

	if v.Kind == expect.Fail {
		for _, line := range tailLines(v.Output, 8) {
			sb.WriteString("      ")
			sb.WriteString(t.theme.Muted.Render(line))
			sb.WriteString("\n")
		}
	}
}

func (t *Terminal) countsLine(rep *expect.Report) string {
	c := rep.Counts
	parts := []string{
		t.theme.Success.Render(fmt.Sprintf("pass %d", c.Pass)),
		t.theme.Error.Render(fmt.Sprintf("fail %d", c.Fail)),
		t.theme.Muted.Render(fmt.Sprintf("xfail %d", c.XFail)),
		t.theme.Warning.Render(fmt.Sprintf("upass %d", c.UPass)),
		t.theme.Muted.Render(fmt.Sprintf("skip %d", c.Skipped)),
	}
	return "  " + strings.Join(parts, "  ")
}

func (t *Terminal) kindIconStyle(k expect.Kind) (string, lipgloss.Style) {
	switch k {
	case expect.Pass:
		return t.theme.Icons.Pass, t.theme.Success
	case expect.Fail:
		return t.theme.Icons.Fail, t.theme.Error
	case expect.XFail:
		return t.theme.Icons.XFail, t.theme.Muted
	case expect.UPass:
		return t.theme.Icons.UPass, t.theme.Warning
	default:
		return t.theme.Icons.Skip, t.theme.Muted
	}
}

func (t *Terminal) nameColumnWidth(verdicts []expect.Verdict) int {
	max := 0
	for _, v := range verdicts {
		// Display width, not byte length: padding and truncation are
		// runewidth-based, so the measurement must be too.
		if w := runewidth.StringWidth(v.Test); w > max {
			max = w
		}
	}
	limit := t.width - 30
	if limit < 20 {
		limit = 20
	}
	if max > limit {
		max = limit
	}
	return max
}

// verdictNote picks the annotation shown after the name column. upass gets
// an explicit call to action; the rest surface the table's reason.
func verdictNote(v expect.Verdict) string {
	if v.Kind == expect.UPass {
		if v.Reason != "" {
			return "expected to fail but passed (" + v.Reason + ")"
		}
		return "expected to fail but passed"
	}
	return v.Reason
}

func groupByPackage(verdicts []expect.Verdict) (map[string][]expect.Verdict, []string) {
	groups := make(map[string][]expect.Verdict)
	var order []string
	for _, v := range verdicts {
		if _, ok := groups[v.Package]; !ok {
			order = append(order, v.Package)
		}
		groups[v.Package] = append(groups[v.Package], v)
	}
	return groups, order
}

func tailLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}
