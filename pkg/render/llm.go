package render

import (
	"fmt"
	"strings"

	"github.com/halvard/xpect/pkg/expect"
)

// LLM renders a report as terse plain text for piped and AI consumption.
// Zero ANSI codes; only divergences are itemized, clean passes stay silent.
type LLM struct{}

// NewLLM creates an LLM renderer.
func NewLLM() *LLM {
	return &LLM{}
}

// Render formats the report. The first line is a machine-greppable verdict
// summary; subsequent lines itemize everything that needs human attention.
func (l *LLM) Render(rep *expect.Report) string {
	var sb strings.Builder

	c := rep.Counts
	status := "OK"
	if c.Fail > 0 || c.UPass > 0 || len(rep.Unmatched) > 0 {
		status = "FAIL"
	}
	sb.WriteString(fmt.Sprintf("XPECT %s: %d pass, %d fail, %d xfail, %d upass, %d skip\n",
		status, c.Pass, c.Fail, c.XFail, c.UPass, c.Skipped))

	for _, v := range rep.Verdicts {
		switch v.Kind {
		case expect.Fail:
			sb.WriteString("FAIL " + qualified(v))
			if v.Reason != "" {
				sb.WriteString(": " + v.Reason)
			}
			sb.WriteString("\n")
			for _, line := range tailLines(v.Output, 5) {
				sb.WriteString("  " + line + "\n")
			}
		case expect.UPass:
			sb.WriteString("UPASS " + qualified(v) + ": expected to fail but passed")
			if v.Reason != "" {
				sb.WriteString(" (" + v.Reason + ")")
			}
			sb.WriteString("\n")
		}
	}

	for _, e := range rep.Unmatched {
		sb.WriteString(fmt.Sprintf("STALE %s (%s): entry matched nothing\n", e.Test, e.Disposition))
	}
	return sb.String()
}

func qualified(v expect.Verdict) string {
	if v.Package == "" {
		return v.Test
	}
	return v.Package + "." + v.Test
}
