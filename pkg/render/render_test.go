package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/halvard/xpect/pkg/expect"
)

func sampleReport() *expect.Report {
	return &expect.Report{
		Suite: "descriptor conformance",
		Verdicts: []expect.Verdict{
			{Package: "example.com/pkg", Test: "TestPass", Kind: expect.Pass, Duration: 120 * time.Millisecond},
			{Package: "example.com/pkg", Test: "TestKnown", Kind: expect.XFail, Reason: "known divergence"},
			{Package: "example.com/pkg", Test: "TestBroke", Kind: expect.Fail, Output: []string{"assert failed", "got 1 want 2"}},
			{Package: "example.com/pkg", Test: "TestSurprise", Kind: expect.UPass, Reason: "stale?"},
			{Package: "example.com/other", Test: "TestSkipped", Kind: expect.Skipped, Reason: "setup collides"},
		},
		Unmatched: []expect.Entry{
			{Test: "TestGone", Disposition: expect.ExpectFailure},
		},
		Counts: expect.Counts{Pass: 1, Fail: 1, XFail: 1, UPass: 1, Skipped: 1},
	}
}

func TestLLMRender(t *testing.T) {
	out := NewLLM().Render(sampleReport())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if lines[0] != "XPECT FAIL: 1 pass, 1 fail, 1 xfail, 1 upass, 1 skip" {
		t.Errorf("summary line = %q", lines[0])
	}
	if !strings.Contains(out, "FAIL example.com/pkg.TestBroke") {
		t.Error("failure not itemized")
	}
	if !strings.Contains(out, "  got 1 want 2") {
		t.Error("failure output not indented below the item")
	}
	if !strings.Contains(out, "UPASS example.com/pkg.TestSurprise") {
		t.Error("unexpected pass not itemized")
	}
	if !strings.Contains(out, "STALE TestGone (expect-failure)") {
		t.Error("stale entry not itemized")
	}
	// Clean verdicts stay silent.
	if strings.Contains(out, "TestPass") || strings.Contains(out, "TestKnown") {
		t.Error("clean verdicts should not be itemized")
	}
}

func TestLLMRenderCleanRun(t *testing.T) {
	rep := &expect.Report{
		Suite:    "s",
		Verdicts: []expect.Verdict{{Test: "TestA", Kind: expect.Pass}},
		Counts:   expect.Counts{Pass: 1},
	}
	out := NewLLM().Render(rep)
	if !strings.HasPrefix(out, "XPECT OK: 1 pass, 0 fail") {
		t.Errorf("out = %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("clean run should be one line, got %q", out)
	}
}

func TestTerminalRender(t *testing.T) {
	// MonoTheme keeps the assertions free of ANSI escape sequences.
	out := NewTerminal(MonoTheme(), 100).Render(sampleReport())

	if !strings.Contains(out, "Descriptor Conformance") {
		t.Error("suite heading missing or not title-cased")
	}
	if !strings.Contains(out, "example.com/pkg") || !strings.Contains(out, "example.com/other") {
		t.Error("package groups missing")
	}
	if !strings.Contains(out, "x TestBroke") {
		t.Errorf("failure row missing mono fail icon:\n%s", out)
	}
	if !strings.Contains(out, "got 1 want 2") {
		t.Error("failure output tail missing")
	}
	if !strings.Contains(out, "expected to fail but passed (stale?)") {
		t.Error("upass annotation missing")
	}
	if !strings.Contains(out, "pass 1  fail 1  xfail 1  upass 1  skip 1") {
		t.Errorf("counts line missing:\n%s", out)
	}
	if !strings.Contains(out, "stale entry: TestGone (expect-failure) matched nothing") {
		t.Error("stale warning missing")
	}
}

func TestJSONRender(t *testing.T) {
	out := NewJSON().Render(sampleReport())

	var doc struct {
		Version string `json:"version"`
		Suite   string `json:"suite"`
		Counts  struct {
			Pass  int `json:"pass"`
			UPass int `json:"upass"`
		} `json:"counts"`
		Verdicts []struct {
			Test       string `json:"test"`
			Kind       string `json:"kind"`
			DurationMS int64  `json:"duration_ms"`
		} `json:"verdicts"`
		Unmatched []struct {
			Test        string `json:"test"`
			Disposition string `json:"disposition"`
		} `json:"unmatched"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if doc.Version != "1" || doc.Suite != "descriptor conformance" {
		t.Errorf("header = %q %q", doc.Version, doc.Suite)
	}
	if doc.Counts.Pass != 1 || doc.Counts.UPass != 1 {
		t.Errorf("counts = %+v", doc.Counts)
	}
	if len(doc.Verdicts) != 5 {
		t.Fatalf("verdicts = %d", len(doc.Verdicts))
	}
	if doc.Verdicts[0].Kind != "pass" || doc.Verdicts[0].DurationMS != 120 {
		t.Errorf("first verdict = %+v", doc.Verdicts[0])
	}
	if len(doc.Unmatched) != 1 || doc.Unmatched[0].Disposition != "expect-failure" {
		t.Errorf("unmatched = %+v", doc.Unmatched)
	}
}

func TestTailLines(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}
	if got := tailLines(lines, 2); len(got) != 2 || got[0] != "c" {
		t.Errorf("tail = %v", got)
	}
	if got := tailLines(lines, 10); len(got) != 4 {
		t.Errorf("tail = %v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(42 * time.Millisecond); got != "42ms" {
		t.Errorf("got %q", got)
	}
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("got %q", got)
	}
}

func TestThemeByName(t *testing.T) {
	for _, name := range []string{"default", "orca", "mono"} {
		if th := ThemeByName(name); th.Name != name {
			t.Errorf("theme name = %q, want %q", th.Name, name)
		}
	}
	if th := ThemeByName("neon"); th.Name != "default" {
		t.Errorf("unknown theme should fall back to default, got %q", th.Name)
	}
}

func TestNameColumnWidthUsesDisplayWidth(t *testing.T) {
	verdicts := []expect.Verdict{
		// 4 + 3 double-width runes: 10 display cells, 13 bytes.
		{Test: "Test日本語", Kind: expect.Pass},
	}
	tr := NewTerminal(MonoTheme(), 100)
	if got := tr.nameColumnWidth(verdicts); got != 10 {
		t.Errorf("nameColumnWidth = %d, want 10 display cells", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("TestVeryLongNameIndeed", 10); len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
