package render

import (
	"encoding/json"

	"github.com/halvard/xpect/pkg/expect"
)

// JSON renders a report as structured JSON for automation.
type JSON struct{}

// NewJSON creates a JSON renderer.
func NewJSON() *JSON {
	return &JSON{}
}

// jsonReport is the top-level JSON structure.
type jsonReport struct {
	Version   string        `json:"version"`
	Suite     string        `json:"suite,omitempty"`
	Counts    jsonCounts    `json:"counts"`
	Verdicts  []jsonVerdict `json:"verdicts"`
	Unmatched []jsonEntry   `json:"unmatched,omitempty"`
}

type jsonCounts struct {
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	XFail   int `json:"xfail"`
	UPass   int `json:"upass"`
	Skipped int `json:"skip"`
}

type jsonVerdict struct {
	Package    string   `json:"package,omitempty"`
	Test       string   `json:"test"`
	Kind       string   `json:"kind"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Output     []string `json:"output,omitempty"`
}

type jsonEntry struct {
	Package     string `json:"package,omitempty"`
	Test        string `json:"test"`
	Disposition string `json:"disposition"`
	Reason      string `json:"reason,omitempty"`
}

// Render formats the report as indented JSON.
func (j *JSON) Render(rep *expect.Report) string {
	out := jsonReport{
		Version: "1",
		Suite:   rep.Suite,
		Counts: jsonCounts{
			Pass:    rep.Counts.Pass,
			Fail:    rep.Counts.Fail,
			XFail:   rep.Counts.XFail,
			UPass:   rep.Counts.UPass,
			Skipped: rep.Counts.Skipped,
		},
		Verdicts: make([]jsonVerdict, 0, len(rep.Verdicts)),
	}
	for _, v := range rep.Verdicts {
		out.Verdicts = append(out.Verdicts, jsonVerdict{
			Package:    v.Package,
			Test:       v.Test,
			Kind:       v.Kind.String(),
			DurationMS: v.Duration.Milliseconds(),
			Reason:     v.Reason,
			Output:     v.Output,
		})
	}
	for _, e := range rep.Unmatched {
		out.Unmatched = append(out.Unmatched, jsonEntry{
			Package:     e.Package,
			Test:        e.Test,
			Disposition: e.Disposition.String(),
			Reason:      e.Reason,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		errJSON, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(errJSON)
	}
	return string(data) + "\n"
}
