package expect

import (
	"strconv"
	"strings"

	"github.com/halvard/xpect/pkg/testjson"
)

// Report is the outcome of applying a table to a finished test run.
type Report struct {
	Suite    string
	Verdicts []Verdict

	// Unmatched lists entries that no executed or skipped test consumed.
	// A stale table is a maintenance bug, not background noise.
	Unmatched []Entry

	Counts Counts
}

// Counts aggregates verdicts by kind.
type Counts struct {
	Pass    int
	Fail    int
	XFail   int
	UPass   int
	Skipped int
}

// Total returns the number of counted verdicts.
func (c Counts) Total() int {
	return c.Pass + c.Fail + c.XFail + c.UPass + c.Skipped
}

// HasFailures reports whether any plain failure was recorded.
func (r *Report) HasFailures() bool { return r.Counts.Fail > 0 }

// Clean reports whether the run should exit zero. Unexpected passes and
// unmatched entries fail the run unless allowUPass downgrades them.
func (r *Report) Clean(allowUPass bool) bool {
	if r.Counts.Fail > 0 || len(r.Unmatched) > 0 {
		return false
	}
	if !allowUPass && r.Counts.UPass > 0 {
		return false
	}
	return true
}

// Classify applies the table to parsed test results. It is pure: the table
// and the results are read, never written, so classifying the same input
// twice yields the same report.
func Classify(results []testjson.PackageResult, table *Table) *Report {
	r := &Report{Suite: table.Suite}
	consumed := make(map[int]bool, table.Len())

	for _, pkg := range results {
		for _, tr := range pkg.Tests {
			v := classifyOne(pkg.Name, tr, table, consumed)
			r.Verdicts = append(r.Verdicts, v)
		}
		reclassifyParents(r.Verdicts[len(r.Verdicts)-len(pkg.Tests):], table)
	}

	// Skip-listed tests never execute, so go test emits no events for
	// them. Synthesize their verdicts so the report still accounts for
	// every listed test.
	for _, e := range table.SkipEntries() {
		i := table.index[tableKey{pkg: e.Package, test: e.Test}]
		if consumed[i] {
			continue
		}
		consumed[i] = true
		r.Verdicts = append(r.Verdicts, Verdict{
			Package: e.Package,
			Test:    e.Test,
			Kind:    Skipped,
			Reason:  e.Reason,
		})
	}

	for i, e := range table.entries {
		if !consumed[i] {
			r.Unmatched = append(r.Unmatched, e)
		}
	}

	for _, v := range r.Verdicts {
		switch v.Kind {
		case Pass:
			r.Counts.Pass++
		case Fail:
			r.Counts.Fail++
		case XFail:
			r.Counts.XFail++
		case UPass:
			r.Counts.UPass++
		case Skipped:
			r.Counts.Skipped++
		}
	}
	return r
}

func classifyOne(pkg string, tr testjson.TestResult, table *Table, consumed map[int]bool) Verdict {
	v := Verdict{Package: pkg, Test: tr.Name, Duration: tr.Duration}

	i, ok := table.lookup(pkg, tr.Name)
	if !ok {
		v.Kind = rawKind(tr.Status)
		if v.Kind == Fail {
			v.Output = tr.Output
		}
		return v
	}
	consumed[i] = true
	e := table.entries[i]
	v.Reason = e.Reason

	switch e.Disposition {
	case Skip:
		if tr.Status == testjson.StatusSkip {
			v.Kind = Skipped
			return v
		}
		// The test ran anyway: the caller fed a stream recorded
		// without the skip pattern. Keep the raw outcome visible.
		v.Kind = rawKind(tr.Status)
		v.Reason = "skip-listed but executed"
		if v.Kind == Fail {
			v.Output = tr.Output
		}
	case ExpectFailure:
		switch tr.Status {
		case testjson.StatusFail:
			if e.Message != "" && !outputContains(tr.Output, e.Message) {
				v.Kind = Fail
				v.Reason = "failed, but expected message " + strconv.Quote(e.Message) + " not found"
				v.Output = tr.Output
				return v
			}
			v.Kind = XFail
		case testjson.StatusPass:
			v.Kind = UPass
		default:
			v.Kind = Skipped
		}
	}
	return v
}

// reclassifyParents turns a parent failure into an expected failure when
// every failing subtest under it is itself an expected failure. go test
// marks the parent FAIL whenever any child fails, which would otherwise
// surface a plain failure the table already accounts for.
func reclassifyParents(verdicts []Verdict, table *Table) {
	kinds := make(map[string]Kind, len(verdicts))
	for _, v := range verdicts {
		kinds[v.Test] = v.Kind
	}
	for i := range verdicts {
		v := &verdicts[i]
		if v.Kind != Fail {
			continue
		}
		if _, listed := table.Lookup(v.Package, v.Test); listed {
			continue
		}
		expected, plain := 0, 0
		for name, k := range kinds {
			if !strings.HasPrefix(name, v.Test+"/") {
				continue
			}
			switch k {
			case XFail:
				expected++
			case Fail:
				plain++
			}
		}
		if expected > 0 && plain == 0 {
			v.Kind = XFail
			v.Reason = "all failing subtests are expected failures"
			v.Output = nil
		}
	}
}

func (t *Table) lookup(pkg, test string) (int, bool) {
	if i, ok := t.index[tableKey{pkg: pkg, test: test}]; ok {
		return i, true
	}
	if i, ok := t.index[tableKey{test: test}]; ok {
		return i, true
	}
	return 0, false
}

func rawKind(status string) Kind {
	switch status {
	case testjson.StatusPass:
		return Pass
	case testjson.StatusFail:
		return Fail
	default:
		return Skipped
	}
}

func outputContains(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
