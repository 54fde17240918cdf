package expect

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/halvard/xpect/pkg/testjson"
)

func mustTable(t *testing.T, entries []Entry) *Table {
	t.Helper()
	table, err := New("suite", nil, entries)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

// The canonical scenario: suite A with one expected failure and one
// untouched test, suite B skipped entirely. B produced no events because
// the runner excluded it via -skip.
func TestClassify_ExpectedFailureAndSkip(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA/t1", Disposition: ExpectFailure, Reason: "known divergence"},
		{Test: "TestB", Disposition: Skip, Reason: "setup collides"},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 2,
		Passed: 1,
		Tests: []testjson.TestResult{
			{Name: "TestA", Status: testjson.StatusFail},
			{Name: "TestA/t1", Status: testjson.StatusFail, Output: []string{"boom"}},
			{Name: "TestA/t2", Status: testjson.StatusPass},
		},
	}}

	rep := Classify(results, table)

	kinds := verdictKinds(rep)
	if kinds["TestA/t1"] != XFail {
		t.Errorf("TestA/t1 = %v, want xfail", kinds["TestA/t1"])
	}
	if kinds["TestA/t2"] != Pass {
		t.Errorf("TestA/t2 = %v, want pass", kinds["TestA/t2"])
	}
	// Parent failed only because of the expected child failure.
	if kinds["TestA"] != XFail {
		t.Errorf("TestA = %v, want xfail (all failing subtests expected)", kinds["TestA"])
	}
	if kinds["TestB"] != Skipped {
		t.Errorf("TestB = %v, want synthesized skip", kinds["TestB"])
	}
	if len(rep.Unmatched) != 0 {
		t.Errorf("unmatched = %+v, want none", rep.Unmatched)
	}
	if !rep.Clean(false) {
		t.Error("run should be clean")
	}
}

func TestClassify_UnexpectedPass(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA", Disposition: ExpectFailure, Reason: "stale?"},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Passed: 1,
		Tests:  []testjson.TestResult{{Name: "TestA", Status: testjson.StatusPass}},
	}}

	rep := Classify(results, table)
	if rep.Counts.UPass != 1 {
		t.Fatalf("upass = %d, want 1", rep.Counts.UPass)
	}
	if rep.Verdicts[0].Output != nil {
		t.Errorf("a passing test has no failure output, got %q", rep.Verdicts[0].Output)
	}
	if rep.Clean(false) {
		t.Error("unexpected pass must fail the run by default")
	}
	if !rep.Clean(true) {
		t.Error("allowUPass should downgrade the unexpected pass")
	}
}

func TestClassify_MessageMismatchIsPlainFailure(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA", Disposition: ExpectFailure, Message: "duplicate file name"},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 1,
		Tests: []testjson.TestResult{
			{Name: "TestA", Status: testjson.StatusFail, Output: []string{"some other panic"}},
		},
	}}

	rep := Classify(results, table)
	if rep.Counts.Fail != 1 || rep.Counts.XFail != 0 {
		t.Errorf("counts = %+v, want the mismatch reported as a plain failure", rep.Counts)
	}
}

func TestClassify_MessageMatchIsXFail(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA", Disposition: ExpectFailure, Message: "duplicate file name"},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 1,
		Tests: []testjson.TestResult{
			{Name: "TestA", Status: testjson.StatusFail, Output: []string{"error: duplicate file name (test.proto)"}},
		},
	}}

	rep := Classify(results, table)
	if rep.Counts.XFail != 1 {
		t.Errorf("counts = %+v, want xfail", rep.Counts)
	}
}

func TestClassify_StaleEntryReportedUnmatched(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestGone", Disposition: ExpectFailure},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Passed: 1,
		Tests:  []testjson.TestResult{{Name: "TestA", Status: testjson.StatusPass}},
	}}

	rep := Classify(results, table)
	if len(rep.Unmatched) != 1 || rep.Unmatched[0].Test != "TestGone" {
		t.Fatalf("unmatched = %+v", rep.Unmatched)
	}
	if rep.Clean(false) || rep.Clean(true) {
		t.Error("a stale entry must fail the run")
	}
}

func TestClassify_SkipListedTestThatRanAnyway(t *testing.T) {
	// A raw stream recorded without -skip still classifies, keeping the
	// real outcome visible.
	table := mustTable(t, []Entry{
		{Test: "TestB", Disposition: Skip, Reason: "setup collides"},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 1,
		Tests:  []testjson.TestResult{{Name: "TestB", Status: testjson.StatusFail, Output: []string{"setUp: duplicate file name"}}},
	}}

	rep := Classify(results, table)
	if rep.Counts.Fail != 1 {
		t.Errorf("counts = %+v, want the executed skip reported as failure", rep.Counts)
	}
	if len(rep.Unmatched) != 0 {
		t.Errorf("entry was consumed, unmatched = %+v", rep.Unmatched)
	}
	// No second synthesized verdict for the same entry.
	if got := len(rep.Verdicts); got != 1 {
		t.Errorf("verdicts = %d, want 1", got)
	}
}

func TestClassify_SelfSkippedExpectedFailure(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA", Disposition: ExpectFailure},
	})
	results := []testjson.PackageResult{{
		Name:    "example.com/pkg",
		Skipped: 1,
		Tests:   []testjson.TestResult{{Name: "TestA", Status: testjson.StatusSkip}},
	}}

	rep := Classify(results, table)
	if rep.Counts.Skipped != 1 {
		t.Errorf("counts = %+v, want skip", rep.Counts)
	}
	if !rep.Clean(false) {
		t.Error("a self-skipped expected failure should not fail the run")
	}
}

func TestClassify_ParentWithMixedFailuresStaysFailed(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA/expected", Disposition: ExpectFailure},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 3,
		Tests: []testjson.TestResult{
			{Name: "TestA", Status: testjson.StatusFail},
			{Name: "TestA/expected", Status: testjson.StatusFail},
			{Name: "TestA/surprise", Status: testjson.StatusFail, Output: []string{"nope"}},
		},
	}}

	rep := Classify(results, table)
	kinds := verdictKinds(rep)
	if kinds["TestA"] != Fail {
		t.Errorf("TestA = %v, want fail while an unlisted subtest fails", kinds["TestA"])
	}
}

func TestClassify_Idempotent(t *testing.T) {
	table := mustTable(t, []Entry{
		{Test: "TestA", Disposition: ExpectFailure},
		{Test: "TestB", Disposition: Skip},
	})
	results := []testjson.PackageResult{{
		Name:   "example.com/pkg",
		Failed: 1,
		Tests:  []testjson.TestResult{{Name: "TestA", Status: testjson.StatusFail}},
	}}

	first := Classify(results, table)
	second := Classify(results, table)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("classification not stable (-first +second):\n%s", diff)
	}
}

func verdictKinds(rep *Report) map[string]Kind {
	kinds := make(map[string]Kind, len(rep.Verdicts))
	for _, v := range rep.Verdicts {
		kinds[v.Test] = v.Kind
	}
	return kinds
}
