// Package expect implements declarative test-expectation tables: a list of
// tests known to diverge from their upstream suite, each carrying a
// disposition that tells the harness how to treat its outcome.
package expect

import (
	"fmt"
	"time"
)

// Disposition tells the harness how to treat a listed test.
type Disposition int

const (
	// ExpectFailure runs the test and treats a failure as the expected
	// outcome. A pass is flagged as an unexpected pass.
	ExpectFailure Disposition = iota

	// Skip excludes the test from execution entirely. Used when the
	// test's setup errors before the body runs, so pass/fail direction
	// is meaningless.
	Skip
)

// String returns the YAML spelling of the disposition.
func (d Disposition) String() string {
	switch d {
	case ExpectFailure:
		return "expect-failure"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// ParseDisposition parses the YAML spelling of a disposition.
func ParseDisposition(s string) (Disposition, error) {
	switch s {
	case "expect-failure", "xfail":
		return ExpectFailure, nil
	case "skip":
		return Skip, nil
	default:
		return 0, fmt.Errorf("unknown disposition %q (expected expect-failure or skip)", s)
	}
}

// Entry marks a single test with a disposition.
type Entry struct {
	// Test is the full test path as go test reports it, e.g.
	// "TestDescriptorPool" or "TestDescriptor/JsonName".
	Test string

	// Package restricts the entry to one import path. Empty matches the
	// test name in any package.
	Package string

	Disposition Disposition

	// Reason records why the divergence exists: an issue reference or a
	// short note. Shown in reports, never interpreted.
	Reason string

	// Message, when non-empty on an expect-failure entry, must appear in
	// the captured failure output. A failure without it is reported as a
	// plain failure: the test still fails, but not the way the table
	// says it should.
	Message string
}

// TopLevel returns the first path element of the entry's test name.
func (e Entry) TopLevel() string {
	for i := 0; i < len(e.Test); i++ {
		if e.Test[i] == '/' {
			return e.Test[:i]
		}
	}
	return e.Test
}

// Kind classifies a single test outcome after the table is applied.
type Kind int

const (
	// Pass is an unlisted test that passed.
	Pass Kind = iota
	// Fail is an unlisted test that failed, or a listed one whose
	// failure output did not match the entry's message.
	Fail
	// XFail is a listed test that failed as expected.
	XFail
	// UPass is a listed test that passed even though the table expects
	// it to fail. A regression signal: the entry needs maintenance.
	UPass
	// Skipped covers both tests excluded by a skip entry and tests that
	// skipped themselves.
	Skipped
)

// String returns the report spelling of the kind.
func (k Kind) String() string {
	switch k {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case XFail:
		return "xfail"
	case UPass:
		return "upass"
	case Skipped:
		return "skip"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Verdict is the harness's final word on one test.
type Verdict struct {
	Package  string
	Test     string
	Kind     Kind
	Duration time.Duration

	// Reason is the table entry's reason for listed tests, or a note
	// explaining a reclassification (e.g. message mismatch).
	Reason string

	// Output holds captured failure output for Fail verdicts. A test
	// that passed has no failure output, so UPass carries none.
	Output []string
}
