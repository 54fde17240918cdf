// Package testjson parses go test -json NDJSON streams into per-package,
// per-test results that preserve execution order.
package testjson

import "time"

// Event is a single record from a go test -json stream.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"` // start, run, pause, cont, pass, fail, skip, output, bench
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// Event actions we react to. The remainder (run, pause, cont, bench) only
// affect ordering, which the aggregator derives from first sight.
const (
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// Test statuses recorded on TestResult.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// TestResult is one test's terminal state.
type TestResult struct {
	Name     string
	Status   string
	Duration time.Duration
	Output   []string // captured output, retained for failed tests
}

// PackageResult aggregates one package's run.
type PackageResult struct {
	Name     string
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Coverage float64

	// Tests holds every test in the order go test first reported it.
	Tests []TestResult

	// BuildError is the package-level output when the package failed
	// without running a single test (compile error, TestMain os.Exit,
	// fixture setup blowing up before the first test).
	BuildError string

	Panicked    bool
	PanicOutput []string
}

// TotalTests returns the number of tests the package ran or skipped.
func (r *PackageResult) TotalTests() int {
	return r.Passed + r.Failed + r.Skipped
}

// Status reduces the package to pass, fail, or skip.
func (r *PackageResult) Status() string {
	if r.BuildError != "" || r.Panicked || r.Failed > 0 {
		return StatusFail
	}
	if r.Passed == 0 && r.Skipped > 0 {
		return StatusSkip
	}
	return StatusPass
}
