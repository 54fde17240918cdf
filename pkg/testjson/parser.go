package testjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ParseStream parses a go test -json stream line by line. Returns the
// aggregated results, the number of malformed lines skipped, and any scan
// error. go test interleaves non-JSON lines when tooling misbehaves, so
// malformed lines are counted rather than fatal.
func ParseStream(r io.Reader) ([]PackageResult, int, error) {
	agg := newAggregator()
	scanner := bufio.NewScanner(r)
	// Verbose failure output can produce very long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var malformed int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			malformed++
			continue
		}
		agg.process(ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("scanning test output: %w", err)
	}
	return agg.results(), malformed, nil
}

// ParseBytes is a convenience for parsing from a byte slice.
func ParseBytes(data []byte) ([]PackageResult, int, error) {
	return ParseStream(bytes.NewReader(data))
}

// EventFunc receives each decoded event during streaming.
type EventFunc func(Event)

// scanResult carries a scanned line or terminal error from the scanner
// goroutine.
type scanResult struct {
	line []byte
	err  error
}

// Stream decodes events line by line and calls fn for each one, stopping on
// EOF or context cancellation.
//
// The scanner runs in a background goroutine. On cancel, Stream closes r if
// it implements io.Closer to unblock the scanner; otherwise the caller must
// close the underlying reader to avoid a goroutine leak.
func Stream(ctx context.Context, r io.Reader, fn EventFunc) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			// Copy: the scanner reuses its buffer.
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var malformed int
	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, res.err
			}
			if len(res.line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(res.line, &ev); err != nil {
				malformed++
				continue
			}
			fn(ev)
		}
	}
}

// Aggregator folds events into package results. It underlies ParseStream
// and is exported so streaming callers can keep a running view.
type Aggregator struct {
	packages map[string]*pkgState
	order    []string
}

type pkgState struct {
	name      string
	passed    int
	failed    int
	skipped   int
	duration  time.Duration
	coverage  float64
	tests     map[string]*testState
	testOrder []string
	outputBuf map[string][]string

	buildError  string
	panicked    bool
	panicOutput []string
}

type testState struct {
	name     string
	status   string
	duration time.Duration
	output   []string
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator { return newAggregator() }

func newAggregator() *Aggregator {
	return &Aggregator{packages: make(map[string]*pkgState)}
}

// Process folds one event into the aggregate.
func (a *Aggregator) Process(ev Event) { a.process(ev) }

// Results snapshots the aggregate, dropping packages with no test activity.
func (a *Aggregator) Results() []PackageResult { return a.results() }

func (a *Aggregator) getOrCreate(name string) *pkgState {
	if pkg, ok := a.packages[name]; ok {
		return pkg
	}
	pkg := &pkgState{
		name:      name,
		tests:     make(map[string]*testState),
		outputBuf: make(map[string][]string),
	}
	a.packages[name] = pkg
	a.order = append(a.order, name)
	return pkg
}

func (a *Aggregator) process(ev Event) {
	pkg := a.getOrCreate(ev.Package)

	switch ev.Action {
	case ActionPass:
		if ev.Test != "" {
			pkg.passed++
			ts := pkg.getOrCreateTest(ev.Test)
			ts.status = StatusPass
			ts.duration = time.Duration(ev.Elapsed * float64(time.Second))
		} else {
			pkg.duration = time.Duration(ev.Elapsed * float64(time.Second))
		}

	case ActionFail:
		if ev.Test != "" {
			pkg.failed++
			ts := pkg.getOrCreateTest(ev.Test)
			ts.status = StatusFail
			ts.duration = time.Duration(ev.Elapsed * float64(time.Second))
			ts.output = pkg.outputBuf[ev.Test]
		} else {
			pkg.duration = time.Duration(ev.Elapsed * float64(time.Second))
			if pkg.passed == 0 && pkg.failed == 0 && pkg.skipped == 0 {
				pkg.buildError = strings.Join(pkg.outputBuf[""], "\n")
			}
		}

	case ActionSkip:
		if ev.Test != "" {
			pkg.skipped++
			ts := pkg.getOrCreateTest(ev.Test)
			ts.status = StatusSkip
			ts.output = pkg.outputBuf[ev.Test]
		}

	case ActionOutput:
		out := strings.TrimRight(ev.Output, "\n")
		if out == "" {
			return
		}
		// Empty test name collects package-level output.
		pkg.outputBuf[ev.Test] = append(pkg.outputBuf[ev.Test], out)

		if strings.Contains(out, "panic:") || strings.HasPrefix(out, "goroutine ") {
			pkg.panicked = true
			pkg.panicOutput = append(pkg.panicOutput, out)
		}

		if strings.Contains(out, "coverage:") && strings.Contains(out, "% of statements") {
			var cov float64
			_, _ = fmt.Sscanf(out, "coverage: %f%% of statements", &cov)
			if cov > 0 {
				pkg.coverage = cov
			}
		}
	}
}

func (pkg *pkgState) getOrCreateTest(name string) *testState {
	if ts, ok := pkg.tests[name]; ok {
		return ts
	}
	ts := &testState{name: name}
	pkg.tests[name] = ts
	pkg.testOrder = append(pkg.testOrder, name)
	return ts
}

func (a *Aggregator) results() []PackageResult {
	results := make([]PackageResult, 0, len(a.order))
	for _, name := range a.order {
		pkg := a.packages[name]
		if pkg.passed == 0 && pkg.failed == 0 && pkg.skipped == 0 && pkg.buildError == "" && !pkg.panicked {
			continue
		}

		r := PackageResult{
			Name:       pkg.name,
			Passed:     pkg.passed,
			Failed:     pkg.failed,
			Skipped:    pkg.skipped,
			Duration:   pkg.duration,
			Coverage:   pkg.coverage,
			BuildError: pkg.buildError,
			Panicked:   pkg.panicked,
		}
		if pkg.panicked {
			r.PanicOutput = append([]string(nil), pkg.panicOutput...)
		}
		for _, testName := range pkg.testOrder {
			ts := pkg.tests[testName]
			r.Tests = append(r.Tests, TestResult{
				Name:     ts.name,
				Status:   ts.status,
				Duration: ts.duration,
				Output:   ts.output,
			})
		}
		results = append(results, r)
	}
	return results
}
