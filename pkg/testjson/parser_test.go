package testjson

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

const sampleStream = `{"Time":"2026-05-01T10:00:00Z","Action":"run","Package":"example.com/pkg","Test":"TestOne"}
{"Time":"2026-05-01T10:00:00Z","Action":"output","Package":"example.com/pkg","Test":"TestOne","Output":"=== RUN   TestOne\n"}
{"Time":"2026-05-01T10:00:01Z","Action":"pass","Package":"example.com/pkg","Test":"TestOne","Elapsed":0.5}
{"Time":"2026-05-01T10:00:01Z","Action":"run","Package":"example.com/pkg","Test":"TestTwo"}
{"Time":"2026-05-01T10:00:01Z","Action":"output","Package":"example.com/pkg","Test":"TestTwo","Output":"    parser_test.go:12: boom\n"}
{"Time":"2026-05-01T10:00:02Z","Action":"fail","Package":"example.com/pkg","Test":"TestTwo","Elapsed":0.1}
{"Time":"2026-05-01T10:00:02Z","Action":"skip","Package":"example.com/pkg","Test":"TestThree"}
{"Time":"2026-05-01T10:00:02Z","Action":"fail","Package":"example.com/pkg","Elapsed":2.0}
`

func TestParseStream(t *testing.T) {
	results, malformed, err := ParseStream(strings.NewReader(sampleStream))
	if err != nil {
		t.Fatal(err)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d, want 0", malformed)
	}
	if len(results) != 1 {
		t.Fatalf("packages = %d, want 1", len(results))
	}

	pkg := results[0]
	if pkg.Name != "example.com/pkg" {
		t.Errorf("name = %q", pkg.Name)
	}
	if pkg.Passed != 1 || pkg.Failed != 1 || pkg.Skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", pkg.Passed, pkg.Failed, pkg.Skipped)
	}
	if pkg.Duration != 2*time.Second {
		t.Errorf("duration = %v", pkg.Duration)
	}
	if len(pkg.Tests) != 3 {
		t.Fatalf("tests = %d, want 3", len(pkg.Tests))
	}
	if pkg.Tests[0].Name != "TestOne" || pkg.Tests[0].Status != StatusPass {
		t.Errorf("first test = %+v", pkg.Tests[0])
	}
	two := pkg.Tests[1]
	if two.Status != StatusFail {
		t.Errorf("TestTwo status = %q", two.Status)
	}
	if len(two.Output) != 1 || !strings.Contains(two.Output[0], "boom") {
		t.Errorf("TestTwo output = %q, want the buffered failure line", two.Output)
	}
}

func TestParseStreamMalformedLines(t *testing.T) {
	stream := `not json at all
{"Action":"pass","Package":"example.com/pkg","Test":"TestOne","Elapsed":0.1}
{broken
`
	results, malformed, err := ParseStream(strings.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if malformed != 2 {
		t.Errorf("malformed = %d, want 2", malformed)
	}
	if len(results) != 1 || results[0].Passed != 1 {
		t.Errorf("results = %+v", results)
	}
}

func TestParseStreamBuildError(t *testing.T) {
	stream := `{"Action":"output","Package":"example.com/broken","Output":"# example.com/broken\n"}
{"Action":"output","Package":"example.com/broken","Output":"./main.go:5:2: undefined: frobnicate\n"}
{"Action":"fail","Package":"example.com/broken","Elapsed":0}
`
	results, _, err := ParseStream(strings.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("packages = %d, want 1", len(results))
	}
	if results[0].BuildError == "" || !strings.Contains(results[0].BuildError, "undefined: frobnicate") {
		t.Errorf("build error = %q", results[0].BuildError)
	}
	if results[0].Status() != "fail" {
		t.Errorf("status = %q, want fail", results[0].Status())
	}
}

func TestParseStreamPanic(t *testing.T) {
	stream := `{"Action":"output","Package":"example.com/pkg","Test":"TestBoom","Output":"panic: runtime error: index out of range\n"}
{"Action":"output","Package":"example.com/pkg","Test":"TestBoom","Output":"goroutine 7 [running]:\n"}
{"Action":"fail","Package":"example.com/pkg","Test":"TestBoom","Elapsed":0.01}
`
	results, _, err := ParseStream(strings.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Panicked {
		t.Error("panic not detected")
	}
	if len(results[0].PanicOutput) != 2 {
		t.Errorf("panic output = %q", results[0].PanicOutput)
	}
}

func TestParseStreamCoverage(t *testing.T) {
	stream := `{"Action":"pass","Package":"example.com/pkg","Test":"TestOne","Elapsed":0.1}
{"Action":"output","Package":"example.com/pkg","Output":"coverage: 81.5% of statements\n"}
{"Action":"pass","Package":"example.com/pkg","Elapsed":0.2}
`
	results, _, err := ParseStream(strings.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Coverage != 81.5 {
		t.Errorf("coverage = %v, want 81.5", results[0].Coverage)
	}
}

func TestParseStreamEmptyInput(t *testing.T) {
	results, malformed, err := ParseStream(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if malformed != 0 || len(results) != 0 {
		t.Errorf("got %d results, %d malformed", len(results), malformed)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	var got []Event
	malformed, err := Stream(context.Background(), strings.NewReader(sampleStream), func(ev Event) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d", malformed)
	}
	if len(got) != 8 {
		t.Fatalf("events = %d, want 8", len(got))
	}
	if got[2].Action != ActionPass || got[2].Test != "TestOne" {
		t.Errorf("event 2 = %+v", got[2])
	}
}

func TestStreamCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := Stream(ctx, r, func(Event) {})
		done <- err
	}()

	_, _ = io.WriteString(w, `{"Action":"run","Package":"p","Test":"TestSlow"}`+"\n")
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
	_ = w.Close()
}

func TestAggregatorIncremental(t *testing.T) {
	agg := NewAggregator()
	agg.Process(Event{Action: ActionOutput, Package: "p", Test: "TestX", Output: "hello\n"})
	agg.Process(Event{Action: ActionFail, Package: "p", Test: "TestX", Elapsed: 0.3})

	results := agg.Results()
	if len(results) != 1 || results[0].Failed != 1 {
		t.Fatalf("results = %+v", results)
	}
	if got := results[0].Tests[0].Output; len(got) != 1 || got[0] != "hello" {
		t.Errorf("output = %q", got)
	}
}
