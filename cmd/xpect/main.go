// xpect runs a Go test suite against a declarative table of known
// divergences: tests expected to fail and tests that must not run at all.
//
// Usage:
//
//	xpect run -e expectations.yaml ./...
//	xpect watch -e expectations.yaml ./...
//	go test -json ./... | xpect report -e expectations.yaml
//	xpect verify -e expectations.yaml ./...
//	xpect history
//
// A test listed expect-failure counts as healthy when it fails (xfail) and
// as a regression signal when it passes (upass). A test listed skip is
// excluded from execution via go test -skip, for suites whose fixture
// setup errors before the first assertion.
//
// Exit codes: 0 clean, 1 failures / unexpected passes / stale entries,
// 2 usage or harness error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/halvard/xpect/internal/config"
	"github.com/halvard/xpect/internal/history"
	"github.com/halvard/xpect/internal/version"
	"github.com/halvard/xpect/pkg/expect"
	"github.com/halvard/xpect/pkg/manifest"
	"github.com/halvard/xpect/pkg/render"
	"github.com/halvard/xpect/pkg/runner"
	"github.com/halvard/xpect/pkg/testjson"
	"github.com/halvard/xpect/pkg/tui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "run":
		return cmdRun(args[1:], stdout, stderr, false)
	case "watch":
		return cmdRun(args[1:], stdout, stderr, true)
	case "verify":
		return cmdVerify(args[1:], stdout, stderr)
	case "report":
		return cmdReport(args[1:], stdin, stdout, stderr)
	case "history":
		return cmdHistory(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "xpect %s (%s, %s)\n", version.Version, version.CommitHash, version.BuildDate)
		return 0
	default:
		fmt.Fprintf(stderr, "xpect: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: xpect <command> [flags] [packages]

Commands:
  run      run the suite and classify outcomes against the table
  watch    run with a live terminal view
  verify   check the table against the suite without running tests
  report   classify a saved go test -json stream from stdin
  history  show recent run summaries
  version  print version information

Common flags:
  -e path        expectations file (default expectations.yaml)
  -format f      output format: auto, terminal, llm, json
  -theme t       terminal theme: default, orca, mono
  -allow-upass   unexpected passes warn instead of failing the run
`)
}

// loadSettings resolves config file, env, and the given flag set into the
// final settings. fs must already be parsed.
func loadSettings(fs *flag.FlagSet, flags *config.Flags, stderr io.Writer) (*config.App, bool) {
	app, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return nil, false
	}
	config.ApplyEnv(app)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "allow-upass":
			flags.AllowUPassSet = true
		case "no-color":
			flags.NoColorSet = true
		case "history":
			flags.HistorySet = true
		case "debug":
			flags.DebugSet = true
		}
	})
	config.ApplyFlags(app, *flags)
	return app, true
}

// commonFlags registers the flags shared by run, watch, verify, and report.
func commonFlags(fs *flag.FlagSet, flags *config.Flags) {
	fs.StringVar(&flags.Expectations, "e", "", "expectations file")
	fs.StringVar(&flags.Format, "format", "", "output format: auto, terminal, llm, json")
	fs.StringVar(&flags.Theme, "theme", "", "terminal theme: default, orca, mono")
	fs.BoolVar(&flags.AllowUPass, "allow-upass", false, "unexpected passes warn instead of failing")
	fs.BoolVar(&flags.NoColor, "no-color", false, "disable colored output")
	fs.BoolVar(&flags.Debug, "debug", false, "print harness diagnostics to stderr")
}

func cmdRun(args []string, stdout, stderr io.Writer, watch bool) int {
	fs := flag.NewFlagSet("xpect run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags config.Flags
	commonFlags(fs, &flags)
	fs.StringVar(&flags.GoBin, "go", "", "go binary to invoke")
	fs.BoolVar(&flags.History, "history", true, "record the run in the local history database")
	noVerify := fs.Bool("no-verify", false, "skip the pre-run table check")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) > 0 {
		flags.Packages = fs.Args()
	}

	app, ok := loadSettings(fs, &flags, stderr)
	if !ok {
		return 2
	}

	table, err := expect.LoadFile(app.Expectations)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 2
	}
	pkgs := app.Packages
	if len(pkgs) == 0 {
		pkgs = table.Packages
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Fail fast on a stale table: every listed test must exist before
	// anything runs.
	if !*noVerify {
		m, err := manifest.Discover(ctx, "", pkgs...)
		if err != nil {
			fmt.Fprintf(stderr, "xpect: discovering tests: %v\n", err)
			return 2
		}
		if err := m.Verify(table); err != nil {
			fmt.Fprintf(stderr, "xpect: %v\n", err)
			return 2
		}
	}

	opts := runner.Options{
		Packages:    pkgs,
		SkipPattern: table.SkipPattern(),
		GoBin:       app.GoBin,
		Stderr:      stderr,
		Debug:       app.Debug,
	}

	var rep *expect.Report
	if watch {
		rep, err = tui.Run(ctx, opts, table, selectTheme(app, stdout))
		if err != nil {
			fmt.Fprintf(stderr, "xpect: %v\n", err)
			return 2
		}
	} else {
		res, err := runner.Run(ctx, opts)
		if err != nil {
			fmt.Fprintf(stderr, "xpect: %v\n", err)
			return 2
		}
		if res.Malformed > 0 {
			fmt.Fprintf(stderr, "xpect: warning: %d malformed line(s) in test stream\n", res.Malformed)
		}
		if app.Debug {
			s := testjson.ComputeStats(res.Packages)
			fmt.Fprintf(stderr, "[DEBUG run] %d tests in %d package(s), %v, %d panic(s)\n",
				s.TotalTests, s.Packages, s.Duration, s.Panics)
		}
		if code := reportBuildErrors(res.Packages, stderr); code != 0 {
			return code
		}
		rep = expect.Classify(res.Packages, table)
	}

	fmt.Fprint(stdout, selectRenderer(app, stdout).Render(rep))

	clean := rep.Clean(app.AllowUPass)
	recordHistory(app, rep, clean, stderr)
	if clean {
		return 0
	}
	return 1
}

func cmdVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("xpect verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags config.Flags
	commonFlags(fs, &flags)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) > 0 {
		flags.Packages = fs.Args()
	}
	app, ok := loadSettings(fs, &flags, stderr)
	if !ok {
		return 2
	}

	table, err := expect.LoadFile(app.Expectations)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 2
	}
	pkgs := app.Packages
	if len(pkgs) == 0 {
		pkgs = table.Packages
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := manifest.Discover(ctx, "", pkgs...)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: discovering tests: %v\n", err)
		return 2
	}
	if err := m.Verify(table); err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "ok: %d entries verified against %d tests\n", table.Len(), m.Len())
	return 0
}

func cmdReport(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("xpect report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags config.Flags
	commonFlags(fs, &flags)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	app, ok := loadSettings(fs, &flags, stderr)
	if !ok {
		return 2
	}

	table, err := expect.LoadFile(app.Expectations)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 2
	}

	input, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: reading stdin: %v\n", err)
		return 2
	}
	if len(input) == 0 {
		fmt.Fprintf(stderr, "xpect: no input on stdin\n")
		return 2
	}

	results, malformed, err := testjson.ParseBytes(input)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: parsing test stream: %v\n", err)
		return 2
	}
	if malformed > 0 {
		fmt.Fprintf(stderr, "xpect: warning: %d malformed line(s) skipped\n", malformed)
	}
	if code := reportBuildErrors(results, stderr); code != 0 {
		return code
	}

	rep := expect.Classify(results, table)
	fmt.Fprint(stdout, selectRenderer(app, stdout).Render(rep))
	if rep.Clean(app.AllowUPass) {
		return 0
	}
	return 1
}

func cmdHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("xpect history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("n", 10, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := history.Open(true)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 2
	}
	defer store.Close()

	runs, err := store.Recent(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "xpect: %v\n", err)
		return 2
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no recorded runs")
		return 0
	}
	for _, r := range runs {
		status := "clean"
		if !r.Clean {
			status = "FAIL"
		}
		fmt.Fprintf(stdout, "%s  %-5s pass %-4d fail %-4d xfail %-4d upass %-4d skip %-4d %s\n",
			r.Timestamp.Format("2006-01-02 15:04"), status,
			r.Pass, r.Fail, r.XFail, r.UPass, r.Skipped, r.Suite)
	}
	return 0
}

// reportBuildErrors surfaces packages that failed before running a single
// test. A fixture collapsing at startup is a harness-level failure, not a
// divergence the table can account for.
func reportBuildErrors(results []testjson.PackageResult, stderr io.Writer) int {
	code := 0
	for _, pkg := range results {
		if pkg.BuildError != "" {
			fmt.Fprintf(stderr, "xpect: %s failed before running tests:\n", pkg.Name)
			for _, line := range strings.Split(pkg.BuildError, "\n") {
				fmt.Fprintf(stderr, "  %s\n", line)
			}
			code = 2
		}
	}
	return code
}

func recordHistory(app *config.App, rep *expect.Report, clean bool, stderr io.Writer) {
	store, err := history.Open(app.History)
	if err != nil {
		if app.Debug {
			fmt.Fprintf(stderr, "[DEBUG history] %v\n", err)
		}
		return
	}
	defer store.Close()
	if _, err := store.Record(rep, clean); err != nil && app.Debug {
		fmt.Fprintf(stderr, "[DEBUG history] %v\n", err)
	}
	if streak, err := store.UPassStreak(rep.Suite); err == nil && streak >= 3 {
		fmt.Fprintf(stderr, "xpect: note: %d consecutive runs with unexpected passes: the table needs maintenance\n", streak)
	}
}

func selectRenderer(app *config.App, stdout io.Writer) render.Renderer {
	switch resolveFormat(app.Format, stdout) {
	case "json":
		return render.NewJSON()
	case "llm":
		return render.NewLLM()
	default:
		return render.NewTerminal(selectTheme(app, stdout), termWidth(stdout))
	}
}

func selectTheme(app *config.App, stdout io.Writer) render.Theme {
	if app.NoColor {
		return render.MonoTheme()
	}
	return render.ThemeByName(app.Theme)
}

func resolveFormat(format string, w io.Writer) string {
	if format != "" && format != "auto" {
		return format
	}
	if isTTYWriter(w) {
		return "terminal"
	}
	return "llm"
}

func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			return tw
		}
	}
	return 80
}
