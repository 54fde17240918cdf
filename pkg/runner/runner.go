// Package runner executes go test -json over the target packages and feeds
// the stream into the testjson aggregator. Skip-listed tests are excluded
// at the go test level via -skip, so their fixtures never run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"time"

	"github.com/halvard/xpect/pkg/testjson"
)

// SignalTimeout is how long a forwarded signal gets before the process
// group is killed outright.
const SignalTimeout = 5 * time.Second

// ErrStartup reports that the child never produced results (bad go binary,
// unparsable flags). Distinct from a nonzero test exit, which is normal
// whenever expected failures exist.
var ErrStartup = errors.New("test command failed to start")

// Options configures a run.
type Options struct {
	// Dir is the working directory for the child. Empty means inherit.
	Dir string

	// Packages are go list patterns. Empty defaults to ./...
	Packages []string

	// SkipPattern and RunPattern are passed through as -skip and -run.
	SkipPattern string
	RunPattern  string

	// ExtraArgs are appended verbatim to the go test invocation.
	ExtraArgs []string

	// GoBin overrides the go binary. Empty means "go" from PATH.
	GoBin string

	// OnEvent, when set, observes every decoded event as it arrives.
	// Used by the live view.
	OnEvent testjson.EventFunc

	// Stderr receives the child's stderr. Nil discards it.
	Stderr io.Writer

	Debug bool
}

// Result is the outcome of one child run.
type Result struct {
	Packages  []testjson.PackageResult
	Malformed int

	// ExitCode is the child's exit code. Informational only: verdict
	// counts decide success, since xfails make go test exit nonzero.
	ExitCode int
}

// Run executes go test -json and aggregates its stream. A nonzero child
// exit is not an error; failing to start or losing the stream is.
func Run(ctx context.Context, opts Options) (*Result, error) {
	pkgs := opts.Packages
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	goBin := opts.GoBin
	if goBin == "" {
		goBin = "go"
	}

	args := []string{"test", "-json"}
	if opts.RunPattern != "" {
		args = append(args, "-run", opts.RunPattern)
	}
	if opts.SkipPattern != "" {
		args = append(args, "-skip", opts.SkipPattern)
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, pkgs...)

	if opts.Debug {
		fmt.Fprintf(os.Stderr, "[DEBUG runner] exec: %s %v\n", goBin, args)
	}

	cmd := exec.CommandContext(ctx, goBin, args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("piping test output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}

	cmdDone := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, getInterruptSignals()...)
	go forwardSignals(ctx, cmd, sigChan, cmdDone, opts.Debug)

	agg := testjson.NewAggregator()
	malformed, streamErr := testjson.Stream(ctx, stdout, func(ev testjson.Event) {
		agg.Process(ev)
		if opts.OnEvent != nil {
			opts.OnEvent(ev)
		}
	})

	waitErr := cmd.Wait()
	close(cmdDone)
	signal.Stop(sigChan)

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) && !errors.Is(streamErr, io.ErrClosedPipe) && !errors.Is(streamErr, os.ErrClosed) {
		return nil, fmt.Errorf("reading test stream: %w", streamErr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Result{Packages: agg.Results(), Malformed: malformed}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrStartup, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// forwardSignals relays interrupts to the child's process group, escalating
// to SIGKILL when the child ignores them past SignalTimeout.
func forwardSignals(ctx context.Context, cmd *exec.Cmd, sigChan chan os.Signal, cmdDone chan struct{}, debug bool) {
	select {
	case sig := <-sigChan:
		if debug {
			fmt.Fprintf(os.Stderr, "[DEBUG runner] forwarding %v to child\n", sig)
		}
		if err := killProcessGroup(cmd, sig); err != nil && debug {
			fmt.Fprintf(os.Stderr, "[DEBUG runner] signal forward failed: %v\n", err)
		}
		select {
		case <-cmdDone:
		case <-time.After(SignalTimeout):
			if cmd.Process != nil && cmd.ProcessState == nil {
				_ = killProcessGroupWithSIGKILL(cmd)
			}
		}
	case <-ctx.Done():
		if cmd.Process != nil && cmd.ProcessState == nil {
			_ = killProcessGroupWithSIGKILL(cmd)
		}
	case <-cmdDone:
	}
}
