//go:build mage

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target - build the binary
var Default = Build

const binPath = "bin/xpect"

func ldflags() string {
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "unknown"
	}
	date := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	return fmt.Sprintf("-X github.com/halvard/xpect/internal/version.CommitHash=%s "+
		"-X github.com/halvard/xpect/internal/version.BuildDate=%s", commit, date)
}

// Build builds the xpect binary into bin/
func Build() error {
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", binPath, "./cmd/xpect")
}

// Install installs xpect into GOBIN
func Install() error {
	return sh.RunV("go", "install", "-ldflags", ldflags(), "./cmd/xpect")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}

// Test namespace for testing commands
type Test mg.Namespace

// All runs all tests
func (Test) All() error {
	return sh.RunV("go", "test", "./...")
}

// Coverage runs tests with coverage
func (Test) Coverage() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Race runs tests with the race detector
func (Test) Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint namespace for linting commands
type Lint mg.Namespace

// All runs vet, staticcheck, and golangci-lint
func (Lint) All() error {
	mg.Deps(Lint.Vet)
	for _, tool := range []struct {
		name string
		args []string
	}{
		{"staticcheck", []string{"./..."}},
		{"golangci-lint", []string{"run", "--timeout=5m", "./..."}},
	} {
		if err := sh.RunV(tool.name, tool.args...); err != nil {
			if _, lookErr := sh.Output("which", tool.name); lookErr != nil {
				fmt.Fprintf(os.Stderr, "warning: %s not installed, skipping\n", tool.name)
				continue
			}
			return err
		}
	}
	return nil
}

// Vet runs go vet
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// QA runs the full pre-merge gate: lint, tests, build
func QA() error {
	mg.SerialDeps(Lint.All, Test.All, Build)
	return nil
}
