// Package checks runs the fixed-order verification battery
// (typecheck, lint, test) against a workspace after a fix attempt, adapted
// from medivac/engine/buildinfo.go's package-manager detection and the
// bounded subprocess-output pattern used across medivac/engine.
package checks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/config"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Name identifies one check in the fixed battery order.
type Name string

const (
	Typecheck Name = "typecheck"
	Lint      Name = "lint"
	Test      Name = "test"
)

// Order is the fixed battery order required by spec.md §4.6: typecheck,
// then lint, then test. A later check never runs after an earlier one
// fails.
var Order = []Name{Typecheck, Lint, Test}

// Status is the per-check terminal state: passed, a genuine failure, or a
// timeout (distinguished so a retry prompt can tell "the code is wrong"
// from "the command ran out of time").
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Result is the outcome of one check.
type Result struct {
	Name     Name
	Command  string
	Passed   bool
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Error    string
}

// CombinedOutput concatenates stdout and stderr for callers (e.g. the
// ai_fix retry prompt) that just want "what did the check print".
func (r Result) CombinedOutput() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Report is the outcome of one checks-stage entry: the latest attempt's
// per-check results, plus the retry envelope's bookkeeping across prior
// attempts of the same unchanged workspace (spec.md §3's CheckResult).
type Report struct {
	Results            []Result
	Passed             bool
	Attempt            int
	MaxRetriesExceeded bool
	PreviousErrors     []string
	TotalDuration      time.Duration
}

// FirstFailure returns the first failing result, or nil if the battery
// passed.
func (r Report) FirstFailure() *Result {
	for i := range r.Results {
		if !r.Results[i].Passed {
			return &r.Results[i]
		}
	}
	return nil
}

// maxOutputBytes bounds how much of a check's stdout/stderr is retained,
// so a runaway test suite can't blow up the retry prompt.
const maxOutputBytes = 64 * 1024

// defaultMaxAttempts is the check runner's own retry envelope (spec.md
// §4.6: "up to 3 attempts overall") for re-running the same, unchanged
// workspace against transient flakiness. It is distinct from the
// orchestrator's checks→ai_fix loop, which re-applies a new fix between
// attempts; this envelope re-runs the identical commands.
const defaultMaxAttempts = 3

// Runner executes the check battery against a workspace directory.
type Runner struct {
	Cfg config.Checks
}

// NewRunner constructs a Runner from the checks section of the loaded
// configuration.
func NewRunner(cfg config.Checks) *Runner {
	return &Runner{Cfg: cfg}
}

// Run executes typecheck, lint, and test in order inside dir, stopping at
// the first failure within an attempt, and retries the whole battery (per
// defaultMaxAttempts or Cfg.MaxRetries) while it keeps failing, recording
// each failing attempt's output in PreviousErrors. The returned Report
// reflects only the final attempt's per-check Results, per spec.md §3's
// "produced once per checks-stage entry."
func (r *Runner) Run(ctx context.Context, dir string) (Report, error) {
	pm := detectPackageManager(dir)

	commands := map[Name]struct {
		cmd     string
		timeout time.Duration
	}{
		Typecheck: {firstNonEmpty(r.Cfg.TypeCheckCommand, pm+" run typecheck"), r.Cfg.TypeCheckTimeout},
		Lint:      {firstNonEmpty(r.Cfg.LintCommand, pm+" run lint"), r.Cfg.LintTimeout},
		Test:      {firstNonEmpty(r.Cfg.TestCommand, pm+" test"), r.Cfg.TestTimeout},
	}

	maxAttempts := r.Cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	start := time.Now()
	var previousErrors []string
	var report Report

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report = Report{Passed: true, Attempt: attempt, PreviousErrors: previousErrors}

		for _, name := range Order {
			spec := commands[name]
			result := runOne(ctx, dir, name, spec.cmd, spec.timeout)
			report.Results = append(report.Results, result)
			if !result.Passed {
				report.Passed = false
				break
			}
		}
		report.TotalDuration = time.Since(start)

		if report.Passed {
			return report, nil
		}
		if ctx.Err() != nil {
			return report, errs.New(errs.CodeInterrupted, "checks interrupted", ctx.Err())
		}

		if failure := report.FirstFailure(); failure != nil {
			previousErrors = append(previousErrors, fmt.Sprintf("%s: %s", failure.Name, truncateOutput(failure.CombinedOutput())))
		}
	}

	report.MaxRetriesExceeded = true
	return report, nil
}

func truncateOutput(s string) string {
	const maxLines = 50
	lines := 0
	for i, r := range s {
		if r == '\n' {
			lines++
			if lines >= maxLines {
				return s[:i] + "\n... (truncated)"
			}
		}
	}
	return s
}

// runOne executes a single check. A non-positive timeout reports a
// timeout status without running the command, per spec.md §8's boundary
// ("Timeout equals 0 → check is reported as timeout").
func runOne(ctx context.Context, dir string, name Name, command string, timeout time.Duration) Result {
	if timeout <= 0 {
		return Result{Name: name, Command: command, Status: StatusTimeout}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true", "NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	status := StatusPassed
	errStr := ""
	exitCode := 0
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		status = StatusTimeout
	case err != nil:
		status = StatusFailed
		errStr = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	return Result{
		Name:     name,
		Command:  command,
		Passed:   status == StatusPassed,
		Status:   status,
		Stdout:   boundOutput(stdout.Bytes()),
		Stderr:   boundOutput(stderr.Bytes()),
		ExitCode: exitCode,
		Duration: elapsed,
		Error:    errStr,
	}
}

func boundOutput(b []byte) string {
	if len(b) > maxOutputBytes {
		b = b[len(b)-maxOutputBytes:]
	}
	return string(b)
}

// detectPackageManager mirrors medivac/engine/buildinfo.go's lockfile
// priority: pnpm-lock.yaml, then yarn.lock, then package-lock.json,
// defaulting to npm.
func detectPackageManager(dir string) string {
	switch {
	case fileExists(filepath.Join(dir, "pnpm-lock.yaml")):
		return "pnpm"
	case fileExists(filepath.Join(dir, "yarn.lock")):
		return "yarn"
	default:
		return "npm"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
