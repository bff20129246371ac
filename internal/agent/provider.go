// Package agent is the provider-agnostic interface to the AI collaborator
// that performs analysis and fix generation. Adapted from
// multiagent/agent/provider.go, narrowed to the two operations the pipeline
// needs and decoupled from wt.WorktreeContext in favor of a plain working
// directory plus a caller-assembled prompt.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Result is the provider-agnostic outcome of one agent turn.
type Result struct {
	Text       string
	Success    bool
	Error      error
	DurationMs int64
	CostUSD    float64
}

// ExecuteConfig holds per-call execution settings.
type ExecuteConfig struct {
	Model        string
	WorkDir      string
	SystemPrompt string
	Timeout      time.Duration
}

// ExecuteOption configures a single Execute call.
type ExecuteOption func(*ExecuteConfig)

func WithModel(model string) ExecuteOption       { return func(c *ExecuteConfig) { c.Model = model } }
func WithWorkDir(dir string) ExecuteOption       { return func(c *ExecuteConfig) { c.WorkDir = dir } }
func WithSystemPrompt(p string) ExecuteOption    { return func(c *ExecuteConfig) { c.SystemPrompt = p } }
func WithTimeout(d time.Duration) ExecuteOption  { return func(c *ExecuteConfig) { c.Timeout = d } }

func applyOptions(opts []ExecuteOption) ExecuteConfig {
	cfg := ExecuteConfig{Model: "sonnet", Timeout: 10 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Provider is the pluggable interface for AI backends, grounded on
// multiagent/agent/provider.go's Provider interface.
type Provider interface {
	Name() string
	Execute(ctx context.Context, prompt string, opts ...ExecuteOption) (*Result, error)
}

// CLIRunner abstracts subprocess execution so tests can substitute a fake,
// mirroring the Runner pattern already used in internal/vcs.
type CLIRunner interface {
	Run(ctx context.Context, command string, args []string, dir string, stdin string) (stdout string, err error)
}

// ExecCLIRunner runs the configured CLI binary with the prompt piped on
// stdin, grounded on agent-cli-wrapper/claude.Session's subprocess-and-pipe
// model, simplified to a single non-interactive turn.
type ExecCLIRunner struct{}

func (ExecCLIRunner) Run(ctx context.Context, command string, args []string, dir string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.Output()
	return string(out), err
}

// CLIProvider executes a turn by invoking a configured CLI binary
// non-interactively, capturing the final JSON result line it emits.
type CLIProvider struct {
	Command string
	Runner  CLIRunner
}

// NewCLIProvider constructs a CLIProvider targeting the given CLI binary
// (e.g. "claude", "codex").
func NewCLIProvider(command string) *CLIProvider {
	return &CLIProvider{Command: command, Runner: ExecCLIRunner{}}
}

func (p *CLIProvider) Name() string { return p.Command }

func (p *CLIProvider) Execute(ctx context.Context, prompt string, opts ...ExecuteOption) (*Result, error) {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	args := []string{"--print", "--output-format", "json"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", cfg.SystemPrompt)
	}

	start := time.Now()
	out, err := p.Runner.Run(ctx, p.Command, args, cfg.WorkDir, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &Result{Success: false, Error: err, DurationMs: elapsed}, errs.New(errs.CodeAIFixFailed, "agent execution failed", err)
	}

	text, cost := parseFinalResult(out)
	return &Result{Text: text, Success: true, DurationMs: elapsed, CostUSD: cost}, nil
}

// parseFinalResult reads the last well-formed JSON object from a
// line-delimited stream, which is where CLI agents place the final turn
// summary (mirroring protocol.Stream's framing in agent-cli-wrapper).
func parseFinalResult(raw string) (text string, costUSD float64) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var last struct {
		Result  string  `json:"result"`
		CostUSD float64 `json:"total_cost_usd"`
	}
	found := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var row struct {
			Result  string  `json:"result"`
			CostUSD float64 `json:"total_cost_usd"`
		}
		if err := json.Unmarshal([]byte(line), &row); err == nil && row.Result != "" {
			last = row
			found = true
		}
	}
	if !found {
		return strings.TrimSpace(raw), 0
	}
	return last.Result, last.CostUSD
}

// Error wraps an AI-provider failure as "agent provider <name>: <err>".
func Error(provider string, err error) error {
	return fmt.Errorf("agent provider %s: %w", provider, err)
}
