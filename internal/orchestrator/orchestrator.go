// Package orchestrator is the per-group pipeline: a linear state machine
// over init → worktree_create → ai_analysis → ai_fix → install_deps →
// checks → commit → pr_create → issue_update → cleanup → done, with
// per-stage retry, a checks→ai_fix retry loop, cooperative cancellation,
// and dry-run simulation. Generalized from medivac/engine/agent.go's
// runAgentCore (worktree create → session execute → analysis parse → PR
// create, cleanup-on-failure via defer), split into the explicit stages
// spec.md names — medivac has no install_deps/checks concept at all.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/checks"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/progress"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/worktree"
)

// Stage is one step of the fixed pipeline sequence.
type Stage string

const (
	StageInit            Stage = "init"
	StageWorktreeCreate  Stage = "worktree_create"
	StageAIAnalysis      Stage = "ai_analysis"
	StageAIFix           Stage = "ai_fix"
	StageInstallDeps     Stage = "install_deps"
	StageChecks          Stage = "checks"
	StageCommit          Stage = "commit"
	StagePRCreate        Stage = "pr_create"
	StageIssueUpdate     Stage = "issue_update"
	StageCleanup         Stage = "cleanup"
	StageDone            Stage = "done"
)

var stageSequence = []Stage{
	StageInit, StageWorktreeCreate, StageAIAnalysis, StageAIFix, StageInstallDeps,
	StageChecks, StageCommit, StagePRCreate, StageIssueUpdate, StageCleanup, StageDone,
}

// defaultMaxRetries gives each stage 2 retries (3 attempts total), per
// spec.md's retry model.
const defaultMaxRetries = 2

var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// SimulatedOp records what a dry-run would have done instead of doing it.
type SimulatedOp struct {
	Stage     Stage
	Kind      string
	Resources []string
	Predicted string
}

// Context is the per-group mutable record carried through the state
// machine, mirroring spec.md's PipelineContext.
type Context struct {
	Group         issue.Group
	Workspace     *worktree.Workspace
	Analysis      *issue.Analysis
	ModifiedFiles []string
	CommitMessage string
	CheckReport   *checks.Report
	PR            *vcs.PR
	Attempt       int
	MaxRetries    int
	DryRun        bool
	StartedAt     time.Time
	Errors        []error
	Simulated     []SimulatedOp
	Stage         Stage
}

// ChecksRunner runs the check battery against a workspace. checks.Runner
// satisfies this; tests substitute a fake to avoid real subprocesses.
type ChecksRunner interface {
	Run(ctx context.Context, dir string) (checks.Report, error)
}

// Config wires the pipeline's dependencies.
type Config struct {
	Worktree       *worktree.Manager
	Provider       agent.Provider
	Checks         ChecksRunner
	VCS            vcs.Client
	Bus            *progress.Bus
	Logger         *slog.Logger
	MaxRetries     int
	BaseBranch     string
	BranchDispose  worktree.BranchDisposition
	PRLabels       []string
	IssueLabels    []string
	Model          string
	CommandRunner  func(ctx context.Context, dir, command string) error
}

// Result is the terminal outcome of one group's pipeline run.
type Result struct {
	Group   issue.Group
	Success bool
	PR      *vcs.PR
	Error   error
	Stages  []StageOutcome
}

// StageOutcome records one stage attempt for diagnostics/tests.
type StageOutcome struct {
	Stage   Stage
	Attempt int
	Err     error
	Skipped bool
}

// Pipeline runs one group through the full state machine.
type Pipeline struct {
	cfg Config
}

// New constructs a Pipeline from the given configuration.
func New(cfg Config) *Pipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

// Run executes the state machine for one group. ctx is the cooperative
// interrupt handle: every stage checks ctx.Err() before starting, and
// short-circuits straight to cleanup when it is tripped.
func (p *Pipeline) Run(ctx context.Context, group issue.Group, dryRun bool) Result {
	pc := &Context{
		Group:      group,
		MaxRetries: p.cfg.MaxRetries,
		DryRun:     dryRun,
		StartedAt:  time.Now(),
		Stage:      StageInit,
	}

	result := Result{Group: group}
	p.emit(pc, progress.EventGroupStart, "starting pipeline")

	for _, stage := range stageSequence {
		if stage == StageCleanup {
			continue // cleanup always runs, handled separately below
		}
		if stage == StageDone {
			break
		}

		if ctx.Err() != nil {
			p.emit(pc, progress.EventInterrupted, "interrupted before "+string(stage))
			result.Error = errs.New(errs.CodeInterrupted, "interrupted before "+string(stage), ctx.Err())
			break
		}

		outcome := p.runStageWithRetry(ctx, pc, stage)
		result.Stages = append(result.Stages, outcome)
		if outcome.Err != nil {
			result.Error = outcome.Err
			break
		}

		if stage == StageChecks && pc.CheckReport != nil && !pc.CheckReport.Passed {
			// checks→ai_fix retry loop: re-enter ai_fix with the failing
			// output, then re-run checks, until attempts are exhausted.
			retried, retryErr := p.retryChecksLoop(ctx, pc)
			result.Stages = append(result.Stages, retried...)
			if retryErr != nil {
				result.Error = retryErr
				break
			}
		}
	}

	// cleanup always runs on every terminal path; its own failure is
	// logged, never rethrown or allowed to overwrite result.Error.
	cleanupOutcome := p.runStage(ctx, pc, StageCleanup)
	result.Stages = append(result.Stages, cleanupOutcome)
	if cleanupOutcome.Err != nil {
		p.cfg.Logger.Warn("cleanup failed", "group", group.ID, "error", cleanupOutcome.Err)
	}

	if result.Error == nil {
		result.Success = true
		result.PR = pc.PR
		p.emit(pc, progress.EventGroupDone, "pipeline complete")
	} else {
		p.emit(pc, progress.EventGroupFailed, result.Error.Error())
	}
	return result
}

// retryChecksLoop re-enters ai_fix with the failing check's output, then
// re-runs checks, until the report passes or iterations are exhausted.
// It tracks its own iteration count rather than reusing pc.Attempt (which
// runStageWithRetry resets on every call it makes, for AIFix and Checks
// alike — relying on it here would never terminate a persistently-failing
// loop).
func (p *Pipeline) retryChecksLoop(ctx context.Context, pc *Context) ([]StageOutcome, error) {
	var outcomes []StageOutcome
	for iteration := 1; iteration <= pc.MaxRetries; iteration++ {
		if ctx.Err() != nil {
			return outcomes, errs.New(errs.CodeInterrupted, "interrupted during checks retry loop", ctx.Err())
		}

		fixOutcome := p.runStageWithRetry(ctx, pc, StageAIFix)
		outcomes = append(outcomes, fixOutcome)
		if fixOutcome.Err != nil {
			return outcomes, fixOutcome.Err
		}

		checkOutcome := p.runStageWithRetry(ctx, pc, StageChecks)
		outcomes = append(outcomes, checkOutcome)
		if checkOutcome.Err != nil {
			return outcomes, checkOutcome.Err
		}
		if pc.CheckReport != nil && pc.CheckReport.Passed {
			return outcomes, nil
		}
	}
	return outcomes, errs.New(errs.CodeCheckFailed, "checks failed after all retries", nil).WithRecoverable(false)
}

func (p *Pipeline) runStageWithRetry(ctx context.Context, pc *Context, stage Stage) StageOutcome {
	var lastErr error
	for attempt := 0; attempt <= pc.MaxRetries; attempt++ {
		pc.Attempt = attempt + 1
		if ctx.Err() != nil {
			return StageOutcome{Stage: stage, Attempt: pc.Attempt, Err: errs.New(errs.CodeInterrupted, "interrupted", ctx.Err())}
		}

		err := p.execStage(ctx, pc, stage)
		if err == nil {
			return StageOutcome{Stage: stage, Attempt: pc.Attempt}
		}
		lastErr = err
		pc.Errors = append(pc.Errors, err)

		if !errs.Retryable(err) || attempt == pc.MaxRetries {
			break
		}

		p.emit(pc, progress.EventGroupRetry, fmt.Sprintf("retrying %s after error: %v", stage, err))
		idx := attempt
		if idx >= len(backoffSchedule) {
			idx = len(backoffSchedule) - 1
		}
		backoff := backoffSchedule[idx]
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return StageOutcome{Stage: stage, Attempt: pc.Attempt, Err: errs.New(errs.CodeInterrupted, "interrupted during backoff", ctx.Err())}
		}
	}
	return StageOutcome{Stage: stage, Attempt: pc.Attempt, Err: lastErr}
}

// runStage runs a stage exactly once, used for cleanup which never retries.
func (p *Pipeline) runStage(ctx context.Context, pc *Context, stage Stage) StageOutcome {
	err := p.execStage(ctx, pc, stage)
	return StageOutcome{Stage: stage, Attempt: 1, Err: err}
}

func (p *Pipeline) emit(pc *Context, t progress.EventType, msg string) {
	if p.cfg.Bus == nil {
		return
	}
	p.cfg.Bus.Emit(progress.Event{
		Type:    t,
		GroupID: pc.Group.ID,
		Stage:   string(pc.Stage),
		Message: msg,
	})
}

func (p *Pipeline) execStage(ctx context.Context, pc *Context, stage Stage) error {
	pc.Stage = stage
	p.emit(pc, progress.EventGroupStage, fmt.Sprintf("entering %s", stage))

	if pc.DryRun && stage != StageAIAnalysis && stage != StageInit {
		return p.simulate(pc, stage)
	}

	switch stage {
	case StageInit:
		return p.stageInit(pc)
	case StageWorktreeCreate:
		return p.stageWorktreeCreate(ctx, pc)
	case StageAIAnalysis:
		return p.stageAIAnalysis(ctx, pc)
	case StageAIFix:
		return p.stageAIFix(ctx, pc)
	case StageInstallDeps:
		return p.stageInstallDeps(ctx, pc)
	case StageChecks:
		return p.stageChecks(ctx, pc)
	case StageCommit:
		return p.stageCommit(ctx, pc)
	case StagePRCreate:
		return p.stagePRCreate(ctx, pc)
	case StageIssueUpdate:
		return p.stageIssueUpdate(ctx, pc)
	case StageCleanup:
		return p.stageCleanup(ctx, pc)
	default:
		return nil
	}
}

func (p *Pipeline) stageInit(pc *Context) error {
	if len(pc.Group.Issues) == 0 {
		return errs.New(errs.CodeEmptyIssues, "group has no issues", nil)
	}
	return nil
}

func (p *Pipeline) stageWorktreeCreate(ctx context.Context, pc *Context) error {
	ws, err := p.cfg.Worktree.Create(ctx, pc.Group.BranchName, pc.Group.IssueNumbers())
	if err != nil {
		return err
	}
	pc.Workspace = ws
	return nil
}

func (p *Pipeline) stageAIAnalysis(ctx context.Context, pc *Context) error {
	analysis, err := agent.Analyze(ctx, p.cfg.Provider, agent.AnalysisRequest{Group: pc.Group}, agent.WithModel(p.cfg.Model))
	if err != nil {
		return err
	}
	pc.Analysis = &analysis
	return nil
}

func (p *Pipeline) stageAIFix(ctx context.Context, pc *Context) error {
	req := agent.FixRequest{Group: pc.Group, Attempt: pc.Attempt}
	if pc.Analysis != nil {
		req.Analysis = *pc.Analysis
	}
	if pc.CheckReport != nil {
		if failure := pc.CheckReport.FirstFailure(); failure != nil {
			req.Attempt = pc.Attempt + 1
			req.PreviousErrors = append([]string{failure.CombinedOutput()}, pc.CheckReport.PreviousErrors...)
		}
	}

	result, err := agent.Fix(ctx, p.cfg.Provider, req, agent.WithModel(p.cfg.Model), agent.WithWorkDir(pc.Workspace.Path))
	if err != nil {
		return err
	}
	pc.CommitMessage = commitMessage(pc.Group, pc.Analysis)
	_ = result
	return nil
}

func (p *Pipeline) stageInstallDeps(ctx context.Context, pc *Context) error {
	if p.cfg.CommandRunner == nil {
		return nil
	}
	if err := p.cfg.CommandRunner(ctx, pc.Workspace.Path, "npm install"); err != nil {
		return errs.New(errs.CodeInstallDepsFailed, "install dependencies", err)
	}
	return nil
}

// stageChecks runs the battery and records the report; it does NOT turn a
// failing report into a stage error. A failing report is a legitimate,
// complete outcome (the code is wrong, not the check execution), and is
// handled by Run's checks→ai_fix retry loop, which re-applies a fix rather
// than blindly re-running checks. A stage error here is reserved for a
// genuine execution failure (e.g. the runner itself erroring or the
// context being cancelled).
func (p *Pipeline) stageChecks(ctx context.Context, pc *Context) error {
	report, err := p.cfg.Checks.Run(ctx, pc.Workspace.Path)
	if err != nil {
		return err
	}
	pc.CheckReport = &report
	return nil
}

func (p *Pipeline) stageCommit(ctx context.Context, pc *Context) error {
	message := pc.CommitMessage + "\n\n" + closesTrailer(pc.Group)
	cmd := exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("git add -A && git commit -m %q", message))
	cmd.Dir = pc.Workspace.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		return errs.New(errs.CodePipelineFailed, "commit failed: "+string(out), err)
	}
	return nil
}

func (p *Pipeline) stagePRCreate(ctx context.Context, pc *Context) error {
	pr, err := p.cfg.VCS.CreatePR(ctx, vcs.CreatePRParams{
		Title:  prTitle(pc.Group),
		Body:   prBody(pc.Group, pc.Analysis),
		Head:   pc.Group.BranchName,
		Base:   p.cfg.BaseBranch,
		Labels: p.cfg.PRLabels,
	})
	if err != nil {
		if errs.CodeOf(err) == errs.CodeAlreadyExists {
			existing, lookupErr := p.cfg.VCS.GetPRByBranch(ctx, pc.Group.BranchName)
			if lookupErr == nil && existing != nil {
				pc.PR = existing
				return nil
			}
		}
		return err
	}
	pc.PR = pr
	return nil
}

func (p *Pipeline) stageIssueUpdate(ctx context.Context, pc *Context) error {
	var warnings []error
	for _, num := range pc.Group.IssueNumbers() {
		if pc.PR != nil {
			if err := p.cfg.VCS.AddComment(ctx, num, "Fix proposed in "+pc.PR.URL); err != nil {
				warnings = append(warnings, err)
			}
		}
		if len(p.cfg.IssueLabels) > 0 {
			if err := p.cfg.VCS.AddLabels(ctx, num, p.cfg.IssueLabels); err != nil {
				warnings = append(warnings, err)
			}
		}
	}
	if len(warnings) > 0 {
		p.cfg.Logger.Warn("issue_update had warnings", "group", pc.Group.ID, "count", len(warnings))
	}
	return nil
}

func (p *Pipeline) stageCleanup(ctx context.Context, pc *Context) error {
	if pc.Workspace == nil {
		return nil
	}
	disposition := p.cfg.BranchDispose
	return p.cfg.Worktree.Remove(ctx, pc.Workspace, disposition)
}

func (p *Pipeline) simulate(pc *Context, stage Stage) error {
	op := SimulatedOp{Stage: stage}
	switch stage {
	case StageWorktreeCreate:
		op.Kind = "create_worktree"
		op.Resources = []string{pc.Group.BranchName}
		op.Predicted = "would create workspace on branch " + pc.Group.BranchName
	case StageAIFix:
		op.Kind = "apply_fix"
		op.Resources = pc.Group.RelatedFiles
		op.Predicted = "would apply a fix touching the group's related files"
	case StageInstallDeps:
		op.Kind = "install_deps"
		op.Predicted = "would install dependencies"
	case StageChecks:
		op.Kind = "run_checks"
		op.Predicted = "would run typecheck, lint, test"
	case StageCommit:
		op.Kind = "commit"
		op.Predicted = "would commit the proposed changes"
	case StagePRCreate:
		op.Kind = "create_pr"
		op.Resources = []string{pc.Group.BranchName}
		op.Predicted = "would open a PR for " + pc.Group.BranchName
	case StageIssueUpdate:
		op.Kind = "update_issues"
		op.Predicted = "would comment and label source issues"
	case StageCleanup:
		op.Kind = "cleanup"
		op.Predicted = "would remove the workspace"
	default:
		return nil
	}
	pc.Simulated = append(pc.Simulated, op)
	return nil
}

func commitMessage(g issue.Group, a *issue.Analysis) string {
	if a != nil && a.Summary != "" {
		return fmt.Sprintf("fix: %s", truncate(a.Summary, 72))
	}
	return fmt.Sprintf("fix: %s", g.Name)
}

func closesTrailer(g issue.Group) string {
	var parts []string
	for _, n := range g.IssueNumbers() {
		parts = append(parts, fmt.Sprintf("Closes #%d", n))
	}
	return strings.Join(parts, "\n")
}

func prTitle(g issue.Group) string {
	return fmt.Sprintf("fix(%s): %s", g.Key, g.Name)
}

func prBody(g issue.Group, a *issue.Analysis) string {
	var b strings.Builder
	if a != nil {
		b.WriteString(a.Summary)
		b.WriteString("\n\n")
	}
	b.WriteString("Issues addressed:\n")
	for _, n := range g.IssueNumbers() {
		fmt.Fprintf(&b, "- Closes #%d\n", n)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
