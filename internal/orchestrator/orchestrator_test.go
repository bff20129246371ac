package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/checks"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/worktree"
)

// scriptedGit answers every worktree.GitRunner call with "success, no
// output" unless a step override is registered for the leading subcommand.
type scriptedGit struct {
	overrides map[string]func(args []string) (*worktree.CmdResult, error)
}

func (g *scriptedGit) Run(ctx context.Context, args []string, dir string) (*worktree.CmdResult, error) {
	if len(args) > 0 {
		if fn, ok := g.overrides[args[0]]; ok {
			return fn(args)
		}
	}
	if len(args) > 0 && args[0] == "rev-parse" && len(args) > 1 && args[1] == "--verify" {
		return nil, errors.New("not found")
	}
	return &worktree.CmdResult{Stdout: "deadbeef\n"}, nil
}

type fakeProvider struct {
	analysisJSON string
	fixErr       error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Execute(ctx context.Context, prompt string, opts ...agent.ExecuteOption) (*agent.Result, error) {
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	return &agent.Result{Text: f.analysisJSON, Success: true}, nil
}

type fakeChecks struct {
	reports []checks.Report
	idx     int
	err     error
}

func (f *fakeChecks) Run(ctx context.Context, dir string) (checks.Report, error) {
	if f.err != nil {
		return checks.Report{}, f.err
	}
	r := f.reports[f.idx]
	if f.idx < len(f.reports)-1 {
		f.idx++
	}
	return r, nil
}

type fakeVCS struct {
	createPRErr   error
	existingPR    *vcs.PR
	createdPR     *vcs.PR
	comments      []string
}

func (f *fakeVCS) CreateIssue(ctx context.Context, p vcs.CreateIssueParams) (int, string, error) {
	return 0, "", nil
}
func (f *fakeVCS) GetIssue(ctx context.Context, number int) (*vcs.IssueDetail, error) {
	return nil, nil
}
func (f *fakeVCS) SearchIssues(ctx context.Context, query string) ([]int, error) { return nil, nil }
func (f *fakeVCS) AddLabels(ctx context.Context, issueNumber int, labels []string) error { return nil }
func (f *fakeVCS) RemoveLabels(ctx context.Context, issueNumber int, labels []string) error {
	return nil
}
func (f *fakeVCS) RequestReviewers(ctx context.Context, prNumber int, reviewers []string) error {
	return nil
}
func (f *fakeVCS) CreatePR(ctx context.Context, p vcs.CreatePRParams) (*vcs.PR, error) {
	if f.createPRErr != nil {
		return nil, f.createPRErr
	}
	f.createdPR = &vcs.PR{Number: 42, URL: "https://example.com/pr/42", HeadRefName: p.Head, BaseRefName: p.Base}
	return f.createdPR, nil
}
func (f *fakeVCS) ListPRs(ctx context.Context, head, base string) ([]vcs.PR, error) { return nil, nil }
func (f *fakeVCS) GetPRByBranch(ctx context.Context, branch string) (*vcs.PR, error) {
	return f.existingPR, nil
}
func (f *fakeVCS) AddComment(ctx context.Context, issueNumber int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func testGroup() issue.Group {
	return issue.Group{
		ID:         "g1",
		Name:       "fix null deref",
		Key:        "bug-123",
		BranchName: "autofix/bug-123",
		Issues:     []issue.Issue{{Number: 123, Title: "crash on null"}},
	}
}

const analysisJSON = `{"issue_type":"bug","priority":"high","component":"api","summary":"fix it","confidence":0.9}`

func baseConfig(git worktree.GitRunner, provider agent.Provider, chk ChecksRunner, client vcs.Client) Config {
	wm := worktree.NewManager("/repo", "/repo/.worktrees", "main", "wt-").WithGitRunner(git)
	return Config{
		Worktree:      wm,
		Provider:      provider,
		Checks:        chk,
		VCS:           client,
		BaseBranch:    "main",
		BranchDispose: worktree.KeepBranch,
		MaxRetries:    1,
	}
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	git := &scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{{Passed: true, Results: []checks.Result{{Name: checks.Typecheck, Passed: true}}}}}
	client := &fakeVCS{}

	cfg := baseConfig(git, provider, chk, client)
	p := New(cfg)

	// dryRun=true replaces every mutating stage (including commit) with the
	// simulator, so no real git/gh subprocess runs here.
	result := p.Run(context.Background(), testGroup(), true)

	require.True(t, result.Success)
	assert.Equal(t, StageCleanup, result.Stages[len(result.Stages)-1].Stage)
	assert.NotNil(t, client)
}

func TestPipeline_Run_DryRunSkipsMutatingStages(t *testing.T) {
	git := &scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{{Passed: true}}}
	client := &fakeVCS{}

	cfg := baseConfig(git, provider, chk, client)
	p := New(cfg)

	result := p.Run(context.Background(), testGroup(), true)

	require.True(t, result.Success)
	assert.Nil(t, client.createdPR, "dry run must not actually call CreatePR")
}

// TestPipeline_Run_ChecksRetryLoopRecoversOnSecondAttempt exercises the
// real (non-simulated) checks→ai_fix retry mechanism directly, the same
// way TestPipeline_Run_DuplicatePRResolvesToExisting exercises stagePRCreate
// directly: going through the full Run() would require dryRun=false end to
// end, which would also hit stageCommit's real `git commit` subprocess and
// a real worktree directory — unrelated to what this test covers.
func TestPipeline_Run_ChecksRetryLoopRecoversOnSecondAttempt(t *testing.T) {
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{
		{Passed: false, Results: []checks.Result{{Name: checks.Lint, Passed: false, Stderr: "lint error: unused var"}}},
		{Passed: true, Results: []checks.Result{{Name: checks.Lint, Passed: true}}},
	}}
	client := &fakeVCS{}

	cfg := baseConfig(&scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}, provider, chk, client)
	p := New(cfg)

	pc := &Context{Group: testGroup(), MaxRetries: p.cfg.MaxRetries, Workspace: &worktree.Workspace{Path: t.TempDir()}}

	checkOutcome := p.runStageWithRetry(context.Background(), pc, StageChecks)
	require.NoError(t, checkOutcome.Err, "a failing report must not surface as a stage error")
	require.NotNil(t, pc.CheckReport)
	require.False(t, pc.CheckReport.Passed)

	outcomes, err := p.retryChecksLoop(context.Background(), pc)
	require.NoError(t, err)
	require.NotNil(t, pc.CheckReport)
	assert.True(t, pc.CheckReport.Passed, "checks should pass after the retry loop re-applies a fix")

	var fixAttempts int
	for _, s := range outcomes {
		if s.Stage == StageAIFix {
			fixAttempts++
		}
	}
	assert.GreaterOrEqual(t, fixAttempts, 1, "ai_fix should re-run after a failing check")
}

func TestPipeline_Run_ChecksExhaustedFails(t *testing.T) {
	provider := &fakeProvider{analysisJSON: analysisJSON}
	failing := checks.Report{Passed: false, Results: []checks.Result{{Name: checks.Test, Passed: false, Stderr: "still failing"}}}
	chk := &fakeChecks{reports: []checks.Report{failing, failing, failing}}
	client := &fakeVCS{}

	cfg := baseConfig(&scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}, provider, chk, client)
	cfg.MaxRetries = 1
	p := New(cfg)

	pc := &Context{Group: testGroup(), MaxRetries: p.cfg.MaxRetries, Workspace: &worktree.Workspace{Path: t.TempDir()}}

	checkOutcome := p.runStageWithRetry(context.Background(), pc, StageChecks)
	require.NoError(t, checkOutcome.Err)
	require.False(t, pc.CheckReport.Passed)

	_, err := p.retryChecksLoop(context.Background(), pc)
	require.Error(t, err)
	assert.Equal(t, errs.CodeCheckFailed, errs.CodeOf(err))
}

func TestPipeline_Run_DuplicatePRResolvesToExisting(t *testing.T) {
	git := &scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{{Passed: true}}}
	existing := &vcs.PR{Number: 7, URL: "https://example.com/pr/7"}
	client := &fakeVCS{
		createPRErr: errs.New(errs.CodeAlreadyExists, "a pull request already exists for this branch", nil),
		existingPR:  existing,
	}

	cfg := baseConfig(git, provider, chk, client)
	p := New(cfg)

	result := pipelineWithRealPRCreate(p, testGroup())
	require.True(t, result.Success)
	require.NotNil(t, result.PR)
	assert.Equal(t, 7, result.PR.Number)
}

// pipelineWithRealPRCreate exercises stagePRCreate directly (bypassing the
// full dry-run-everything Run path) so the duplicate-PR resolution logic is
// tested without requiring a real git worktree/commit subprocess chain.
func pipelineWithRealPRCreate(p *Pipeline, group issue.Group) Result {
	pc := &Context{Group: group, MaxRetries: p.cfg.MaxRetries, Stage: StagePRCreate}
	err := p.stagePRCreate(context.Background(), pc)
	return Result{Group: group, Success: err == nil, PR: pc.PR, Error: err}
}

func TestPipeline_Run_InterruptBeforeStageShortCircuitsToCleanup(t *testing.T) {
	git := &scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{{Passed: true}}}
	client := &fakeVCS{}

	cfg := baseConfig(git, provider, chk, client)
	p := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := p.Run(ctx, testGroup(), true)

	require.False(t, result.Success)
	assert.Equal(t, errs.CodeInterrupted, errs.CodeOf(result.Error))
	var sawCleanup bool
	for _, s := range result.Stages {
		if s.Stage == StageCleanup {
			sawCleanup = true
		}
	}
	assert.True(t, sawCleanup, "cleanup must run even on immediate interrupt")
}

func TestPipeline_Run_EmptyGroupFailsAtInit(t *testing.T) {
	git := &scriptedGit{overrides: map[string]func([]string) (*worktree.CmdResult, error){}}
	provider := &fakeProvider{analysisJSON: analysisJSON}
	chk := &fakeChecks{reports: []checks.Report{{Passed: true}}}
	client := &fakeVCS{}

	cfg := baseConfig(git, provider, chk, client)
	p := New(cfg)

	empty := issue.Group{ID: "empty", BranchName: "autofix/empty"}
	result := p.Run(context.Background(), empty, true)

	require.False(t, result.Success)
	assert.Equal(t, errs.CodeEmptyIssues, errs.CodeOf(result.Error))
}

func TestBackoffSchedule_MatchesSpecExponential(t *testing.T) {
	require.Len(t, backoffSchedule, 3)
	assert.Equal(t, time.Second, backoffSchedule[0])
	assert.Equal(t, 2*time.Second, backoffSchedule[1])
	assert.Equal(t, 4*time.Second, backoffSchedule[2])
}
