// Package worktree manages the lifecycle of isolated workspaces: creating a
// directory tied to a fresh branch off the configured base branch, tracking
// status, removal, and age-based auto-cleanup. Directly adapted from
// wt/worktree.go, narrowed from a developer-facing multi-repo tool into a
// single-purpose autofix workspace pool.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Status is the workspace lifecycle state from spec.md's data model.
type Status string

const (
	StatusReady   Status = "ready"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusCleanup Status = "cleanup"
	StatusRemoved Status = "removed"
)

// Workspace is one isolated working copy owned, exclusively, by the
// orchestrator holding it for the duration of a pipeline run.
type Workspace struct {
	Path           string
	Branch         string
	HeadCommit     string
	Status         Status
	IssueNumbers   []int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// CmdResult mirrors wt.CmdResult, kept separate so this package has no
// import-time coupling to wt.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// GitRunner executes git commands; adapted verbatim from wt.GitRunner so
// tests can substitute a fake in the same style as the teacher's.
type GitRunner interface {
	Run(ctx context.Context, args []string, dir string) (*CmdResult, error)
}

// ExecGitRunner implements GitRunner using os/exec, identical in shape to
// wt.DefaultGitRunner.
type ExecGitRunner struct{}

func (ExecGitRunner) Run(ctx context.Context, args []string, dir string) (*CmdResult, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	stdout, err := cmd.Output()
	result := &CmdResult{Stdout: string(stdout)}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Stderr = string(exitErr.Stderr)
		result.ExitCode = exitErr.ExitCode()
	}
	return result, err
}

// Manager owns the workspace pool under BaseDir, each tied to a branch off
// BaseBranch in RepoDir.
type Manager struct {
	git        GitRunner
	RepoDir    string
	BaseDir    string
	BaseBranch string
	Prefix     string
}

// NewManager constructs a Manager using the real git binary.
func NewManager(repoDir, baseDir, baseBranch, prefix string) *Manager {
	return &Manager{
		git:        ExecGitRunner{},
		RepoDir:    repoDir,
		BaseDir:    baseDir,
		BaseBranch: baseBranch,
		Prefix:     prefix,
	}
}

// WithGitRunner overrides the git runner, for tests.
func (m *Manager) WithGitRunner(r GitRunner) *Manager {
	m.git = r
	return m
}

// Create makes a fresh workspace at {BaseDir}/{Prefix}{suffix}, tied to a
// new branch off BaseBranch. Refuses to create if branch already exists
// locally, per spec.md §4.7.
func (m *Manager) Create(ctx context.Context, branch string, issueNumbers []int) (*Workspace, error) {
	if err := os.MkdirAll(m.BaseDir, 0755); err != nil {
		return nil, errs.New(errs.CodeWorktreeCreateFailed, "create base dir", err)
	}

	if exists, _ := m.branchExists(ctx, branch); exists {
		return nil, errs.New(errs.CodeBranchExists, fmt.Sprintf("branch %s already exists", branch), nil)
	}

	suffix := sanitizeSuffix(branch) + "-" + uuid.NewString()[:8]
	path := filepath.Join(m.BaseDir, m.Prefix+suffix)

	if _, err := m.git.Run(ctx, []string{"worktree", "add", "-b", branch, path, m.BaseBranch}, m.RepoDir); err != nil {
		return nil, errs.New(errs.CodeWorktreeCreateFailed, "git worktree add", err)
	}

	head, _ := m.headCommit(ctx, path)
	now := time.Now()
	return &Workspace{
		Path:           path,
		Branch:         branch,
		HeadCommit:     head,
		Status:         StatusReady,
		IssueNumbers:   issueNumbers,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

func (m *Manager) branchExists(ctx context.Context, branch string) (bool, error) {
	_, err := m.git.Run(ctx, []string{"rev-parse", "--verify", branch}, m.RepoDir)
	return err == nil, nil
}

func (m *Manager) headCommit(ctx context.Context, path string) (string, error) {
	result, err := m.git.Run(ctx, []string{"rev-parse", "HEAD"}, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// BranchDisposition controls what Remove does to the branch after removing
// the workspace directory.
type BranchDisposition int

const (
	// KeepBranch leaves the branch in place for diagnostics — spec.md §9's
	// explicit current default behavior for failed pipelines.
	KeepBranch BranchDisposition = iota
	DeleteBranch
)

// Remove force-deletes the workspace directory and, per disposition,
// the branch. Always attempts the directory removal even if the git
// worktree-remove step fails, so cleanup still frees disk on partial state.
func (m *Manager) Remove(ctx context.Context, ws *Workspace, disposition BranchDisposition) error {
	ws.Status = StatusCleanup

	_, wtErr := m.git.Run(ctx, []string{"worktree", "remove", "--force", ws.Path}, m.RepoDir)
	if err := os.RemoveAll(ws.Path); err != nil {
		return errs.New(errs.CodeWorktreeCleanupFailed, "remove workspace dir", err)
	}
	if wtErr != nil {
		// Directory is gone; prune git's worktree bookkeeping so it
		// doesn't report a phantom entry.
		_, _ = m.git.Run(ctx, []string{"worktree", "prune"}, m.RepoDir)
	}

	if disposition == DeleteBranch {
		_, _ = m.git.Run(ctx, []string{"branch", "-D", ws.Branch}, m.RepoDir)
	}

	ws.Status = StatusRemoved
	return nil
}

// List returns all workspaces currently present under BaseDir by parsing
// `git worktree list --porcelain`, mirroring wt.parseWorktreeList.
func (m *Manager) List(ctx context.Context) ([]*Workspace, error) {
	result, err := m.git.Run(ctx, []string{"worktree", "list", "--porcelain"}, m.RepoDir)
	if err != nil {
		return nil, errs.New(errs.CodeWorktreeError, "list worktrees", err)
	}
	return parsePorcelain(result.Stdout, m.BaseDir), nil
}

func parsePorcelain(output, baseDir string) []*Workspace {
	var result []*Workspace
	var cur *Workspace

	flush := func() {
		if cur != nil && strings.HasPrefix(cur.Path, baseDir) {
			result = append(result, cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Workspace{Path: strings.TrimPrefix(line, "worktree "), Status: StatusReady}
		case strings.HasPrefix(line, "HEAD "):
			if cur != nil {
				cur.HeadCommit = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if cur != nil {
				cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		}
	}
	flush()
	return result
}

// AutoCleanup removes workspaces under BaseDir older than maxAge, returning
// the branch names of the workspaces it removed; the branches themselves
// are kept (KeepBranch disposition, per spec.md §9).
func (m *Manager) AutoCleanup(ctx context.Context, maxAge time.Duration) ([]string, error) {
	workspaces, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, ws := range workspaces {
		info, statErr := os.Stat(ws.Path)
		if statErr != nil {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		if err := m.Remove(ctx, ws, KeepBranch); err != nil {
			continue
		}
		removed = append(removed, ws.Branch)
	}
	return removed, nil
}

func sanitizeSuffix(branch string) string {
	s := strings.ReplaceAll(branch, "/", "-")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
