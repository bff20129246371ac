package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/checks"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/config"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/grouping"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/ingest"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/orchestrator"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/progress"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/queue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/worktree"
)

// defaultMaxGroupSize/defaultMinGroupSize bound a group when the repo's
// config carries no grouping-specific section of its own (spec.md's
// Configuration shape has no groupSize fields; group sizing is a per-run
// concern, not a persisted one).
const (
	defaultMaxGroupSize = 5
	defaultMinGroupSize = 1
)

var (
	flagAll           bool
	flagIssues        string
	flagGroupBy       string
	flagMaxParallel   int
	flagDryRun        bool
	flagMaxRetries    int
	flagLabels        string
	flagExcludeLabels string
	flagBaseBranch    string
)

func init() {
	rootCmd.RunE = runAutofix
	rootCmd.Flags().BoolVar(&flagAll, "all", false, "Ingest every open issue carrying the configured auto-fix label")
	rootCmd.Flags().StringVar(&flagIssues, "issues", "", "Comma-separated issue numbers to ingest")
	rootCmd.Flags().StringVar(&flagGroupBy, "group-by", "component", "Grouping dimension: component|file|label|type|priority")
	rootCmd.Flags().IntVar(&flagMaxParallel, "max-parallel", 3, "Maximum concurrent group pipelines (1..10)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Simulate mutating stages without touching git/GitHub")
	rootCmd.Flags().IntVar(&flagMaxRetries, "max-retries", 3, "Maximum per-stage retry attempts (1..10)")
	rootCmd.Flags().StringVar(&flagLabels, "labels", "", "Comma-separated labels an issue must carry to be grouped")
	rootCmd.Flags().StringVar(&flagExcludeLabels, "exclude-labels", "", "Comma-separated labels that exclude an issue from grouping")
	rootCmd.Flags().StringVar(&flagBaseBranch, "base-branch", "", "Base branch for worktrees and pull requests (default: config's defaultBranch)")
}

func runAutofix(cmd *cobra.Command, args []string) error {
	if flagAll && flagIssues != "" {
		return errs.New(errs.CodeInvalidParams, "--all and --issues are mutually exclusive", nil)
	}
	if !flagAll && flagIssues == "" {
		return errs.New(errs.CodeInvalidParams, "one of --all or --issues is required", nil)
	}

	repoRoot, err := resolveRepoRoot()
	if err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.Find(repoRoot)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if flagBaseBranch != "" {
		cfg.GitHub.DefaultBranch = flagBaseBranch
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Checks.MaxRetries = flagMaxRetries
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.Worktree.MaxConcurrent = flagMaxParallel
	}

	logger, _, closeLog := newFileLogger(filepath.Join(repoRoot, cfg.Logging.Dir))
	defer closeLog()

	vcsClient := newVCSClient(cfg, repoRoot)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issues, err := gatherIssues(ctx, vcsClient, cfg)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No issues to process.")
		return nil
	}

	groupResult, err := grouping.Group(issues, grouping.Params{
		GroupBy:       issue.GroupBy(flagGroupBy),
		MaxGroupSize:  defaultMaxGroupSize,
		MinGroupSize:  defaultMinGroupSize,
		IncludeLabels: splitCSV(flagLabels),
		ExcludeLabels: splitCSV(flagExcludeLabels),
		BranchPrefix:  cfg.Worktree.Prefix,
	})
	if err != nil {
		return err
	}
	if len(groupResult.Ungrouped) > 0 {
		logger.Info("issues left ungrouped by group size bounds", "count", len(groupResult.Ungrouped))
	}
	if len(groupResult.Groups) == 0 {
		fmt.Println("No groups produced.")
		return nil
	}

	bus := progress.NewBus()
	runView(bus)

	baseDir := cfg.Worktree.BaseDir
	if !filepath.IsAbs(baseDir) {
		baseDir = filepath.Join(repoRoot, baseDir)
	}
	wm := worktree.NewManager(repoRoot, baseDir, cfg.GitHub.DefaultBranch, cfg.Worktree.Prefix)
	go func() {
		_ = wm.Watch(ctx, logger, func(path string) {
			logger.Warn("workspace directory disappeared outside the pipeline", "path", path)
		})
	}()

	pipeline := orchestrator.New(orchestrator.Config{
		Worktree:      wm,
		Provider:      agent.NewCLIProvider("claude"),
		Checks:        checks.NewRunner(cfg.Checks),
		VCS:           vcsClient,
		Bus:           bus,
		Logger:        logger,
		MaxRetries:    cfg.Checks.MaxRetries,
		BaseBranch:    cfg.GitHub.DefaultBranch,
		BranchDispose: worktree.KeepBranch,
		PRLabels:      []string{cfg.GitHub.AutoFixLabel},
	})

	items := make([]*queue.Item[issue.Group], len(groupResult.Groups))
	for i, g := range groupResult.Groups {
		items[i] = &queue.Item[issue.Group]{Payload: g}
	}

	dispatcher := queue.New(cfg.Worktree.MaxConcurrent, func(ctx context.Context, g issue.Group) error {
		result := pipeline.Run(ctx, g, flagDryRun)
		if !result.Success {
			return result.Error
		}
		return nil
	})

	bus.Emit(progress.Event{Type: progress.EventStart, Message: fmt.Sprintf("processing %d groups", len(items))})
	stats := dispatcher.Run(ctx, items)
	bus.Emit(progress.Event{Type: progress.EventComplete, Message: "done"})

	printSummary(groupResult.Groups, items, stats)

	if stats.Failed > 0 || stats.Interrupted > 0 {
		return errs.New(errs.CodePipelineFailed, fmt.Sprintf("%d group(s) failed", stats.Failed+stats.Interrupted), nil)
	}
	return nil
}

// runView starts the bubbletea progress display in the background when
// stdout looks like an interactive terminal; its failure is never fatal —
// the structured logger already records everything the view would show.
func runView(bus *progress.Bus) {
	if verbosity > 0 {
		return
	}
	if fi, err := os.Stdout.Stat(); err != nil || (fi.Mode()&os.ModeCharDevice) == 0 {
		return
	}
	go func() {
		_, _ = tea.NewProgram(progress.NewView(bus)).Run()
	}()
}

func newVCSClient(cfg config.Config, repoRoot string) vcs.Client {
	if cfg.GitHub.Token != "" && cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		return vcs.NewRESTClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token)
	}
	return vcs.NewGHCLIClient(repoRoot)
}

func gatherIssues(ctx context.Context, client vcs.Client, cfg config.Config) ([]issue.Issue, error) {
	var numbers []int
	if flagIssues != "" {
		for _, part := range strings.Split(flagIssues, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, errs.New(errs.CodeInvalidParams, "invalid --issues entry: "+part, err)
			}
			numbers = append(numbers, n)
		}
	} else {
		query := "is:open"
		if cfg.GitHub.AutoFixLabel != "" {
			query += " label:" + cfg.GitHub.AutoFixLabel
		}
		if cfg.GitHub.SkipLabel != "" {
			query += " -label:" + cfg.GitHub.SkipLabel
		}
		found, err := client.SearchIssues(ctx, query)
		if err != nil {
			return nil, err
		}
		numbers = found
	}

	issues := make([]issue.Issue, 0, len(numbers))
	for _, n := range numbers {
		detail, err := client.GetIssue(ctx, n)
		if err != nil {
			return nil, err
		}
		issues = append(issues, ingest.FromGitHub(detail))
	}
	return issues, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printSummary(groups []issue.Group, items []*queue.Item[issue.Group], stats queue.Stats) {
	fmt.Printf("\n=== Autofix Results ===\n")
	fmt.Printf("Groups: %d  Completed: %d  Failed: %d  Interrupted: %d  Duration: %s\n",
		stats.Total, stats.Completed, stats.Failed, stats.Interrupted, stats.Duration)

	for i, item := range items {
		g := groups[i]
		status, _, itemErr := item.Status, item.Attempt, item.Err
		switch status {
		case queue.StatusCompleted:
			fmt.Printf("  [OK]   %s (%d issues)\n", g.Name, len(g.Issues))
		case queue.StatusFailed:
			fmt.Printf("  [FAIL] %s (%d issues): %s\n", g.Name, len(g.Issues), itemErr)
		default:
			fmt.Printf("  [SKIP] %s (%d issues)\n", g.Name, len(g.Issues))
		}
	}
}
