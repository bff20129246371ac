package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/asana"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/config"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/triage"
)

// defaultConfidenceThresh/defaultNeedsInfoLabels/defaultSyncedTag are not
// part of spec.md's Configuration shape (github/asana/worktree/checks/
// logging only), so they're fixed constants here rather than invented
// config fields or undocumented flags.
const (
	defaultConfidenceThresh = 0.6
	defaultSyncedTag        = "autofix-synced"
)

var defaultNeedsInfoLabels = []string{"needs-info"}

var (
	triageProject string
	triageMode    string
	triageDryRun  bool
	triageSection string
	triagePriority string
	triageLimit   int
	triageYes     bool
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Convert project-tracker tasks into issue-tracker issues",
	Long: `triage fetches tasks from the configured Asana project (or
--project), skips any already carrying the synced tag, classifies the rest
via AI, and creates one issue-tracker issue per task — a needs-info issue
when confidence falls below threshold, a normal autofix-eligible issue
otherwise.`,
	RunE: runTriage,
}

func init() {
	rootCmd.AddCommand(triageCmd)
	triageCmd.Flags().StringVar(&triageProject, "project", "", "Asana project gid (default: config's first projectGid)")
	triageCmd.Flags().StringVar(&triageMode, "mode", "batch", "Triage mode: single|batch")
	triageCmd.Flags().BoolVar(&triageDryRun, "dry-run", false, "List tasks that would be triaged without creating issues")
	triageCmd.Flags().StringVar(&triageSection, "section", "", "Restrict to tasks in this section gid")
	triageCmd.Flags().StringVar(&triagePriority, "priority", "", "Restrict to tasks carrying this priority value")
	triageCmd.Flags().IntVar(&triageLimit, "limit", 0, "Maximum number of tasks to triage (0 = unlimited)")
	triageCmd.Flags().BoolVar(&triageYes, "yes", false, "Skip the confirmation prompt")
}

func runTriage(cmd *cobra.Command, args []string) error {
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

	project := triageProject
	if project == "" && len(cfg.Asana.ProjectGids) > 0 {
		project = cfg.Asana.ProjectGids[0]
	}
	if project == "" {
		return errs.New(errs.CodeInvalidParams, "--project is required when no asana.projectGids are configured", nil)
	}
	if cfg.Asana.Token == "" {
		return errs.New(errs.CodeAuthFailed, "asana.token is not configured", nil)
	}

	logger, _, closeLog := newFileLogger(filepath.Join(repoRoot, cfg.Logging.Dir))
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := asana.NewRESTClient(cfg.Asana.Token)
	vcsClient := newVCSClient(cfg, repoRoot)

	tasks, err := tracker.ListTasks(ctx, project, triageSection)
	if err != nil {
		return err
	}
	triageTasks := filterTasks(tasks, triagePriority, triageLimit)
	if len(triageTasks) == 0 {
		fmt.Println("No tasks to triage.")
		return nil
	}

	if triageDryRun {
		fmt.Printf("Would triage %d task(s):\n", len(triageTasks))
		for _, t := range triageTasks {
			fmt.Printf("  - %s: %s\n", t.ID, t.Name)
		}
		return nil
	}

	if !triageYes && !confirm(fmt.Sprintf("Triage %d task(s)? [y/N] ", len(triageTasks))) {
		fmt.Println("Aborted.")
		return nil
	}

	syncedTagGID := resolveSyncedTagGID(ctx, tracker, cfg.Asana.WorkspaceGid, logger)

	triageCfg := triage.Config{
		Provider:         agent.NewCLIProvider("claude"),
		Client:           vcsClient,
		Tracker:          tracker,
		Logger:           logger,
		ConfidenceThresh: defaultConfidenceThresh,
		NeedsInfoLabels:  defaultNeedsInfoLabels,
		SyncedTag:        defaultSyncedTag,
		SyncedTagGID:     syncedTagGID,
	}

	var results []triage.Result
	if triageMode == "single" {
		for _, t := range triageTasks {
			one, err := triage.Batch(ctx, []triage.Task{t}, triageCfg)
			if err != nil {
				return err
			}
			results = append(results, one...)
		}
	} else {
		results, err = triage.Batch(ctx, triageTasks, triageCfg)
		if err != nil {
			return err
		}
	}

	printTriageResults(results)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errs.New(errs.CodePipelineFailed, fmt.Sprintf("%d task(s) failed triage", failed), nil)
	}
	return nil
}

func filterTasks(tasks []asana.Task, priority string, limit int) []triage.Task {
	out := make([]triage.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		out = append(out, triage.Task{
			ID:          t.GID,
			Name:        t.Name,
			Notes:       t.Notes,
			SectionName: t.SectionName,
			Tags:        t.Tags,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// resolveSyncedTagGID looks up defaultSyncedTag's gid via the workspace tag
// list; triage proceeds without tagging (AddTag is skipped) if it can't be
// resolved, since asana.Client exposes no tag-creation operation.
func resolveSyncedTagGID(ctx context.Context, tracker asana.Client, workspaceGID string, logger *slog.Logger) string {
	if workspaceGID == "" {
		return ""
	}
	tags, err := tracker.ListWorkspaceTags(ctx, workspaceGID)
	if err != nil {
		logger.Warn("list workspace tags failed", "error", err)
		return ""
	}
	return tags[defaultSyncedTag]
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func printTriageResults(results []triage.Result) {
	fmt.Printf("\n=== Triage Results ===\n")
	var created, needsInfo, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
			fmt.Printf("  [SKIP] %s (already synced)\n", r.Task.ID)
		case r.Err != nil:
			failed++
			fmt.Printf("  [FAIL] %s: %s\n", r.Task.ID, r.Err)
		case r.NeedsInfo:
			needsInfo++
			fmt.Printf("  [INFO] %s -> %s (needs-info)\n", r.Task.ID, r.IssueURL)
		default:
			created++
			fmt.Printf("  [OK]   %s -> %s\n", r.Task.ID, r.IssueURL)
		}
	}
	fmt.Printf("\nCreated: %d  Needs-info: %d  Skipped: %d  Failed: %d\n", created, needsInfo, skipped, failed)
}
