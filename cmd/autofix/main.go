// Command autofix drives the autofix-candidate lifecycle: ingest issues from
// GitHub (or tasks from Asana via the triage subcommand), group related
// issues, then run each group through an isolated worktree where an AI
// agent proposes a fix, a check battery verifies it, and a pull request is
// opened.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/logging"
)

var (
	configPath string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "autofix",
	Short: "Automate the autofix-candidate lifecycle",
	Long: `autofix ingests issues from GitHub, groups related ones, and drives
each group through an isolated git worktree where an AI agent proposes a
fix, a check battery verifies it, and a pull request is opened — updating
the source trackers as it goes.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the autofix config file (default: search upward from CWD)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// resolveRepoRoot returns the CWD, the same convention medivac's
// resolveRepoRoot uses when --repo-root is unset.
func resolveRepoRoot() (string, error) {
	return os.Getwd()
}

func verbosityLevel() slog.Level {
	return logging.LevelFromVerbosity(verbosity)
}

func newLogger() *slog.Logger {
	return logging.New(verbosityLevel())
}

func newFileLogger(logDir string) (*slog.Logger, string, func()) {
	return logging.NewFileLogger(logDir, verbosityLevel())
}
