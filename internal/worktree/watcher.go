package worktree

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Watch watches BaseDir for externally removed workspace directories (e.g. a
// developer running `rm -rf` or `git worktree remove` by hand outside this
// process) and calls onRemoved for each one, so a caller holding worktrees in
// memory can drop them without polling List on a timer. It blocks until ctx
// is cancelled or the watcher's channels close; errors reported by the
// watcher are logged and watching continues.
func (m *Manager) Watch(ctx context.Context, logger *slog.Logger, onRemoved func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.New(errs.CodeWorktreeError, "create fs watcher", err)
	}
	defer w.Close()

	if err := w.Add(m.BaseDir); err != nil {
		return errs.New(errs.CodeWorktreeError, "watch base dir", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				logger.Debug("worktree dir removed externally", "path", event.Name)
				if onRemoved != nil {
					onRemoved(event.Name)
				}
			}
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("worktree watcher error", "error", watchErr)
		}
	}
}
