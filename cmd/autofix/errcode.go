package main

import "github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"

// exitCodeFor maps a top-level command error onto spec.md §6's exit codes:
// 0 success (never reached here, RunE only returns non-nil on failure),
// 1 any group/task failed, 2 config or auth error.
func exitCodeFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeConfigMissing, errs.CodeConfigInvalid, errs.CodeConfigValidation,
		errs.CodeEnvOverride, errs.CodeAuthFailed:
		return 2
	default:
		return 1
	}
}
