// Package errs defines the single typed error vocabulary shared across the
// autofix pipeline: configuration, external API, workspace, and pipeline
// errors all carry a Code so callers classify by switching on it rather than
// matching strings.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Codes are stable across releases since
// callers (retry classifier, CLI exit-code mapping, tests) match on them.
type Code string

const (
	// Configuration
	CodeConfigMissing    Code = "CONFIG_MISSING"
	CodeConfigInvalid    Code = "CONFIG_INVALID"
	CodeConfigValidation Code = "CONFIG_VALIDATION_ERROR"
	CodeEnvOverride      Code = "ENV_OVERRIDE_ERROR"

	// External APIs
	CodeAuthFailed      Code = "AUTH_FAILED"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeAPIError        Code = "API_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNetworkError    Code = "NETWORK_ERROR"
	CodeValidationFail  Code = "VALIDATION_FAILED"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"

	// Workspace
	CodeWorktreeCreateFailed  Code = "WORKTREE_CREATE_FAILED"
	CodeWorktreeCleanupFailed Code = "WORKTREE_CLEANUP_FAILED"
	CodeBranchExists          Code = "BRANCH_EXISTS"
	CodeWorktreeError         Code = "WORKTREE_ERROR"

	// Pipeline
	CodeAIAnalysisFailed Code = "AI_ANALYSIS_FAILED"
	CodeAIFixFailed      Code = "AI_FIX_FAILED"
	CodeCheckFailed      Code = "CHECK_FAILED"
	CodeLintFailed       Code = "LINT_FAILED"
	CodeTestFailed       Code = "TEST_FAILED"
	CodeTypecheckFailed  Code = "TYPECHECK_FAILED"
	CodePRCreateFailed   Code = "PR_CREATE_FAILED"
	CodeIssueUpdateFailed Code = "ISSUE_UPDATE_FAILED"
	CodePipelineFailed   Code = "PIPELINE_FAILED"
	CodeInterrupted      Code = "INTERRUPTED"
	CodeTimeout          Code = "TIMEOUT"
	CodeUnknown          Code = "UNKNOWN_ERROR"

	// Grouping engine
	CodeEmptyIssues      Code = "EMPTY_ISSUES"
	CodeInvalidParams    Code = "INVALID_PARAMS"
	CodeInvalidGroupSize Code = "INVALID_GROUP_SIZE"
	CodeGroupingFailed   Code = "GROUPING_FAILED"

	// install_deps stage
	CodeInstallDepsFailed Code = "INSTALL_DEPS_FAILED"
)

// retryable holds the default retry classification per code. A recoverable
// override on a specific Error takes precedence over this table.
var retryable = map[Code]bool{
	CodeRateLimited:          true,
	CodeNetworkError:         true,
	CodeAPIError:             true,
	CodeTimeout:              true,
	CodeWorktreeCreateFailed: true,
	CodeAIAnalysisFailed:     true,
	CodeAIFixFailed:          true,
	CodeCheckFailed:          true,
	CodeInstallDepsFailed:    true,
}

// nonRetryable is consulted before retryable; codes present here are never
// retried regardless of the retryable table (defensive, mirrors spec.md's
// explicit non-retryable list: auth, not-found, branch-exists, validation,
// duplicate).
var nonRetryable = map[Code]bool{
	CodeAuthFailed:       true,
	CodeNotFound:         true,
	CodeBranchExists:     true,
	CodeValidationFail:   true,
	CodeAlreadyExists:    true,
	CodeConfigInvalid:    true,
	CodeConfigMissing:    true,
	CodeConfigValidation: true,
	CodeInterrupted:      true,
}

// Error is the concrete error type. Code classifies it; Context carries
// structured attributes (group id, stage, HTTP status, etc.) for logging.
type Error struct {
	Code       Code
	Message    string
	Context    map[string]any
	Cause      error
	Recoverable *bool // explicit override; nil means "use the table"
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with the given code, message, and optional cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext attaches a structured attribute and returns the same Error for
// chaining: errs.New(...).WithContext("group", id).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets an explicit retryability override for this instance.
func (e *Error) WithRecoverable(v bool) *Error {
	e.Recoverable = &v
	return e
}

// Retryable reports whether err (or a wrapped *Error within it) should be
// retried by the orchestrator's stage-retry loop.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Recoverable != nil {
		return *e.Recoverable
	}
	if nonRetryable[e.Code] {
		return false
	}
	return retryable[e.Code]
}

// CodeOf extracts the Code from err, or CodeUnknown if err is not (or does
// not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// UserMessage derives a human-facing message for err, falling back to the
// raw error text for untyped errors.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Code {
	case CodeAuthFailed:
		return "authentication failed; check your configured tokens"
	case CodeRateLimited:
		return "rate limited by an external API; will back off and retry"
	case CodeNotFound:
		return "the requested resource was not found"
	case CodeBranchExists:
		return "a branch with that name already exists"
	case CodeAlreadyExists:
		return "the resource already exists; reusing it"
	case CodeInterrupted:
		return "interrupted by the user"
	default:
		return e.Message
	}
}

// SuggestedAction derives a short remediation hint for err.
func SuggestedAction(err error) string {
	switch CodeOf(err) {
	case CodeAuthFailed:
		return "re-check AUTO_FIX_GITHUB_TOKEN / AUTO_FIX_ASANA_TOKEN"
	case CodeRateLimited:
		return "no action needed; automatic backoff is in effect"
	case CodeConfigMissing, CodeConfigInvalid, CodeConfigValidation:
		return "inspect .auto-fix.yaml and the environment overrides"
	case CodeBranchExists:
		return "remove or rename the existing branch, or let the pipeline reuse it"
	default:
		return ""
	}
}
