// Package vcs is the version-control host interface consumed by the
// orchestrator: issue creation/search/labeling, PR creation/listing, and
// comments. Two implementations satisfy Client: a gh-CLI-backed one
// (ghcli.go, adapted from wt/github.go) and a direct REST one (rest.go),
// since spec.md's HTTP-status error classification only makes sense against
// a real HTTP client.
package vcs

import (
	"context"
	"time"
)

// PR mirrors wt.PRInfo but is renamed/trimmed to the fields the
// orchestrator's pr_create/issue_update stages need.
type PR struct {
	Number         int
	URL            string
	HeadRefName    string
	BaseRefName    string
	State          string // OPEN, CLOSED, MERGED
	ReviewDecision string
}

// IsMergeable reports whether the PR has been approved.
func (p PR) IsMergeable() bool { return p.ReviewDecision == "APPROVED" }

// CreateIssueParams describes a new tracker issue.
type CreateIssueParams struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	Milestone string
}

// CreatePRParams describes a new pull request.
type CreatePRParams struct {
	Title  string
	Body   string
	Head   string
	Base   string
	Draft  bool
	Labels []string
}

// IssueDetail is the raw issue-tracker representation fetched for ingest,
// before internal/ingest (using internal/parser) turns it into an issue.Issue.
type IssueDetail struct {
	Number    int
	Title     string
	Body      string
	State     string
	Labels    []string
	Assignees []string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Client is the version-control host interface consumed by the pipeline.
// Implementations classify errors per spec.md §6: 401→AUTH, 403
// rate-limit→RATE_LIMIT else AUTH, 404→NOT_FOUND, 422→VALIDATION or
// ALREADY_EXISTS (by message substring), 429→RATE_LIMIT, 5xx→API_ERROR,
// network→NETWORK_ERROR. Anything else is UNKNOWN in RESTClient; GHCLIClient
// matches these cases against gh's stderr text and reports anything
// unmatched as API_ERROR. All are surfaced as *errs.Error via the errs
// package.
type Client interface {
	CreateIssue(ctx context.Context, p CreateIssueParams) (number int, url string, err error)
	GetIssue(ctx context.Context, number int) (*IssueDetail, error)
	SearchIssues(ctx context.Context, query string) ([]int, error)
	AddLabels(ctx context.Context, issueNumber int, labels []string) error
	RemoveLabels(ctx context.Context, issueNumber int, labels []string) error
	RequestReviewers(ctx context.Context, prNumber int, reviewers []string) error
	CreatePR(ctx context.Context, p CreatePRParams) (*PR, error)
	ListPRs(ctx context.Context, head, base string) ([]PR, error)
	GetPRByBranch(ctx context.Context, branch string) (*PR, error)
	AddComment(ctx context.Context, issueNumber int, body string) error
}
