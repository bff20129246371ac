package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Runner executes gh CLI commands. Adapted from wt.GHRunner/DefaultGHRunner
// so the pipeline can fake gh invocations in tests the same way wt does.
type Runner interface {
	Run(ctx context.Context, args []string, dir string) (stdout, stderr string, err error)
}

// ExecRunner implements Runner using os/exec, identical in shape to
// wt.DefaultGHRunner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, args []string, dir string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	stdout, err := cmd.Output()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return string(stdout), string(exitErr.Stderr), err
	}
	return string(stdout), "", err
}

// GHCLIClient implements Client by shelling out to the gh CLI, mirroring
// wt/github.go's CreatePR/GetPRByBranch/ListOpenPRs/UpdatePRBase functions
// but behind the Client interface and with errs classification instead of
// a raw error.
type GHCLIClient struct {
	Runner Runner
	Dir    string
}

// NewGHCLIClient constructs a GHCLIClient using the real gh binary.
func NewGHCLIClient(dir string) *GHCLIClient {
	return &GHCLIClient{Runner: ExecRunner{}, Dir: dir}
}

func (c *GHCLIClient) run(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := c.Runner.Run(ctx, args, c.Dir)
	if err != nil {
		return stdout, classifyGHError(err, stderr)
	}
	return stdout, nil
}

func (c *GHCLIClient) CreateIssue(ctx context.Context, p CreateIssueParams) (int, string, error) {
	args := []string{"issue", "create", "--json", "number,url", "--title", p.Title, "--body", p.Body}
	for _, l := range p.Labels {
		args = append(args, "--label", l)
	}
	for _, a := range p.Assignees {
		args = append(args, "--assignee", a)
	}
	if p.Milestone != "" {
		args = append(args, "--milestone", p.Milestone)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return 0, "", err
	}
	var result struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return 0, "", errs.New(errs.CodeAPIError, "parse issue create response", err)
	}
	return result.Number, result.URL, nil
}

func (c *GHCLIClient) GetIssue(ctx context.Context, number int) (*IssueDetail, error) {
	out, err := c.run(ctx, "issue", "view", strconv.Itoa(number), "--json",
		"number,title,body,state,labels,assignees,url,createdAt,updatedAt")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		URL    string `json:"url"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, errs.New(errs.CodeAPIError, "parse issue view response", err)
	}

	detail := &IssueDetail{
		Number: raw.Number, Title: raw.Title, Body: raw.Body,
		State: strings.ToLower(raw.State), URL: raw.URL,
		CreatedAt: raw.CreatedAt, UpdatedAt: raw.UpdatedAt,
	}
	for _, l := range raw.Labels {
		detail.Labels = append(detail.Labels, l.Name)
	}
	for _, a := range raw.Assignees {
		detail.Assignees = append(detail.Assignees, a.Login)
	}
	return detail, nil
}

func (c *GHCLIClient) SearchIssues(ctx context.Context, query string) ([]int, error) {
	out, err := c.run(ctx, "issue", "list", "--search", query, "--json", "number")
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Number int `json:"number"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		return nil, errs.New(errs.CodeAPIError, "parse issue search response", err)
	}
	nums := make([]int, len(rows))
	for i, r := range rows {
		nums[i] = r.Number
	}
	return nums, nil
}

func (c *GHCLIClient) AddLabels(ctx context.Context, issueNumber int, labels []string) error {
	args := []string{"issue", "edit", strconv.Itoa(issueNumber)}
	for _, l := range labels {
		args = append(args, "--add-label", l)
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *GHCLIClient) RemoveLabels(ctx context.Context, issueNumber int, labels []string) error {
	args := []string{"issue", "edit", strconv.Itoa(issueNumber)}
	for _, l := range labels {
		args = append(args, "--remove-label", l)
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *GHCLIClient) RequestReviewers(ctx context.Context, prNumber int, reviewers []string) error {
	args := []string{"pr", "edit", strconv.Itoa(prNumber)}
	for _, r := range reviewers {
		args = append(args, "--add-reviewer", r)
	}
	_, err := c.run(ctx, args...)
	return err
}

func (c *GHCLIClient) CreatePR(ctx context.Context, p CreatePRParams) (*PR, error) {
	args := []string{"pr", "create", "--json", "number,url,headRefName,baseRefName"}
	if p.Base != "" {
		args = append(args, "--base", p.Base)
	}
	if p.Head != "" {
		args = append(args, "--head", p.Head)
	}
	if p.Title != "" {
		args = append(args, "--title", p.Title)
	}
	if p.Body != "" {
		args = append(args, "--body", p.Body)
	}
	if p.Draft {
		args = append(args, "--draft")
	}
	for _, l := range p.Labels {
		args = append(args, "--label", l)
	}

	out, err := c.run(ctx, args...)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeAlreadyExists {
			existing, getErr := c.GetPRByBranch(ctx, p.Head)
			if getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	var pr PR
	if jsonErr := json.Unmarshal([]byte(out), &pr); jsonErr != nil {
		return nil, errs.New(errs.CodeAPIError, "parse pr create response", jsonErr)
	}
	return &pr, nil
}

func (c *GHCLIClient) ListPRs(ctx context.Context, head, base string) ([]PR, error) {
	args := []string{"pr", "list", "--json", "number,url,headRefName,baseRefName,state", "--state", "all"}
	if head != "" {
		args = append(args, "--head", head)
	}
	if base != "" {
		args = append(args, "--base", base)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var prs []PR
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, errs.New(errs.CodeAPIError, "parse pr list response", err)
	}
	return prs, nil
}

func (c *GHCLIClient) GetPRByBranch(ctx context.Context, branch string) (*PR, error) {
	out, err := c.run(ctx, "pr", "view", branch, "--json", "number,url,headRefName,baseRefName,state,reviewDecision")
	if err != nil {
		return nil, err
	}
	var pr PR
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, errs.New(errs.CodeAPIError, "parse pr view response", err)
	}
	return &pr, nil
}

func (c *GHCLIClient) AddComment(ctx context.Context, issueNumber int, body string) error {
	_, err := c.run(ctx, "issue", "comment", strconv.Itoa(issueNumber), "--body", body)
	return err
}

// classifyGHError maps a gh CLI failure onto the shared error vocabulary by
// inspecting stderr text, since gh does not expose raw HTTP status codes on
// exit failure the way a direct REST call would.
func classifyGHError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "already exists"):
		return errs.New(errs.CodeAlreadyExists, stderr, err)
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return errs.New(errs.CodeNotFound, stderr, err)
	case strings.Contains(lower, "rate limit"):
		return errs.New(errs.CodeRateLimited, stderr, err)
	case strings.Contains(lower, "403"):
		return errs.New(errs.CodeAuthFailed, stderr, err)
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "401"):
		return errs.New(errs.CodeAuthFailed, stderr, err)
	case strings.Contains(lower, "validation failed") || strings.Contains(lower, "422"):
		return errs.New(errs.CodeValidationFail, stderr, err)
	case strings.Contains(lower, "could not resolve host") || strings.Contains(lower, "connection refused"):
		return errs.New(errs.CodeNetworkError, stderr, err)
	default:
		return errs.New(errs.CodeAPIError, fmt.Sprintf("gh command failed: %s", stderr), err)
	}
}
