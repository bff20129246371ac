package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// RESTClient implements Client by calling the GitHub REST API directly over
// net/http, giving the orchestrator access to the raw HTTP status codes
// spec.md's error classifier names (401/403/404/422/5xx/network).
type RESTClient struct {
	HTTP    *http.Client
	BaseURL string // e.g. https://api.github.com
	Owner   string
	Repo    string
	Token   string
}

// NewRESTClient constructs a RESTClient against the public GitHub API.
func NewRESTClient(owner, repo, token string) *RESTClient {
	return &RESTClient{
		HTTP:    http.DefaultClient,
		BaseURL: "https://api.github.com",
		Owner:   owner,
		Repo:    repo,
		Token:   token,
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errs.New(errs.CodeAPIError, "marshal request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return errs.New(errs.CodeAPIError, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.New(errs.CodeNetworkError, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		return classifyHTTPStatus(resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errs.New(errs.CodeAPIError, "decode response body", err)
		}
	}
	return nil
}

// classifyHTTPStatus implements spec.md §6's classification table:
// 401→AUTH, 403 with rate-limit semantics→RATE_LIMIT else AUTH,
// 404→NOT_FOUND, 422→VALIDATION or ALREADY_EXISTS (by message substring
// "already exists"), 429→RATE_LIMIT, 5xx→API_ERROR (recoverable), network
// is handled by the caller, others→UNKNOWN.
func classifyHTTPStatus(status int, body string) error {
	msg := fmt.Sprintf("http %d: %s", status, body)
	switch status {
	case http.StatusUnauthorized:
		return errs.New(errs.CodeAuthFailed, msg, nil)
	case http.StatusForbidden:
		if looksRateLimited(body) {
			return errs.New(errs.CodeRateLimited, msg, nil)
		}
		return errs.New(errs.CodeAuthFailed, msg, nil)
	case http.StatusTooManyRequests:
		return errs.New(errs.CodeRateLimited, msg, nil)
	case http.StatusNotFound:
		return errs.New(errs.CodeNotFound, msg, nil)
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(body), "already exists") {
			return errs.New(errs.CodeAlreadyExists, msg, nil)
		}
		return errs.New(errs.CodeValidationFail, msg, nil)
	default:
		if status >= 500 {
			return errs.New(errs.CodeAPIError, msg, nil).WithRecoverable(true)
		}
		return errs.New(errs.CodeUnknown, msg, nil)
	}
}

func looksRateLimited(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

func (c *RESTClient) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", c.Owner, c.Repo, suffix)
}

func (c *RESTClient) CreateIssue(ctx context.Context, p CreateIssueParams) (int, string, error) {
	body := map[string]any{"title": p.Title, "body": p.Body, "labels": p.Labels, "assignees": p.Assignees}
	if p.Milestone != "" {
		body["milestone"] = p.Milestone
	}
	var out struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, c.repoPath("/issues"), body, &out); err != nil {
		return 0, "", err
	}
	return out.Number, out.HTMLURL, nil
}

func (c *RESTClient) GetIssue(ctx context.Context, number int) (*IssueDetail, error) {
	var raw struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		HTMLURL string `json:"html_url"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath(fmt.Sprintf("/issues/%d", number)), nil, &raw); err != nil {
		return nil, err
	}

	detail := &IssueDetail{
		Number: raw.Number, Title: raw.Title, Body: raw.Body,
		State: raw.State, URL: raw.HTMLURL,
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

func (c *RESTClient) SearchIssues(ctx context.Context, query string) ([]int, error) {
	var out struct {
		Items []struct {
			Number int `json:"number"`
		} `json:"items"`
	}
	q := fmt.Sprintf("/search/issues?q=%s", query)
	if err := c.do(ctx, http.MethodGet, q, nil, &out); err != nil {
		return nil, err
	}
	nums := make([]int, len(out.Items))
	for i, it := range out.Items {
		nums[i] = it.Number
	}
	return nums, nil
}

func (c *RESTClient) AddLabels(ctx context.Context, issueNumber int, labels []string) error {
	return c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/labels", issueNumber)), map[string]any{"labels": labels}, nil)
}

func (c *RESTClient) RemoveLabels(ctx context.Context, issueNumber int, labels []string) error {
	for _, l := range labels {
		if err := c.do(ctx, http.MethodDelete, c.repoPath(fmt.Sprintf("/issues/%d/labels/%s", issueNumber, l)), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *RESTClient) RequestReviewers(ctx context.Context, prNumber int, reviewers []string) error {
	return c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/pulls/%d/requested_reviewers", prNumber)), map[string]any{"reviewers": reviewers}, nil)
}

func (c *RESTClient) CreatePR(ctx context.Context, p CreatePRParams) (*PR, error) {
	body := map[string]any{"title": p.Title, "body": p.Body, "head": p.Head, "base": p.Base, "draft": p.Draft}
	var out pullResponse
	err := c.do(ctx, http.MethodPost, c.repoPath("/pulls"), body, &out)
	if err != nil {
		if errs.CodeOf(err) == errs.CodeAlreadyExists {
			if existing, getErr := c.GetPRByBranch(ctx, p.Head); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if len(p.Labels) > 0 {
		_ = c.AddLabels(ctx, out.Number, p.Labels)
	}
	pr := out.toPR()
	return &pr, nil
}

func (c *RESTClient) ListPRs(ctx context.Context, head, base string) ([]PR, error) {
	path := c.repoPath("/pulls?state=all")
	if head != "" {
		path += "&head=" + c.Owner + ":" + head
	}
	if base != "" {
		path += "&base=" + base
	}
	var out []pullResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	prs := make([]PR, len(out))
	for i, p := range out {
		prs[i] = p.toPR()
	}
	return prs, nil
}

func (c *RESTClient) GetPRByBranch(ctx context.Context, branch string) (*PR, error) {
	prs, err := c.ListPRs(ctx, branch, "")
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, errs.New(errs.CodeNotFound, "no PR for branch "+branch, nil)
	}
	return &prs[0], nil
}

func (c *RESTClient) AddComment(ctx context.Context, issueNumber int, body string) error {
	return c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/comments", issueNumber)), map[string]any{"body": body}, nil)
}

type pullResponse struct {
	Number      int    `json:"number"`
	HTMLURL     string `json:"html_url"`
	State       string `json:"state"`
	Merged      bool   `json:"merged"`
	Head        struct{ Ref string `json:"ref"` } `json:"head"`
	Base        struct{ Ref string `json:"ref"` } `json:"base"`
}

func (p pullResponse) toPR() PR {
	state := strings.ToUpper(p.State)
	if p.Merged {
		state = "MERGED"
	}
	return PR{
		Number:      p.Number,
		URL:         p.HTMLURL,
		HeadRefName: p.Head.Ref,
		BaseRefName: p.Base.Ref,
		State:       state,
	}
}
