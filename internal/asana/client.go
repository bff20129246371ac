// Package asana is the project-tracker REST client consumed by the triage
// processor, following the same shape as internal/vcs's RESTClient (typed
// request/response structs, HTTP-status error classification via
// internal/errs) since the teacher pack carries no Asana-specific client
// to adapt from.
package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

// Task is a project-tracker work item, trimmed to the fields triage needs.
type Task struct {
	GID         string   `json:"gid"`
	Name        string   `json:"name"`
	Notes       string   `json:"notes"`
	Completed   bool     `json:"completed"`
	Tags        []string `json:"-"`
	SectionGID  string   `json:"-"`
	SectionName string   `json:"-"`
	Priority    string   `json:"-"`
	PermalinkURL string  `json:"permalink_url"`
}

// Client is the project-tracker interface consumed by internal/triage:
// fetch task, list tasks for a project/section, fetch subtasks, update a
// task, add/remove tag, add task to section, create comment, workspace tags
// list — per spec.md §6's "Project-tracker interface (consumed)".
type Client interface {
	GetTask(ctx context.Context, taskGID string) (*Task, error)
	ListTasks(ctx context.Context, projectGID, sectionGID string) ([]Task, error)
	ListSubtasks(ctx context.Context, taskGID string) ([]Task, error)
	UpdateTask(ctx context.Context, taskGID string, fields map[string]any) error
	AddTag(ctx context.Context, taskGID, tagGID string) error
	RemoveTag(ctx context.Context, taskGID, tagGID string) error
	AddToSection(ctx context.Context, taskGID, sectionGID string) error
	CreateComment(ctx context.Context, taskGID, text string) error
	ListWorkspaceTags(ctx context.Context, workspaceGID string) (map[string]string, error)
}

// RESTClient implements Client against the real Asana API.
type RESTClient struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

// NewRESTClient constructs a RESTClient against the public Asana API.
func NewRESTClient(token string) *RESTClient {
	return &RESTClient{
		HTTP:    http.DefaultClient,
		BaseURL: "https://app.asana.com/api/1.0",
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
	req.Header.Set("Accept", "application/json")
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

// classifyHTTPStatus mirrors vcs.classifyHTTPStatus's table, applied to
// Asana's own error envelope (Asana wraps details under "errors[].message"
// rather than GitHub's flat body, but the status-code semantics match).
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
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

type taskEnvelope struct {
	Data taskPayload `json:"data"`
}

type tasksEnvelope struct {
	Data []taskPayload `json:"data"`
}

type taskPayload struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	Notes        string `json:"notes"`
	Completed    bool   `json:"completed"`
	PermalinkURL string `json:"permalink_url"`
	Tags         []struct {
		GID  string `json:"gid"`
		Name string `json:"name"`
	} `json:"tags"`
	Memberships []struct {
		Section struct {
			GID  string `json:"gid"`
			Name string `json:"name"`
		} `json:"section"`
	} `json:"memberships"`
}

func (p taskPayload) toTask() Task {
	t := Task{
		GID:          p.GID,
		Name:         p.Name,
		Notes:        p.Notes,
		Completed:    p.Completed,
		PermalinkURL: p.PermalinkURL,
	}
	for _, tag := range p.Tags {
		t.Tags = append(t.Tags, tag.Name)
	}
	if len(p.Memberships) > 0 {
		t.SectionGID = p.Memberships[0].Section.GID
		t.SectionName = p.Memberships[0].Section.Name
	}
	return t
}

const taskOptFields = "opt_fields=name,notes,completed,permalink_url,tags.name,memberships.section.name"

func (c *RESTClient) GetTask(ctx context.Context, taskGID string) (*Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks/"+taskGID+"?"+taskOptFields, nil, &out); err != nil {
		return nil, err
	}
	task := out.Data.toTask()
	return &task, nil
}

func (c *RESTClient) ListTasks(ctx context.Context, projectGID, sectionGID string) ([]Task, error) {
	var path string
	if sectionGID != "" {
		path = fmt.Sprintf("/sections/%s/tasks?%s", sectionGID, taskOptFields)
	} else {
		path = fmt.Sprintf("/projects/%s/tasks?%s", projectGID, taskOptFields)
	}

	var out tasksEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	tasks := make([]Task, len(out.Data))
	for i, p := range out.Data {
		tasks[i] = p.toTask()
	}
	return tasks, nil
}

func (c *RESTClient) ListSubtasks(ctx context.Context, taskGID string) ([]Task, error) {
	var out tasksEnvelope
	path := fmt.Sprintf("/tasks/%s/subtasks?%s", taskGID, taskOptFields)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	tasks := make([]Task, len(out.Data))
	for i, p := range out.Data {
		tasks[i] = p.toTask()
	}
	return tasks, nil
}

func (c *RESTClient) UpdateTask(ctx context.Context, taskGID string, fields map[string]any) error {
	return c.do(ctx, http.MethodPut, "/tasks/"+taskGID, map[string]any{"data": fields}, nil)
}

func (c *RESTClient) AddTag(ctx context.Context, taskGID, tagGID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskGID+"/addTag", map[string]any{"data": map[string]any{"tag": tagGID}}, nil)
}

func (c *RESTClient) RemoveTag(ctx context.Context, taskGID, tagGID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskGID+"/removeTag", map[string]any{"data": map[string]any{"tag": tagGID}}, nil)
}

func (c *RESTClient) AddToSection(ctx context.Context, taskGID, sectionGID string) error {
	return c.do(ctx, http.MethodPost, "/sections/"+sectionGID+"/addTask", map[string]any{"data": map[string]any{"task": taskGID}}, nil)
}

func (c *RESTClient) CreateComment(ctx context.Context, taskGID, text string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskGID+"/stories", map[string]any{"data": map[string]any{"text": text}}, nil)
}

func (c *RESTClient) ListWorkspaceTags(ctx context.Context, workspaceGID string) (map[string]string, error) {
	var out struct {
		Data []struct {
			GID  string `json:"gid"`
			Name string `json:"name"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/workspaces/%s/tags?%s", workspaceGID, url.Values{"opt_fields": {"name"}}.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(out.Data))
	for _, t := range out.Data {
		tags[t.Name] = t.GID
	}
	return tags, nil
}
