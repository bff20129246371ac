// Package triage turns project-tracker tasks into tracker issues via a
// single batched AI call, generalizing medivac/github/triage.go's
// TriageRun/TriageBatch (CI-failure extraction) into task triage: one task
// in, one confidence-scored issue.Analysis out, with a needs-info branch
// when the analysis is too weak to act on.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/agent"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/asana"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
)

// Task is the subset of a project-tracker task the triage prompt needs.
type Task struct {
	ID          string
	Name        string
	Notes       string
	SectionName string
	Tags        []string
}

// Config controls triage behavior, mirroring medivac's TriageConfig shape
// (injectable query function, logger, model) but against the internal/agent
// Provider abstraction instead of a Claude-specific QueryFn.
type Config struct {
	Provider         agent.Provider
	Client           vcs.Client
	Tracker          asana.Client // nil disables source-task updates (dry-run / tests)
	Logger           *slog.Logger
	Model            string
	ConfidenceThresh float64
	NeedsInfoLabels  []string
	SyncedTag        string // tag applied to a task once its issue exists; skipped on re-run
	SyncedTagGID     string
	ProcessedSection string // section GID the task moves to once synced
}

// Result is the outcome of triaging one task.
type Result struct {
	Task       Task
	Analysis   issue.Analysis
	IssueURL   string
	IssueNum   int
	NeedsInfo  bool
	Skipped    bool // already synced, per SyncedTag
	Err        error
}

// batchItem is one element of the JSON array the triage prompt asks the
// model to return, mirroring medivac's triageResponse shape.
type batchItem struct {
	TaskID             string   `json:"task_id"`
	IssueType          string   `json:"issue_type"`
	Priority           string   `json:"priority"`
	Labels             []string `json:"labels"`
	Component          string   `json:"component"`
	RelatedFiles       []string `json:"related_files"`
	Summary            string   `json:"summary"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Confidence         float64  `json:"confidence"`
}

// Batch triages all given tasks in a single AI call, skipping any already
// carrying SyncedTag, and for each remaining task either creates a normal
// autofix-eligible issue or, when confidence is below threshold, a
// needs-info issue that is not enqueued for autofix.
func Batch(ctx context.Context, tasks []Task, cfg Config) ([]Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var pending []Task
	results := make([]Result, 0, len(tasks))
	for _, t := range tasks {
		if cfg.SyncedTag != "" && hasTag(t.Tags, cfg.SyncedTag) {
			results = append(results, Result{Task: t, Skipped: true})
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return results, nil
	}

	prompt := buildBatchPrompt(pending)
	logger.Debug("built triage prompt", "tasks", len(pending), "promptChars", len(prompt))

	model := cfg.Model
	if model == "" {
		model = "haiku"
	}
	response, err := cfg.Provider.Execute(ctx, prompt, agent.WithModel(model))
	if err != nil {
		return nil, errs.New(errs.CodeAIAnalysisFailed, "triage query failed", err)
	}
	logger.Debug("triage response received", "responseChars", len(response.Text), "cost", response.CostUSD)

	items, err := parseBatchResponse(response.Text)
	if err != nil {
		return nil, errs.New(errs.CodeAIAnalysisFailed, "parse triage response", err)
	}

	byID := make(map[string]batchItem, len(items))
	for _, item := range items {
		byID[item.TaskID] = item
	}

	for _, t := range pending {
		item, ok := byID[t.ID]
		if !ok {
			results = append(results, Result{Task: t, Err: errs.New(errs.CodeAIAnalysisFailed, "model returned no analysis for task "+t.ID, nil)})
			continue
		}
		analysis := toAnalysis(item)
		result := resolve(ctx, t, analysis, cfg)
		results = append(results, result)
	}

	return results, nil
}

func resolve(ctx context.Context, t Task, a issue.Analysis, cfg Config) Result {
	if a.Confidence < cfg.ConfidenceThresh {
		return needsInfo(ctx, t, a, cfg)
	}

	body := formatIssueBody(a)
	number, url, err := cfg.Client.CreateIssue(ctx, vcs.CreateIssueParams{
		Title:  fmt.Sprintf("[%s] %s", a.IssueType, t.Name),
		Body:   body,
		Labels: append([]string{}, a.Labels...),
	})
	if err != nil {
		return Result{Task: t, Analysis: a, Err: err}
	}

	// Tracker updates (comment, move, tag) are best-effort and never abort
	// issue creation, per spec.md §4.4 item 4.
	if cfg.Tracker != nil {
		if err := cfg.Tracker.CreateComment(ctx, t.ID, "Synced to issue "+url); err != nil {
			logWarn(cfg, "triage comment failed", t.ID, err)
		}
		if cfg.ProcessedSection != "" {
			if err := cfg.Tracker.AddToSection(ctx, t.ID, cfg.ProcessedSection); err != nil {
				logWarn(cfg, "triage section move failed", t.ID, err)
			}
		}
		if cfg.SyncedTagGID != "" {
			if err := cfg.Tracker.AddTag(ctx, t.ID, cfg.SyncedTagGID); err != nil {
				logWarn(cfg, "triage tag failed", t.ID, err)
			}
		}
	}

	return Result{Task: t, Analysis: a, IssueNum: number, IssueURL: url}
}

func logWarn(cfg Config, msg, taskID string, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(msg, "task", taskID, "error", err)
}

// needsInfo creates an issue carrying needs-info labels whose body ends
// with a list of the Analysis fields that were too weak to act on (no
// separate comment is posted on the created issue), per spec.md §4.2
// scenario 6: the source task is commented on with the issue URL but not
// moved or tagged.
func needsInfo(ctx context.Context, t Task, a issue.Analysis, cfg Config) Result {
	weak := a.WeakFields()
	body := formatIssueBody(a) + "\n\n---\nMissing or weak information:\n"
	for _, w := range weak {
		body += "- " + w + "\n"
	}

	number, url, err := cfg.Client.CreateIssue(ctx, vcs.CreateIssueParams{
		Title:  t.Name,
		Body:   body,
		Labels: cfg.NeedsInfoLabels,
	})
	result := Result{Task: t, Analysis: a, NeedsInfo: true}
	if err != nil {
		result.Err = err
		return result
	}
	result.IssueNum = number
	result.IssueURL = url

	// Per spec.md §4.2 scenario 6: comment with the issue URL, but do not
	// move the section or add the synced tag — the task stays actionable
	// for a human to fill in the missing detail.
	if cfg.Tracker != nil {
		if err := cfg.Tracker.CreateComment(ctx, t.ID, "Needs more information; tracked as "+url); err != nil {
			logWarn(cfg, "needs-info comment failed", t.ID, err)
		}
	}
	return result
}

func formatIssueBody(a issue.Analysis) string {
	var b strings.Builder
	b.WriteString(a.Summary)
	if a.Component != "" {
		fmt.Fprintf(&b, "\n\nComponent: %s\n", a.Component)
	}
	if len(a.RelatedFiles) > 0 {
		b.WriteString("\n## Related Files\n")
		for _, f := range a.RelatedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(a.AcceptanceCriteria) > 0 {
		b.WriteString("\n## Acceptance Criteria\n")
		for _, c := range a.AcceptanceCriteria {
			fmt.Fprintf(&b, "- [ ] %s\n", c)
		}
	}
	return b.String()
}

func toAnalysis(item batchItem) issue.Analysis {
	return issue.Analysis{
		IssueType:          issue.Type(item.IssueType),
		Priority:           issue.Priority(item.Priority),
		Labels:             item.Labels,
		Component:          item.Component,
		RelatedFiles:       item.RelatedFiles,
		Summary:            item.Summary,
		AcceptanceCriteria: item.AcceptanceCriteria,
		Confidence:         item.Confidence,
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// buildBatchPrompt constructs the single prompt sent for a batch of tasks,
// following medivac's buildTriagePrompt discipline: explicit schema,
// explicit rules, ask for raw JSON with no fences.
func buildBatchPrompt(tasks []Task) string {
	var b strings.Builder
	b.WriteString("You are a project-tracker task triage system. Analyze each task below and produce structured issue metadata.\n\n")
	b.WriteString("## Tasks\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "### Task %s\n", t.ID)
		fmt.Fprintf(&b, "Name: %s\n", t.Name)
		if t.SectionName != "" {
			fmt.Fprintf(&b, "Section: %s\n", t.SectionName)
		}
		fmt.Fprintf(&b, "Notes:\n%s\n\n", t.Notes)
	}

	b.WriteString("## Instructions\n\n")
	b.WriteString("Return a JSON array (no markdown fences, just raw JSON), one element per task, with these fields:\n\n")
	b.WriteString("```json\n")
	b.WriteString(`[{
  "task_id": "the task ID from above, copied exactly",
  "issue_type": "one of: bug, feature, refactor, docs, test, chore",
  "priority": "one of: critical, high, medium, low",
  "labels": ["suggested", "labels"],
  "component": "affected component or subsystem",
  "related_files": ["path/to/file.go"],
  "summary": "one paragraph describing the work",
  "acceptance_criteria": ["criterion one", "criterion two"],
  "confidence": 0.0
}]`)
	b.WriteString("\n```\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return ONLY the JSON array, no other text\n")
	b.WriteString("- Include every task_id exactly once\n")
	b.WriteString("- confidence reflects how actionable the task is as written: low confidence for vague tasks with no files, no criteria, or a one-line description\n")

	return b.String()
}

// parseBatchResponse strips markdown fences if present and decodes the JSON
// array, mirroring medivac's parseTriageResponse verbatim in spirit.
func parseBatchResponse(text string) ([]batchItem, error) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in triage response")
	}

	var items []batchItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("unmarshal triage JSON: %w", err)
	}
	return items, nil
}
