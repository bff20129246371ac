// Package ingest converts raw tracker representations (vcs.IssueDetail) into
// the domain issue.Issue value the grouping engine and orchestrator operate
// on, running the body through internal/parser for acceptance criteria and
// context extraction. This mirrors the triage processor's own construction
// of issue.Issue from an AI analysis record (internal/triage.resolve), but
// for issues ingested directly off GitHub rather than classified from an
// Asana task.
package ingest

import (
	"strconv"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/parser"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
)

// typeLabels maps a recognized GitHub label onto an issue.Type, in priority
// order: the first matching label wins. GitHub repos conventionally carry a
// label per issue.Type (bug, feature, refactor, docs, test, chore), so no
// AI classification step is needed for tracker-native issues.
var typeLabels = []struct {
	label string
	typ   issue.Type
}{
	{"bug", issue.TypeBug},
	{"feature", issue.TypeFeature},
	{"enhancement", issue.TypeFeature},
	{"refactor", issue.TypeRefactor},
	{"docs", issue.TypeDocs},
	{"documentation", issue.TypeDocs},
	{"test", issue.TypeTest},
	{"chore", issue.TypeChore},
}

// priorityLabels maps a recognized GitHub label onto an issue.Priority, in
// priority order: the first matching label wins. Used only as a fallback
// when the parsed body carries no explicit priority hint.
var priorityLabels = []struct {
	label    string
	priority issue.Priority
}{
	{"priority:critical", issue.PriorityCritical},
	{"critical", issue.PriorityCritical},
	{"priority:high", issue.PriorityHigh},
	{"priority:medium", issue.PriorityMedium},
	{"priority:low", issue.PriorityLow},
}

// FromGitHub builds an issue.Issue from a fetched IssueDetail, deriving
// Type and Context.Priority from labels when the parsed body doesn't supply
// them, and Context.Component/RelatedFiles/RelatedSymbols/AcceptanceCriteria
// from parser.Parse's walk of the body.
func FromGitHub(detail *vcs.IssueDetail) issue.Issue {
	parsed := parser.Parse(detail.Body)

	ctx := parsed.Context
	ctx.Source = issue.SourceGitHub
	ctx.SourceID = strconv.Itoa(detail.Number)
	ctx.SourceURL = detail.URL
	if ctx.Priority == "" {
		ctx.Priority = priorityFromLabels(detail.Labels)
	}

	criteria := make([]string, len(parsed.AcceptanceCriteria))
	for i, c := range parsed.AcceptanceCriteria {
		criteria[i] = c.Text
	}

	return issue.Issue{
		Number:             detail.Number,
		Title:              detail.Title,
		Body:               detail.Body,
		State:              stateFromString(detail.State),
		Type:               typeFromLabels(detail.Labels),
		Labels:             detail.Labels,
		Assignees:          detail.Assignees,
		Context:            ctx,
		AcceptanceCriteria: criteria,
		CreatedAt:          detail.CreatedAt,
		UpdatedAt:          detail.UpdatedAt,
		URL:                detail.URL,
	}
}

func stateFromString(s string) issue.State {
	if strings.EqualFold(s, "closed") {
		return issue.StateClosed
	}
	return issue.StateOpen
}

// typeFromLabels returns the first type a label matches, defaulting to
// TypeBug when nothing matches — the most common autofix-candidate shape.
func typeFromLabels(labels []string) issue.Type {
	for _, tl := range typeLabels {
		for _, l := range labels {
			if strings.EqualFold(l, tl.label) {
				return tl.typ
			}
		}
	}
	return issue.TypeBug
}

func priorityFromLabels(labels []string) issue.Priority {
	for _, pl := range priorityLabels {
		for _, l := range labels {
			if strings.EqualFold(l, pl.label) {
				return pl.priority
			}
		}
	}
	return issue.PriorityMedium
}
