package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/vcs"
)

func TestFromGitHub_DerivesTypeAndPriorityFromLabels(t *testing.T) {
	detail := &vcs.IssueDetail{
		Number: 42,
		Title:  "crash on null pointer",
		Body: "## Acceptance Criteria\n- [ ] handle nil input\n- [x] add regression test\n\n" +
			"## Related Files\napi/handler.go\n",
		State:     "open",
		Labels:    []string{"bug", "priority:high"},
		Assignees: []string{"octocat"},
		URL:       "https://github.com/acme/widgets/issues/42",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	iss := FromGitHub(detail)

	assert.Equal(t, 42, iss.Number)
	assert.Equal(t, issue.StateOpen, iss.State)
	assert.Equal(t, issue.TypeBug, iss.Type)
	assert.Equal(t, issue.PriorityHigh, iss.Context.Priority)
	assert.Equal(t, issue.SourceGitHub, iss.Context.Source)
	assert.Equal(t, "42", iss.Context.SourceID)
	require.Len(t, iss.AcceptanceCriteria, 2)
	assert.Contains(t, iss.AcceptanceCriteria, "handle nil input")
}

func TestFromGitHub_DefaultsTypeAndPriorityWhenNoLabelsMatch(t *testing.T) {
	detail := &vcs.IssueDetail{Number: 7, Title: "investigate slow query", State: "closed"}

	iss := FromGitHub(detail)

	assert.Equal(t, issue.StateClosed, iss.State)
	assert.Equal(t, issue.TypeBug, iss.Type)
	assert.Equal(t, issue.PriorityMedium, iss.Context.Priority)
}
