package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

type fakeCLIRunner struct {
	stdout string
	err    error
}

func (f fakeCLIRunner) Run(ctx context.Context, command string, args []string, dir string, stdin string) (string, error) {
	return f.stdout, f.err
}

func TestCLIProvider_Execute_ParsesFinalResultLine(t *testing.T) {
	p := &CLIProvider{Command: "claude", Runner: fakeCLIRunner{stdout: "" +
		`{"type":"system","subtype":"init"}` + "\n" +
		`{"type":"result","result":"done here","total_cost_usd":0.42}` + "\n",
	}}

	result, err := p.Execute(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "done here", result.Text)
	assert.Equal(t, 0.42, result.CostUSD)
	assert.True(t, result.Success)
}

func TestParseAnalysisResponse_ExtractsFromSurroundingProse(t *testing.T) {
	raw := "Here is my analysis:\n```json\n" +
		`{"issue_type":"bug","priority":"high","component":"auth","summary":"token refresh race","confidence":0.8,"labels":["bug","auth"],"related_files":["auth/token.go"]}` +
		"\n```\nLet me know if you need more."

	a, err := ParseAnalysisResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, issue.TypeBug, a.IssueType)
	assert.Equal(t, issue.PriorityHigh, a.Priority)
	assert.Equal(t, "auth", a.Component)
	assert.ElementsMatch(t, []string{"bug", "auth"}, a.Labels)
	assert.ElementsMatch(t, []string{"auth/token.go"}, a.RelatedFiles)
}

func TestBuildFixPrompt_IncludesPriorFailureOnRetry(t *testing.T) {
	req := FixRequest{
		Group:          issue.Group{BranchName: "fix/auth/issue-1"},
		Analysis:       issue.Analysis{Summary: "token refresh race"},
		Attempt:        2,
		PreviousErrors: []string{"FAIL auth/token_test.go:12"},
	}
	prompt := BuildFixPrompt(req)
	assert.Contains(t, prompt, "attempt 2")
	assert.Contains(t, prompt, "FAIL auth/token_test.go:12")
}
