package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

func TestParse_TaskListAcceptanceCriteria(t *testing.T) {
	body := "# Bug\n\n## Acceptance Criteria\n- [x] Login succeeds with valid token\n- [ ] Error shown on expired token\n"
	p := Parse(body)
	if assert.Len(t, p.AcceptanceCriteria, 2) {
		assert.True(t, p.AcceptanceCriteria[0].Done)
		assert.Equal(t, "Login succeeds with valid token", p.AcceptanceCriteria[0].Text)
		assert.False(t, p.AcceptanceCriteria[1].Done)
	}
}

func TestParse_NumberedListFallsBackWhenNoTaskList(t *testing.T) {
	body := "## Done Criteria\n1. Request returns 200\n2. Response includes the new field\n"
	p := Parse(body)
	if assert.Len(t, p.AcceptanceCriteria, 2) {
		assert.Equal(t, "Request returns 200", p.AcceptanceCriteria[0].Text)
	}
}

func TestParse_GWTBlockSplitsOnGiven(t *testing.T) {
	body := "## Acceptance Criteria\nGiven a logged-in user\nWhen they click save\nThen the form submits\n\nGiven an anonymous user\nWhen they click save\nThen they are redirected to login\n"
	p := Parse(body)
	if assert.Len(t, p.AcceptanceCriteria, 2) {
		assert.Contains(t, p.AcceptanceCriteria[0].GWTScenario, "Given a logged-in user")
	}
}

func TestParse_ContextKeyValuesAndPriorityLabel(t *testing.T) {
	body := "Component: auth-service\nPriority: [critical]\nSee `internal/auth/token.go` for the relevant code.\n"
	p := Parse(body)
	assert.Equal(t, "auth-service", p.Context.Component)
	assert.Equal(t, issue.PriorityCritical, p.Context.Priority)
	assert.Contains(t, p.Context.RelatedFiles, "internal/auth/token.go")
}

func TestParse_EmptyBodyYieldsEmptyResultNoError(t *testing.T) {
	p := Parse("")
	assert.Empty(t, p.AcceptanceCriteria)
	assert.Empty(t, p.Context.RelatedFiles)
}

func TestParse_SymbolExtractionFiltersKeywords(t *testing.T) {
	body := "## Related Symbols\n`ParseToken` is called from `handleLogin()`. The `if` keyword is not a symbol.\n"
	p := Parse(body)
	assert.Contains(t, p.Context.RelatedSymbols, "ParseToken")
	assert.NotContains(t, p.Context.RelatedSymbols, "if")
}
