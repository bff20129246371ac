package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

func buttonIssues(n int) []issue.Issue {
	issues := make([]issue.Issue, n)
	for i := 0; i < n; i++ {
		issues[i] = issue.Issue{
			Number:  i + 1,
			Context: issue.Context{Component: "Button"},
		}
	}
	return issues
}

func TestGroup_SplitsOversizedBucket(t *testing.T) {
	result, err := Group(buttonIssues(8), Params{
		GroupBy:      issue.GroupByComponent,
		MaxGroupSize: 3,
		MinGroupSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 3)

	assert.Equal(t, []int{1, 2, 3}, result.Groups[0].IssueNumbers())
	assert.Equal(t, []int{4, 5, 6}, result.Groups[1].IssueNumbers())
	assert.Equal(t, []int{7, 8}, result.Groups[2].IssueNumbers())

	assert.Equal(t, "fix/button/issue-1-2-3-part1", result.Groups[0].BranchName)
	assert.Equal(t, "fix/button/issue-4-5-6-part2", result.Groups[1].BranchName)
	assert.Equal(t, "fix/button/issue-7-8-part3", result.Groups[2].BranchName)
}

func TestGroup_EmptyIssues(t *testing.T) {
	_, err := Group(nil, Params{GroupBy: issue.GroupByComponent, MaxGroupSize: 1, MinGroupSize: 1})
	require.Error(t, err)
	assert.Equal(t, errs.CodeEmptyIssues, errs.CodeOf(err))
}

func TestGroup_InvalidGroupSize(t *testing.T) {
	issues := buttonIssues(1)
	_, err := Group(issues, Params{GroupBy: issue.GroupByComponent, MaxGroupSize: 1, MinGroupSize: 5})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidGroupSize, errs.CodeOf(err))
}

func TestGroup_BelowMinGoesToUngrouped(t *testing.T) {
	issues := []issue.Issue{
		{Number: 1, Context: issue.Context{Component: "a"}},
		{Number: 2, Context: issue.Context{Component: "b"}},
		{Number: 3, Context: issue.Context{Component: "b"}},
	}
	result, err := Group(issues, Params{GroupBy: issue.GroupByComponent, MaxGroupSize: 5, MinGroupSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, []int{2, 3}, result.Groups[0].IssueNumbers())
	require.Len(t, result.Ungrouped, 1)
	assert.Equal(t, 1, result.Ungrouped[0].Number)
}

func TestGroup_BranchNamesUniqueWithinRun(t *testing.T) {
	issues := []issue.Issue{
		{Number: 1, Context: issue.Context{Component: "a/b"}},
		{Number: 2, Context: issue.Context{Component: "a_b"}},
	}
	result, err := Group(issues, Params{GroupBy: issue.GroupByComponent, MaxGroupSize: 5, MinGroupSize: 1})
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)
	assert.NotEqual(t, result.Groups[0].BranchName, result.Groups[1].BranchName)
	for _, g := range result.Groups {
		assert.Regexp(t, `^[a-z0-9/_-]+$`, g.BranchName)
	}
}

func TestGroup_GroupByFilePutsIssueInEachBucket(t *testing.T) {
	issues := []issue.Issue{
		{Number: 1, Context: issue.Context{RelatedFiles: []string{"a.go", "b.go"}}},
		{Number: 2, Context: issue.Context{RelatedFiles: []string{"b.go"}}},
	}
	result, err := Group(issues, Params{GroupBy: issue.GroupByFile, MaxGroupSize: 5, MinGroupSize: 1})
	require.NoError(t, err)
	total := 0
	for _, g := range result.Groups {
		total += len(g.Issues)
	}
	assert.Equal(t, 3, total) // issue 1 appears under both a.go and b.go
}
