package vcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
)

type fakeRunner struct {
	stdout, stderr string
	err            error
}

func (f fakeRunner) Run(ctx context.Context, args []string, dir string) (string, string, error) {
	return f.stdout, f.stderr, f.err
}

func TestGHCLIClient_CreatePR_AlreadyExistsResolvesToExisting(t *testing.T) {
	calls := 0
	client := &GHCLIClient{Runner: stepRunner{steps: []fakeRunner{
		{stderr: "a pull request for branch \"fix/x\" already exists", err: assertErr{}},
		{stdout: `{"number":7,"url":"https://x/7","headRefName":"fix/x","baseRefName":"main","state":"OPEN"}`},
	}, calls: &calls}}

	pr, err := client.CreatePR(context.Background(), CreatePRParams{Head: "fix/x", Base: "main"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
}

type stepRunner struct {
	steps []fakeRunner
	calls *int
}

func (s stepRunner) Run(ctx context.Context, args []string, dir string) (string, string, error) {
	i := *s.calls
	*s.calls++
	step := s.steps[i]
	return step.Run(ctx, args, dir)
}

type assertErr struct{}

func (assertErr) Error() string { return "exit status 1" }

func TestClassifyGHError(t *testing.T) {
	cases := []struct {
		stderr string
		want   errs.Code
	}{
		{"already exists", errs.CodeAlreadyExists},
		{"HTTP 404: Not Found", errs.CodeNotFound},
		{"API rate limit exceeded", errs.CodeRateLimited},
		{"authentication required", errs.CodeAuthFailed},
		{"Validation Failed", errs.CodeValidationFail},
		{"could not resolve host", errs.CodeNetworkError},
		{"something else", errs.CodeAPIError},
	}
	for _, tc := range cases {
		err := classifyGHError(assertErr{}, tc.stderr)
		assert.Equal(t, tc.want, errs.CodeOf(err), tc.stderr)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   errs.Code
	}{
		{401, "", errs.CodeAuthFailed},
		{403, "API rate limit exceeded", errs.CodeRateLimited},
		{403, "forbidden", errs.CodeAuthFailed},
		{404, "", errs.CodeNotFound},
		{422, "already exists", errs.CodeAlreadyExists},
		{422, "validation failed", errs.CodeValidationFail},
		{500, "", errs.CodeAPIError},
		{418, "", errs.CodeUnknown},
	}
	for _, tc := range cases {
		err := classifyHTTPStatus(tc.status, tc.body)
		assert.Equal(t, tc.want, errs.CodeOf(err))
	}
}
