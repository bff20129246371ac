package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

// FixRequest describes one fix-generation turn.
type FixRequest struct {
	Group    issue.Group
	Analysis issue.Analysis

	// Retry fields, set on attempts after the first so the agent sees what
	// it previously tried and why checks rejected it.
	Attempt        int
	PreviousErrors []string // truncated check output from the prior attempt
}

// BuildFixPrompt assembles the fix turn's prompt. On retry it layers in the
// prior attempt's truncated failure output so the agent can correct course
// instead of repeating the same change.
func BuildFixPrompt(req FixRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement a fix for the following group of issues (branch %s).\n\n", req.Group.BranchName)
	fmt.Fprintf(&b, "Summary: %s\n", req.Analysis.Summary)
	if req.Analysis.Component != "" {
		fmt.Fprintf(&b, "Component: %s\n", req.Analysis.Component)
	}
	if len(req.Analysis.RelatedFiles) > 0 {
		fmt.Fprintf(&b, "Related files: %s\n", strings.Join(req.Analysis.RelatedFiles, ", "))
	}
	b.WriteString("\nIssues:\n")
	for _, iss := range req.Group.Issues {
		fmt.Fprintf(&b, "- #%d %s\n%s\n", iss.Number, iss.Title, iss.Body)
		if len(iss.AcceptanceCriteria) > 0 {
			b.WriteString("  Acceptance criteria:\n")
			for _, ac := range iss.AcceptanceCriteria {
				fmt.Fprintf(&b, "  - %s\n", ac)
			}
		}
	}

	if req.Attempt > 1 {
		fmt.Fprintf(&b, "\nThis is attempt %d. The previous attempt failed checks with:\n", req.Attempt)
		for _, e := range req.PreviousErrors {
			fmt.Fprintf(&b, "```\n%s\n```\n", truncate(e, 4000))
		}
		b.WriteString("Fix the underlying problem rather than only silencing the check output.\n")
	}

	b.WriteString("\nMake the minimal set of code changes needed, then stop.\n")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}

// Fix runs a fix-generation turn against the given provider.
func Fix(ctx context.Context, p Provider, req FixRequest, opts ...ExecuteOption) (*Result, error) {
	return p.Execute(ctx, BuildFixPrompt(req), opts...)
}
