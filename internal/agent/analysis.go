package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/invopop/jsonschema"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

// AnalysisRequest describes what the analysis prompt should study.
type AnalysisRequest struct {
	Group issue.Group
}

// analysisSchemaShape mirrors issue.Analysis, tagged for invopop/jsonschema
// so the generated JSON schema can be embedded in the prompt. Responses are
// not validated against it: ParseAnalysisResponse only requires issue_type
// and priority to be present.
type analysisSchemaShape struct {
	IssueType          string   `json:"issue_type" jsonschema:"required,enum=bug,enum=feature,enum=refactor,enum=docs,enum=test,enum=chore"`
	Priority           string   `json:"priority" jsonschema:"required,enum=critical,enum=high,enum=medium,enum=low"`
	Labels             []string `json:"labels,omitempty" jsonschema:"description=Suggested labels"`
	Component          string   `json:"component" jsonschema:"required,description=Affected component or subsystem"`
	RelatedFiles       []string `json:"related_files,omitempty" jsonschema:"description=File paths likely implicated"`
	Summary            string   `json:"summary" jsonschema:"required,description=One paragraph describing the root cause"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Confidence         float64  `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
}

var analysisSchemaJSON = func() string {
	schema := jsonschema.Reflect(&analysisSchemaShape{})
	data, err := schema.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}()

// BuildAnalysisPrompt assembles the analysis turn's prompt: the grouped
// issues' content plus the required JSON response schema.
func BuildAnalysisPrompt(req AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("You are triaging a group of related issues before a fix is attempted.\n")
	b.WriteString("Analyze the following issues and respond with ONLY a JSON object matching this schema:\n")
	b.WriteString(analysisSchemaJSON)
	b.WriteString("\n\nIssues:\n")
	for _, iss := range req.Group.Issues {
		fmt.Fprintf(&b, "- #%d %s\n%s\n", iss.Number, iss.Title, iss.Body)
	}
	return b.String()
}

// ParseAnalysisResponse extracts the analysis fields from the agent's raw
// text response using jsonparser, tolerating extra prose around the JSON
// object the way a real agent response sometimes includes it.
func ParseAnalysisResponse(raw string) (issue.Analysis, error) {
	data := []byte(extractJSONObject(raw))

	var a issue.Analysis
	issueType, err := jsonparser.GetString(data, "issue_type")
	if err != nil {
		return a, errs.New(errs.CodeAIAnalysisFailed, "missing issue_type in analysis response", err)
	}
	a.IssueType = issue.Type(issueType)

	priority, err := jsonparser.GetString(data, "priority")
	if err != nil {
		return a, errs.New(errs.CodeAIAnalysisFailed, "missing priority in analysis response", err)
	}
	a.Priority = issue.Priority(priority)

	a.Component, _ = jsonparser.GetString(data, "component")
	a.Summary, _ = jsonparser.GetString(data, "summary")
	a.Confidence, _ = jsonparser.GetFloat(data, "confidence")

	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		a.Labels = append(a.Labels, string(value))
	}, "labels")
	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		a.RelatedFiles = append(a.RelatedFiles, string(value))
	}, "related_files")
	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		a.AcceptanceCriteria = append(a.AcceptanceCriteria, string(value))
	}, "acceptance_criteria")

	return a, nil
}

func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// Analyze runs the analysis turn against the given provider and returns the
// parsed result.
func Analyze(ctx context.Context, p Provider, req AnalysisRequest, opts ...ExecuteOption) (issue.Analysis, error) {
	result, err := p.Execute(ctx, BuildAnalysisPrompt(req), opts...)
	if err != nil {
		return issue.Analysis{}, err
	}
	return ParseAnalysisResponse(result.Text)
}
