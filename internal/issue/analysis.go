package issue

import "strings"

// Analysis is the AI classification record produced by the triage
// processor for one external task. Confidence below the configured
// threshold routes the task down the needs-info branch instead of autofix.
type Analysis struct {
	IssueType          Type     `json:"issueType"`
	Priority           Priority `json:"priority"`
	Labels             []string `json:"labels"`
	Component          string   `json:"component"`
	RelatedFiles       []string `json:"relatedFiles"`
	Summary            string   `json:"summary"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	Confidence         float64  `json:"confidence"`
}

// WeakFields reports which categories of an Analysis are empty or thin,
// used to populate the needs-info comment listing what's missing.
// Mirrors medivac's triage category-classification detail level, adapted
// from CI-failure categories to task-analysis completeness categories.
func (a Analysis) WeakFields() []string {
	var weak []string
	if len(a.RelatedFiles) == 0 {
		weak = append(weak, "missing related files")
	}
	if len(a.AcceptanceCriteria) == 0 {
		weak = append(weak, "missing acceptance criteria")
	}
	if len(a.Summary) < 40 {
		weak = append(weak, "thin summary")
	}
	if a.Component == "" || a.Component == "uncategorized" {
		weak = append(weak, "generic component")
	}
	if a.IssueType == TypeBug && !hasReproSteps(a.Summary) {
		weak = append(weak, "missing repro steps")
	}
	return weak
}

// hasReproSteps is a cheap heuristic: bug summaries that describe
// reproduction usually mention "step", "reproduce", or "repro".
func hasReproSteps(summary string) bool {
	lower := strings.ToLower(summary)
	for _, kw := range []string{"step", "reproduce", "repro"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
