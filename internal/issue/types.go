// Package issue defines the Issue and IssueGroup value types shared by the
// triage processor, grouping engine, and orchestrator. Issues are immutable
// after construction; every transformation returns a new value.
package issue

import "time"

// State is the open/closed lifecycle of an issue on the host tracker.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Type classifies the kind of work an issue represents.
type Type string

const (
	TypeBug      Type = "bug"
	TypeFeature  Type = "feature"
	TypeRefactor Type = "refactor"
	TypeDocs     Type = "docs"
	TypeTest     Type = "test"
	TypeChore    Type = "chore"
)

// Priority is a total order: Critical > High > Medium > Low.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank gives Priority a total order for max-of-group computation.
// Unknown priorities rank below Low so they never silently win a max.
var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Rank returns p's position in the total order, lowest-first.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return -1
}

// Max returns the higher-ranked of p and other.
func (p Priority) Max(other Priority) Priority {
	if other.Rank() > p.Rank() {
		return other
	}
	return p
}

// Source identifies where an issue's context information originated.
type Source string

const (
	SourceGitHub Source = "github"
	SourceAsana  Source = "asana"
	SourceSentry Source = "sentry"
)

// Context holds the enrichment data attached to an issue, derived either by
// the issue parser (from a markdown body) or by the triage processor's AI
// classification.
type Context struct {
	Component     string   `json:"component"`
	Priority      Priority `json:"priority"`
	RelatedFiles  []string `json:"relatedFiles"`
	RelatedSymbols []string `json:"relatedSymbols"`
	Source        Source   `json:"source"`
	SourceID      string   `json:"sourceId,omitempty"`
	SourceURL     string   `json:"sourceUrl,omitempty"`
}

// Issue is an immutable value created either by triage or by fetching from
// the issue tracker. No method mutates an Issue in place.
type Issue struct {
	Number             int       `json:"number"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	State              State     `json:"state"`
	Type               Type      `json:"type"`
	Labels             []string  `json:"labels"`
	Assignees          []string  `json:"assignees"`
	Context            Context   `json:"context"`
	AcceptanceCriteria []string  `json:"acceptanceCriteria"`
	RelatedIssues      []int     `json:"relatedIssues"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	URL                string    `json:"url"`
}

// HasLabel reports whether label is present among the issue's labels.
func (i Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// WithContext returns a copy of i with its Context replaced; Issue values
// are never mutated in place.
func (i Issue) WithContext(c Context) Issue {
	i.Context = c
	return i
}

// GroupBy names the dimension the grouping engine partitions issues by.
type GroupBy string

const (
	GroupByComponent GroupBy = "component"
	GroupByFile      GroupBy = "file"
	GroupByLabel     GroupBy = "label"
	GroupByType      GroupBy = "type"
	GroupByPriority  GroupBy = "priority"
)

// Group is a set of issues the orchestrator processes as one unit,
// producing at most one pull request. Immutable once produced by the
// grouping engine.
type Group struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	GroupBy      GroupBy  `json:"groupBy"`
	Key          string   `json:"key"`
	Issues       []Issue  `json:"issues"`
	BranchName   string   `json:"branchName"`
	RelatedFiles []string `json:"relatedFiles"`
	Components   []string `json:"components"`
	Priority     Priority `json:"priority"`
}

// IssueNumbers returns the group's issue numbers in ascending order (the
// order they were assembled in by the grouping engine).
func (g Group) IssueNumbers() []int {
	nums := make([]int, len(g.Issues))
	for i, iss := range g.Issues {
		nums[i] = iss.Number
	}
	return nums
}
