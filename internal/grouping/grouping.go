// Package grouping partitions issues into IssueGroups along a chosen
// dimension (component, file, label, type, or priority), honoring group
// size bounds. It is deterministic for a given input ordering: the same
// issue slice and parameters always produce the same groups, in the same
// order, modulo permutation within a bucket.
//
// Generalized from medivac/engine/grouping.go's TS-error-code and
// dependabot-package heuristics into the five dimensions spec.md names;
// that file's groupKey became one of several component heuristics here.
package grouping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/errs"
	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

// Params configures one grouping run.
type Params struct {
	GroupBy       issue.GroupBy
	MaxGroupSize  int
	MinGroupSize  int
	IncludeLabels []string
	ExcludeLabels []string
	BranchPrefix  string
	MaxBranchLen  int
}

// Result is the outcome of a grouping run.
type Result struct {
	Groups    []issue.Group
	Ungrouped []issue.Issue
}

const defaultMaxBranchLen = 72

// validate checks Params for internal consistency, independent of the issue
// list (boundary behaviors from spec.md §8).
func (p Params) validate() error {
	if p.MaxGroupSize < 1 || p.MinGroupSize < 1 {
		return errs.New(errs.CodeInvalidParams, "maxGroupSize and minGroupSize must be >= 1", nil)
	}
	if p.MinGroupSize > p.MaxGroupSize {
		return errs.New(errs.CodeInvalidGroupSize, "minGroupSize must be <= maxGroupSize", nil)
	}
	switch p.GroupBy {
	case issue.GroupByComponent, issue.GroupByFile, issue.GroupByLabel, issue.GroupByType, issue.GroupByPriority:
	default:
		return errs.New(errs.CodeInvalidParams, fmt.Sprintf("unknown groupBy %q", p.GroupBy), nil)
	}
	return nil
}

// Group partitions issues per Params, returning ordered groups plus the
// leftover ungrouped issues.
func Group(issues []issue.Issue, p Params) (*Result, error) {
	if len(issues) == 0 {
		return nil, errs.New(errs.CodeEmptyIssues, "no issues to group", nil)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.MaxBranchLen <= 0 {
		p.MaxBranchLen = defaultMaxBranchLen
	}
	if p.BranchPrefix == "" {
		p.BranchPrefix = "fix"
	}

	filtered := filterByLabels(issues, p.IncludeLabels, p.ExcludeLabels)
	if len(filtered) == 0 {
		return &Result{}, nil
	}

	buckets, order := bucket(filtered, p.GroupBy)

	var result Result
	usedBranches := make(map[string]bool)

	for _, key := range order {
		members := buckets[key]
		if len(members) < p.MinGroupSize {
			result.Ungrouped = append(result.Ungrouped, members...)
			continue
		}
		chunks := splitChunks(members, p.MaxGroupSize, p.MinGroupSize)
		multi := len(chunks) > 1
		for i, chunk := range chunks {
			if len(chunk) < p.MinGroupSize {
				result.Ungrouped = append(result.Ungrouped, chunk...)
				continue
			}
			g := buildGroup(chunk, p.GroupBy, key, p.BranchPrefix, p.MaxBranchLen, usedBranches, multi, i+1)
			usedBranches[g.BranchName] = true
			result.Groups = append(result.Groups, g)
		}
	}

	return &result, nil
}

// filterByLabels keeps issues matching the include/exclude label filters.
func filterByLabels(issues []issue.Issue, include, exclude []string) []issue.Issue {
	if len(include) == 0 && len(exclude) == 0 {
		return issues
	}
	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	var kept []issue.Issue
	for _, iss := range issues {
		if len(includeSet) > 0 && !anyLabelIn(iss.Labels, includeSet) {
			continue
		}
		if len(excludeSet) > 0 && anyLabelIn(iss.Labels, excludeSet) {
			continue
		}
		kept = append(kept, iss)
	}
	return kept
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func anyLabelIn(labels []string, set map[string]bool) bool {
	for _, l := range labels {
		if set[l] {
			return true
		}
	}
	return false
}

// bucket assigns each issue to a key under the chosen dimension, preserving
// first-seen key order for deterministic output.
func bucket(issues []issue.Issue, groupBy issue.GroupBy) (map[string][]issue.Issue, []string) {
	buckets := make(map[string][]issue.Issue)
	var order []string

	add := func(key string, iss issue.Issue) {
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], iss)
	}

	for _, iss := range issues {
		switch groupBy {
		case issue.GroupByFile:
			files := relatedFiles(iss)
			if len(files) == 0 {
				add("uncategorized", iss)
				continue
			}
			for _, f := range files {
				add(f, iss)
			}
		default:
			add(bucketKey(iss, groupBy), iss)
		}
	}
	return buckets, order
}

func bucketKey(iss issue.Issue, groupBy issue.GroupBy) string {
	switch groupBy {
	case issue.GroupByComponent:
		return componentKey(iss)
	case issue.GroupByLabel:
		return labelKey(iss)
	case issue.GroupByType:
		if iss.Type != "" {
			return string(iss.Type)
		}
		return "uncategorized"
	case issue.GroupByPriority:
		if iss.Context.Priority != "" {
			return string(iss.Context.Priority)
		}
		return "uncategorized"
	}
	return "uncategorized"
}

var (
	componentLabelRe = regexp.MustCompile(`^(?:component:|area/)(.+)$`)
	componentPathRe  = regexp.MustCompile(`(?:components|features)/([^/]+)/`)
	knownRoots       = map[string]bool{"utils": true, "lib": true, "internal": true, "pkg": true}
)

// componentKey derives a component bucket key: issue.context.component,
// then a component:*/area/* label, then a path heuristic over the first
// related file, else "uncategorized".
func componentKey(iss issue.Issue) string {
	if iss.Context.Component != "" {
		return iss.Context.Component
	}
	for _, label := range iss.Labels {
		if m := componentLabelRe.FindStringSubmatch(label); len(m) == 2 {
			return m[1]
		}
	}
	if len(iss.Context.RelatedFiles) > 0 {
		file := iss.Context.RelatedFiles[0]
		if m := componentPathRe.FindStringSubmatch(file); len(m) == 2 {
			return m[1]
		}
		if first := strings.SplitN(file, "/", 2)[0]; knownRoots[first] {
			return first
		}
	}
	return "uncategorized"
}

func labelKey(iss issue.Issue) string {
	if len(iss.Labels) > 0 {
		return iss.Labels[0]
	}
	return "uncategorized"
}

var codeFilePathRe = regexp.MustCompile(`` + "`" + `([\w./-]+\.\w+)` + "`" + ``)

// relatedFiles unions RelatedFiles with every backtick-quoted path found
// anywhere in the body; the search is not restricted to any section.
func relatedFiles(iss issue.Issue) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	for _, f := range iss.Context.RelatedFiles {
		add(f)
	}
	for _, m := range codeFilePathRe.FindAllStringSubmatch(iss.Body, -1) {
		add(m[1])
	}
	return files
}

// splitChunks splits members into consecutive chunks of exactly maxSize,
// except the last chunk which may be smaller; the caller is responsible
// for moving an under-sized last chunk to ungrouped.
func splitChunks(members []issue.Issue, maxSize, minSize int) [][]issue.Issue {
	if len(members) <= maxSize {
		return [][]issue.Issue{members}
	}
	var chunks [][]issue.Issue
	for i := 0; i < len(members); i += maxSize {
		end := i + maxSize
		if end > len(members) {
			end = len(members)
		}
		chunks = append(chunks, members[i:end])
	}
	_ = minSize // last chunk's size is checked by the caller
	return chunks
}

var nonBranchChar = regexp.MustCompile(`[^a-z0-9-]+`)
var dashRun = regexp.MustCompile(`-+`)

// buildGroup assembles an issue.Group from a bucket/chunk, deriving
// components, relatedFiles, priority, and a unique branch name.
func buildGroup(members []issue.Issue, groupBy issue.GroupBy, key, prefix string, maxLen int, used map[string]bool, multi bool, part int) issue.Group {
	sorted := append([]issue.Issue(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var components, files []string
	seenComp, seenFile := map[string]bool{}, map[string]bool{}
	var priority issue.Priority
	for _, iss := range sorted {
		if iss.Context.Component != "" && !seenComp[iss.Context.Component] {
			seenComp[iss.Context.Component] = true
			components = append(components, iss.Context.Component)
		}
		for _, f := range iss.Context.RelatedFiles {
			if !seenFile[f] {
				seenFile[f] = true
				files = append(files, f)
			}
		}
		priority = priority.Max(iss.Context.Priority)
	}

	identifier := sanitizeIdentifier(key)
	numbers := make([]int, len(sorted))
	for i, iss := range sorted {
		numbers[i] = iss.Number
	}
	branch := branchName(prefix, identifier, numbers, maxLen)
	if multi {
		branch = fmt.Sprintf("%s-part%d", branch, part)
	}
	branch = dedupeBranch(branch, used)

	name := fmt.Sprintf("%s: %s", groupBy, key)
	if multi {
		name = fmt.Sprintf("%s (part %d)", name, part)
	}

	return issue.Group{
		ID:           branch,
		Name:         name,
		GroupBy:      groupBy,
		Key:          key,
		Issues:       sorted,
		BranchName:   branch,
		RelatedFiles: files,
		Components:   components,
		Priority:     priority,
	}
}

func dedupeBranch(branch string, used map[string]bool) string {
	if !used[branch] {
		return branch
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", branch, n)
		if !used[candidate] {
			return candidate
		}
	}
}

// sanitizeIdentifier lowercases, replaces non-[a-z0-9-] runs with a single
// dash, collapses dash runs, and trims leading/trailing dashes.
func sanitizeIdentifier(s string) string {
	s = strings.ToLower(s)
	s = nonBranchChar.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// branchName builds "{prefix}/{identifier}/issue-{n1}-{n2}-...", truncated
// to maxLen by shortening the identifier while preserving the prefix and
// the issue-numbers suffix.
func branchName(prefix, identifier string, numbers []int, maxLen int) string {
	numParts := make([]string, len(numbers))
	for i, n := range numbers {
		numParts[i] = fmt.Sprintf("%d", n)
	}
	suffix := "issue-" + strings.Join(numParts, "-")
	fixed := fmt.Sprintf("%s//%s", prefix, suffix) // "/" x2 accounts for the identifier separator
	budget := maxLen - len(fixed)
	if budget < 1 {
		budget = 1
	}
	if len(identifier) > budget {
		identifier = identifier[:budget]
		identifier = strings.TrimRight(identifier, "-")
		if identifier == "" {
			identifier = "x"
		}
	}
	return fmt.Sprintf("%s/%s/%s", prefix, identifier, suffix)
}
