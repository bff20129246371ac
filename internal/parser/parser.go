// Package parser extracts structured context from a markdown issue body: its
// recognized sections, acceptance criteria, and free-form context
// key-value/priority/file-path/symbol hints. No direct teacher analog exists
// in the example pack (there is no markdown-AST dependency anywhere in it),
// so this follows the corpus's consistent ad hoc text-parsing idiom — a
// bufio.Scanner line walk, as in fixer/github/parser.go's regex-based log
// scraping — rather than reaching for a third-party markdown library.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/JakeB-5/auto-fix-workflow-sub003/internal/issue"
)

// Criterion is one parsed acceptance-criteria line.
type Criterion struct {
	Text       string
	Done       bool
	GWTScenario string // non-empty when this criterion was split out of a GIVEN/WHEN/THEN block
}

// Parsed holds everything the parser extracted from a markdown body.
type Parsed struct {
	Sections           map[string]string
	AcceptanceCriteria []Criterion
	Context            issue.Context
}

var sectionAliases = map[string]string{
	"acceptance criteria": "acceptance criteria",
	"done criteria":       "acceptance criteria",
	"context":             "context",
	"related files":       "related files",
	"files":               "related files",
	"related symbols":     "related symbols",
	"code analysis":       "related symbols",
}

var sectionHeaderRe = regexp.MustCompile(`^#{1,6}\s*(.+?)\s*:?\s*$`)

// Parse extracts structured fields from body. It is deterministic and does
// no I/O; missing structure yields empty results, never an error.
func Parse(body string) Parsed {
	sections := splitSections(body)

	result := Parsed{Sections: sections}
	result.AcceptanceCriteria = extractAcceptanceCriteria(firstNonEmptySection(sections, "acceptance criteria", body))
	result.Context = extractContext(body, sections)
	return result
}

// splitSections walks body line by line, recognizing markdown `#` headers
// (an optional trailing `:` is ignored) that alias onto one of the known
// section names, and collecting the text until the next header. A line
// without a leading `#` is never treated as a header.
func splitSections(body string) map[string]string {
	sections := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	current := ""
	var buf strings.Builder

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := matchSectionHeader(line); ok {
			flush()
			current = name
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return sections
}

func matchSectionHeader(line string) (string, bool) {
	m := sectionHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	candidate := strings.ToLower(strings.TrimSpace(m[1]))
	if canonical, ok := sectionAliases[candidate]; ok {
		return canonical, true
	}
	return "", false
}

func firstNonEmptySection(sections map[string]string, name, fallback string) string {
	if s, ok := sections[name]; ok && s != "" {
		return s
	}
	return fallback
}

var (
	taskListRe = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s*(.+)$`)
	numberedRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)
	bulletRe   = regexp.MustCompile(`^\s*[-*]\s+(.+)$`)
)

// extractAcceptanceCriteria tries, in order: task-list items, numbered
// list, bullet list, GIVEN/WHEN/THEN blocks, then significant-looking
// fallback lines, per spec.md §4.5.
func extractAcceptanceCriteria(section string) []Criterion {
	if section == "" {
		return nil
	}

	if items := matchAll(section, taskListRe, func(m []string) Criterion {
		return Criterion{Text: strings.TrimSpace(m[2]), Done: strings.EqualFold(m[1], "x")}
	}); len(items) > 0 {
		return items
	}

	if items := matchAll(section, numberedRe, func(m []string) Criterion {
		return Criterion{Text: strings.TrimSpace(m[1])}
	}); len(items) > 0 {
		return items
	}

	if items := matchAll(section, bulletRe, func(m []string) Criterion {
		return Criterion{Text: strings.TrimSpace(m[1])}
	}); len(items) > 0 {
		return items
	}

	if items := extractGWT(section); len(items) > 0 {
		return items
	}

	return fallbackLines(section)
}

func matchAll(section string, re *regexp.Regexp, build func([]string) Criterion) []Criterion {
	var out []Criterion
	scanner := bufio.NewScanner(strings.NewReader(section))
	for scanner.Scan() {
		line := scanner.Text()
		if m := re.FindStringSubmatch(line); m != nil {
			out = append(out, build(m))
		}
	}
	return out
}

var gwtSplitRe = regexp.MustCompile(`(?i)\bgiven\b`)

func extractGWT(section string) []Criterion {
	parts := gwtSplitRe.Split(section, -1)
	var out []Criterion
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, Criterion{
			Text:        firstLine(p),
			GWTScenario: "Given " + p,
		})
	}
	return out
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// fallbackLines keeps non-blank lines of reasonable length as a best-effort
// result when no recognized list structure exists.
func fallbackLines(section string) []Criterion {
	var out []Criterion
	scanner := bufio.NewScanner(strings.NewReader(section))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) >= 8 {
			out = append(out, Criterion{Text: line})
		}
	}
	return out
}

var contextKeyRe = regexp.MustCompile(`(?im)^\s*(component|service|environment|priority)\s*:\s*(.+)$`)

var priorityPatternRe = regexp.MustCompile(`(?i)\[(critical|high|medium|low)\]|\bp0\b|\burgent\b`)

var codeFilePathRe = regexp.MustCompile("`?([\\w./-]+\\.(?:ts|tsx|js|jsx|py|go|rs|java|rb|php|c|cpp|h|hpp))`?")

var symbolRe = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*)`|\\b([A-Z][A-Za-z0-9_]*)\\s*\\(|\\bclass\\s+([A-Za-z_][A-Za-z0-9_]*)|\\bfunc\\s+([A-Za-z_][A-Za-z0-9_]*)")

var keywordStopList = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"func": true, "class": true, "def": true, "import": true, "package": true,
	"const": true, "var": true, "let": true, "new": true, "this": true,
}

// extractContext pulls key-value pairs and priority label patterns out of
// the whole body, and file paths and symbol names out of the "related
// files" and "related symbols" sections, falling back to the whole body
// when the section is absent or empty.
func extractContext(body string, sections map[string]string) issue.Context {
	ctx := issue.Context{}

	for _, m := range contextKeyRe.FindAllStringSubmatch(body, -1) {
		key := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		switch key {
		case "component", "service":
			if ctx.Component == "" {
				ctx.Component = value
			}
		case "priority":
			if ctx.Priority == "" {
				ctx.Priority = normalizePriorityText(value)
			}
		}
	}

	if ctx.Priority == "" {
		if m := priorityPatternRe.FindStringSubmatch(body); m != nil {
			ctx.Priority = normalizePriorityMatch(m)
		}
	}

	filesSection := firstNonEmptySection(sections, "related files", body)
	ctx.RelatedFiles = dedupeStrings(extractFilePaths(filesSection))

	symbolsSection := firstNonEmptySection(sections, "related symbols", body)
	ctx.RelatedSymbols = dedupeStrings(extractSymbols(symbolsSection))

	return ctx
}

func normalizePriorityMatch(m []string) issue.Priority {
	return normalizePriorityText(m[0])
}

func normalizePriorityText(text string) issue.Priority {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "p0") || strings.Contains(text, "urgent") || strings.Contains(text, "critical"):
		return issue.PriorityCritical
	case strings.Contains(text, "high"):
		return issue.PriorityHigh
	case strings.Contains(text, "medium"):
		return issue.PriorityMedium
	case strings.Contains(text, "low"):
		return issue.PriorityLow
	}
	return ""
}

func extractFilePaths(text string) []string {
	var out []string
	for _, m := range codeFilePathRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func extractSymbols(text string) []string {
	var out []string
	for _, m := range symbolRe.FindAllStringSubmatch(text, -1) {
		for _, candidate := range m[1:] {
			if candidate == "" {
				continue
			}
			if keywordStopList[strings.ToLower(candidate)] {
				continue
			}
			out = append(out, candidate)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
