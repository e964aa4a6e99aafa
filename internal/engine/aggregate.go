package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/coffersTech/nanorule/internal/logline"
)

const (
	// DefaultContextLines is the number of lines shown on each side of a hit.
	DefaultContextLines = 2

	maxPreviews     = 5
	maxPreviewBytes = 120
	contextSep      = "\n...\n"
)

// BuildIssue folds the matches of one rule into an Issue. DSL rules and
// rules with several matches are merged into a single summary issue; a
// legacy rule with one match reports that match directly. It returns false
// when there are no matches.
func BuildIssue(rule Rule, matches []Match, c *Content, contextLines int) (Issue, bool) {
	if len(matches) == 0 {
		return Issue{}, false
	}
	if contextLines < 0 {
		contextLines = 0
	}

	issue := Issue{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Description: rule.Description,
		Severity:    rule.Severity(),
	}

	if !rule.IsDSL() && len(matches) == 1 {
		m := matches[0]
		line := c.LineOf(m.Start)
		issue.LineNumber = line
		issue.MatchedText = m.Text
		issue.Context = strings.Join(c.Window(line, contextLines), "\n")
		annotate(&issue, c)
		return issue, true
	}

	minLine := 0
	previews := make([]string, 0, maxPreviews)
	windows := make([]string, 0, len(matches))
	for _, m := range matches {
		line := c.LineOf(m.Start)
		if minLine == 0 || line < minLine {
			minLine = line
		}
		if len(previews) < maxPreviews {
			previews = append(previews, preview(m.Text))
		}
		windows = append(windows, strings.Join(c.Window(line, contextLines), "\n"))
	}

	summary := strings.Join(previews, " | ")
	if len(matches) > maxPreviews {
		summary += fmt.Sprintf(" | ... (%d more)", len(matches)-maxPreviews)
	}

	issue.LineNumber = minLine
	issue.MatchedText = fmt.Sprintf("%d %s: %s", len(matches), plural(len(matches)), summary)
	issue.Context = strings.Join(windows, contextSep)
	issue.MatchCount = len(matches)
	annotate(&issue, c)
	return issue, true
}

// annotate copies the level and timestamp of the issue's line.
func annotate(issue *Issue, c *Content) {
	if issue.LineNumber < 1 || issue.LineNumber > len(c.Lines) {
		return
	}
	entry := logline.Parse(c.Lines[issue.LineNumber-1])
	if entry.Level != logline.LevelUnknown {
		issue.Level = logline.DecodeLevel(entry.Level)
	}
	issue.Timestamp = entry.Timestamp
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxPreviewBytes {
		return s
	}
	cut := maxPreviewBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func plural(n int) string {
	if n == 1 {
		return "match"
	}
	return "matches"
}
