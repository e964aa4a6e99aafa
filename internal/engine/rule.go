package engine

import (
	"strings"
	"time"
)

// Legacy rule operators.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
	OperatorNot = "NOT"
)

// Issue severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Rule is a detection rule. A rule with a non-blank DSL expression is
// matched line by line; otherwise its Patterns are combined with Operator
// over the whole content.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	DSL         string   `json:"dsl,omitempty" yaml:"dsl"`
	Patterns    []string `json:"patterns,omitempty" yaml:"patterns"`
	Operator    string   `json:"operator,omitempty" yaml:"operator"`
	IsRegex     bool     `json:"is_regex,omitempty" yaml:"is_regex"`
	Priority    int      `json:"priority,omitempty" yaml:"priority"`
	ProblemType string   `json:"problem_type,omitempty" yaml:"problem_type"`
}

// IsDSL reports whether the rule uses the expression language.
func (r Rule) IsDSL() bool {
	return strings.TrimSpace(r.DSL) != ""
}

// Severity classifies a rule by its display name.
func (r Rule) Severity() string {
	name := strings.ToLower(r.Name)
	if strings.Contains(name, "panic") || strings.Contains(name, "oom") {
		return SeverityHigh
	}
	return SeverityMedium
}

// Match is the span of one rule hit, in byte offsets of the content.
type Match struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Issue is the finding of one rule in one file.
type Issue struct {
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	Description string    `json:"description"`
	LineNumber  int       `json:"line_number"`
	MatchedText string    `json:"matched_text"`
	Context     string    `json:"context"`
	Severity    string    `json:"severity"`
	MatchCount  int       `json:"match_count,omitempty"`
	Level       string    `json:"level,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
}
