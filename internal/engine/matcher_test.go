package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher() *Matcher {
	return NewMatcher(NewRuleCompiler(CompilerOptions{}), MatcherOptions{})
}

const sampleLog = `2024-01-15 10:30:45 kernel: Out of memory: Killed process 1234 (java)
2024-01-15 10:30:46 systemd[1]: Started Session 42.
2024-01-15 10:30:47 kernel: Kernel panic - not syncing: Fatal exception in interrupt
2024-01-15 10:30:48 app[99]: Error: disk full on /tmp
2024-01-15 10:30:49 app[99]: disk full during write operation`

func TestMatchDSL(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "panic", Name: "Kernel Panic", Enabled: true, DSL: `"kernel panic" | "fatal exception"`}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 1)
	assert.Equal(t, 3, c.LineOf(matches[0].Start))
	assert.Equal(t, "Kernel panic", matches[0].Text)
	assert.Equal(t, "Kernel panic", c.Text[matches[0].Start:matches[0].End])
}

func TestMatchDSLWithNegation(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "disk", Name: "Disk", Enabled: true, DSL: `("disk full" | "no space") & !write`}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 1)
	assert.Equal(t, 4, c.LineOf(matches[0].Start))
	assert.Equal(t, "disk full", matches[0].Text)
}

func TestMatchDSLWholeLineSpan(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess("first\nsecond line\nthird")

	rule := Rule{ID: "neg", Enabled: true, DSL: `!first & !third`}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 1)
	assert.Equal(t, Match{Start: 6, End: 17, Text: "second line"}, matches[0])
}

func TestMatchDSLLeftmostPhrase(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess("boot ok\nwarning: then error")

	rule := Rule{ID: "r", Enabled: true, DSL: `error | warning`}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 1)
	assert.Equal(t, "warning", matches[0].Text)
	assert.Equal(t, 8, matches[0].Start)
}

func TestMatchDSLSkipsFileWithoutPhrases(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "none", Enabled: true, DSL: `segfault & core`}
	assert.Empty(t, m.MatchRule(rule, c))
}

func TestDisabledRulesNeverMatch(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rules := []Rule{
		{ID: "dsl", DSL: `kernel`},
		{ID: "neg", DSL: `!nothing-here`},
		{ID: "or", Patterns: []string{"kernel"}, Operator: OperatorOr},
		{ID: "and", Patterns: []string{"kernel", "disk"}, Operator: OperatorAnd},
		{ID: "not", Patterns: []string{"nothing-here"}, Operator: OperatorNot},
		{ID: "re", Patterns: []string{".*"}, IsRegex: true},
	}
	for _, rule := range rules {
		t.Run(rule.ID, func(t *testing.T) {
			assert.Empty(t, m.MatchRule(rule, c))
			rule.Enabled = true
			assert.NotEmpty(t, m.MatchRule(rule, c))
		})
	}
}

func TestMatchLegacyOr(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "or", Enabled: true, Patterns: []string{"OUT OF MEMORY", "disk full"}, Operator: OperatorOr}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 3)
	assert.Equal(t, "Out of memory", matches[0].Text)
	assert.Equal(t, "disk full", matches[1].Text)
	assert.Equal(t, "disk full", matches[2].Text)
	assert.Less(t, matches[1].Start, matches[2].Start)
}

func TestMatchLegacyKeywordIsLiteral(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess("cost is 3.5$ today\ncost is 3x5 today")

	rule := Rule{ID: "kw", Enabled: true, Patterns: []string{"3.5$"}}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 1)
	assert.Equal(t, 8, matches[0].Start)
}

func TestMatchLegacyAnd(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "and", Enabled: true, Patterns: []string{"disk full", `process \d+`}, Operator: OperatorAnd, IsRegex: true}
	matches := m.MatchRule(rule, c)

	require.Len(t, matches, 2)
	assert.Equal(t, "disk full", matches[0].Text)
	assert.Equal(t, 4, c.LineOf(matches[0].Start))
	assert.Equal(t, "process 1234", matches[1].Text)

	rule.Patterns = append(rule.Patterns, "segfault")
	assert.Empty(t, m.MatchRule(rule, c))
}

func TestMatchLegacyNot(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	rule := Rule{ID: "not", Enabled: true, Patterns: []string{"segfault", "oops"}, Operator: OperatorNot}
	assert.Equal(t, []Match{{Start: 0, End: 0, Text: ""}}, m.MatchRule(rule, c))

	rule.Patterns = []string{"segfault", "kernel"}
	assert.Empty(t, m.MatchRule(rule, c))
}

func TestMatchLegacyBrokenPatterns(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(sampleLog)

	or := Rule{ID: "or", Enabled: true, Patterns: []string{"([", "kernel"}, IsRegex: true}
	matches := m.MatchRule(or, c)
	assert.Len(t, matches, 3, "broken alternative is skipped")

	and := Rule{ID: "and", Enabled: true, Patterns: []string{"([", "kernel"}, IsRegex: true, Operator: OperatorAnd}
	assert.Empty(t, m.MatchRule(and, c))

	not := Rule{ID: "not", Enabled: true, Patterns: []string{"(["}, IsRegex: true, Operator: OperatorNot}
	assert.Empty(t, m.MatchRule(not, c))

	blank := Rule{ID: "blank", Enabled: true, Patterns: []string{"", "  "}, Operator: OperatorNot}
	assert.Empty(t, m.MatchRule(blank, c))
}

func TestUnionScanEqualsPerPatternScan(t *testing.T) {
	m := newTestMatcher()
	text := strings.Repeat(sampleLog+"\n", 20)

	lists := [][]string{
		{"kernel", "disk full"},
		{`\d{4}-\d{2}-\d{2}`, `app\[\d+\]`, "panic"},
		{"segfault", "oom"},
		{`session \d+`, `write`, `fatal`},
	}
	for _, patterns := range lists {
		p := compilePatterns(patterns, OperatorOr, true)
		require.NotNil(t, p.Union)

		union := m.scan(p.Union, text)

		var naive []Match
		for _, re := range p.Regexps {
			naive = append(naive, m.scan(re, text)...)
		}
		sortMatches(naive)

		assert.Equal(t, naive, union, "patterns %v", patterns)
	}
}

func TestZeroWidthGuard(t *testing.T) {
	m := newTestMatcher()
	c := Preprocess(strings.Repeat("abcdef\n", 5000))

	for _, pattern := range []string{`x*`, `^`, `\b`, `(?m)$`} {
		rule := Rule{ID: pattern, Enabled: true, Patterns: []string{pattern}, IsRegex: true}
		matches := m.MatchRule(rule, c)
		assert.Len(t, matches, 1, "pattern %q", pattern)
	}
}

func TestMaxMatchesPerPattern(t *testing.T) {
	m := NewMatcher(NewRuleCompiler(CompilerOptions{}), MatcherOptions{MaxMatchesPerPattern: 10})
	c := Preprocess(strings.Repeat("error\n", 100))

	rule := Rule{ID: "e", Enabled: true, Patterns: []string{"error"}}
	assert.Len(t, m.MatchRule(rule, c), 10)
}
