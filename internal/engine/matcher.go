package engine

import (
	"log/slog"
	"regexp"
	"sort"
)

// DefaultMaxMatchesPerPattern caps a single regex scan.
const DefaultMaxMatchesPerPattern = 10000

// MatcherOptions configures a Matcher.
type MatcherOptions struct {
	MaxMatchesPerPattern int
	Logger               *slog.Logger
}

// Matcher applies rules to preprocessed content.
type Matcher struct {
	compiler   *RuleCompiler
	maxMatches int
	logger     *slog.Logger
}

// NewMatcher creates a Matcher backed by compiler.
func NewMatcher(compiler *RuleCompiler, opts MatcherOptions) *Matcher {
	if opts.MaxMatchesPerPattern <= 0 {
		opts.MaxMatchesPerPattern = DefaultMaxMatchesPerPattern
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Matcher{
		compiler:   compiler,
		maxMatches: opts.MaxMatchesPerPattern,
		logger:     opts.Logger,
	}
}

// Compiler returns the compiler the matcher uses.
func (m *Matcher) Compiler() *RuleCompiler {
	return m.compiler
}

// MatchRule returns the hits of rule in c. Disabled rules never match.
func (m *Matcher) MatchRule(rule Rule, c *Content) []Match {
	if !rule.Enabled {
		return nil
	}
	if rule.IsDSL() {
		return m.matchDSL(rule, c)
	}
	return m.matchLegacy(rule, c)
}

// matchDSL evaluates the expression on every line. Each true line yields one
// match spanning the leftmost phrase occurrence, or the whole line when no
// phrase occurs in it.
func (m *Matcher) matchDSL(rule Rule, c *Content) []Match {
	compiled, _ := m.compiler.Compile(rule.ID, rule.DSL)
	if !compiled.MayMatch(c.Lower) {
		return nil
	}

	var matches []Match
	for i, lower := range c.LinesLower {
		if !compiled.Eval(lower) {
			continue
		}
		matches = append(matches, lineSpan(compiled, c, i, lower))
	}
	return matches
}

func lineSpan(r *CompiledRule, c *Content, i int, lower string) Match {
	line := c.Lines[i]
	base := c.LineStart(i + 1)
	// offsets in the lowercased line are only valid in the original when
	// lowercasing kept the byte length
	if s, e, ok := r.FirstPhrase(lower); ok && len(lower) == len(line) {
		return Match{Start: base + s, End: base + e, Text: line[s:e]}
	}
	return Match{Start: base, End: base + len(line), Text: line}
}

func (m *Matcher) matchLegacy(rule Rule, c *Content) []Match {
	p := m.compiler.CompilePatterns(rule.ID, rule.Patterns, rule.Operator, rule.IsRegex)
	if len(p.Sources) == 0 {
		return nil
	}

	switch p.Operator {
	case OperatorAnd:
		return m.matchAll(p, c.Text)
	case OperatorNot:
		return m.matchNone(p, c.Text)
	default:
		return m.matchAny(rule.ID, p, c.Text)
	}
}

// matchAny scans once with the alternation of all patterns, or pattern by
// pattern when the alternation did not compile.
func (m *Matcher) matchAny(ruleID string, p *CompiledPatterns, text string) []Match {
	if p.Union != nil {
		return m.scan(p.Union, text)
	}

	m.logger.Debug("scanning patterns one by one", "rule", ruleID, "broken", len(p.Errors))
	var all []Match
	for _, re := range p.Regexps {
		if re == nil {
			continue
		}
		all = append(all, m.scan(re, text)...)
	}
	sortMatches(all)
	return all
}

// matchAll returns the first hit of every pattern, or nothing when one of
// them is missing.
func (m *Matcher) matchAll(p *CompiledPatterns, text string) []Match {
	if p.Broken() {
		return nil
	}
	out := make([]Match, 0, len(p.Regexps))
	for _, re := range p.Regexps {
		loc := re.FindStringIndex(text)
		if loc == nil {
			return nil
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]]})
	}
	return out
}

// matchNone hits when no pattern occurs. The hit is a zero-length match at
// the start of the content.
func (m *Matcher) matchNone(p *CompiledPatterns, text string) []Match {
	if p.Broken() {
		return nil
	}
	for _, re := range p.Regexps {
		if re.MatchString(text) {
			return nil
		}
	}
	return []Match{{Start: 0, End: 0, Text: ""}}
}

// scan returns the hits of re, keeping at most one zero-length match.
func (m *Matcher) scan(re *regexp.Regexp, text string) []Match {
	locs := re.FindAllStringIndex(text, m.maxMatches)
	if len(locs) == 0 {
		return nil
	}

	out := make([]Match, 0, len(locs))
	zeroSeen := false
	for _, loc := range locs {
		if loc[0] == loc[1] {
			if zeroSeen {
				continue
			}
			zeroSeen = true
		}
		out = append(out, Match{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]]})
	}
	return out
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Start != ms[j].Start {
			return ms[i].Start < ms[j].Start
		}
		return ms[i].End < ms[j].End
	})
}
