package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	aho "github.com/petar-dambovaliev/aho-corasick"

	"github.com/coffersTech/nanorule/internal/pkg/ruledsl"
)

// DefaultMaxCacheEntries bounds the compiled rule cache when no explicit
// limit is configured.
const DefaultMaxCacheEntries = 4096

// CompiledRule is the parsed form of one rule expression. It is immutable
// once built and safe for concurrent use.
type CompiledRule struct {
	RuleID      string
	Source      string
	Tokens      []ruledsl.Token
	AST         ruledsl.Node
	Phrases     []string // lowercased, distinct
	Diagnostics ruledsl.Diagnostics

	monotone bool
	phrases  *aho.AhoCorasick
}

// Err returns the parse warnings as an error, for display only. The rule is
// usable either way.
func (r *CompiledRule) Err() error {
	return r.Diagnostics.Err()
}

// Eval reports whether the expression holds for a lowercased line.
func (r *CompiledRule) Eval(lowerLine string) bool {
	return ruledsl.Evaluate(r.AST, lowerLine)
}

// MayMatch reports whether any line of the lowercased text could satisfy
// the rule. It is exact only for monotone expressions and always true for
// the others.
func (r *CompiledRule) MayMatch(lowerText string) bool {
	if !r.monotone {
		return true
	}
	if r.phrases == nil {
		return false
	}
	iter := r.phrases.Iter(lowerText)
	return iter.Next() != nil
}

// FirstPhrase returns the leftmost occurrence of any phrase in lowerLine.
func (r *CompiledRule) FirstPhrase(lowerLine string) (start, end int, ok bool) {
	if r.phrases == nil {
		return 0, 0, false
	}
	matches := r.phrases.FindAll(lowerLine)
	if len(matches) == 0 {
		return 0, 0, false
	}
	return matches[0].Start(), matches[0].End(), true
}

// CompiledPatterns holds the regexes of a legacy pattern rule. Keyword
// patterns are quoted; every pattern is case-insensitive.
type CompiledPatterns struct {
	Operator string
	Sources  []string
	Regexps  []*regexp.Regexp // nil where the pattern failed to compile
	Union    *regexp.Regexp   // OR rules only; nil when it failed to compile
	Errors   []error
}

// Broken reports whether at least one pattern failed to compile.
func (p *CompiledPatterns) Broken() bool {
	return len(p.Errors) > 0
}

// CacheStats reports compiler cache activity.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// CompilerOptions configures a RuleCompiler.
type CompilerOptions struct {
	MaxEntries int
	Logger     *slog.Logger
}

// RuleCompiler compiles rule expressions and legacy pattern lists once and
// caches the result by rule ID and source. One compiler is shared by every
// analysis of a process.
type RuleCompiler struct {
	mu       sync.RWMutex
	rules    map[string]cacheEntry[*CompiledRule]
	patterns map[string]cacheEntry[*CompiledPatterns]
	order    []orderKey
	seq      uint64
	max      int

	hits   atomic.Int64
	misses atomic.Int64

	logger *slog.Logger
}

type cacheEntry[V any] struct {
	ruleID string
	seq    uint64
	value  V
}

type orderKey struct {
	key     string
	pattern bool
	seq     uint64
}

// NewRuleCompiler creates an empty compiler.
func NewRuleCompiler(opts CompilerOptions) *RuleCompiler {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxCacheEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RuleCompiler{
		rules:    make(map[string]cacheEntry[*CompiledRule]),
		patterns: make(map[string]cacheEntry[*CompiledPatterns]),
		max:      opts.MaxEntries,
		logger:   opts.Logger,
	}
}

// Compile returns the compiled form of expr for ruleID. The result is always
// usable; the error carries parse warnings for display.
func (c *RuleCompiler) Compile(ruleID, expr string) (*CompiledRule, error) {
	key := ruleID + ":" + expr

	c.mu.RLock()
	e, ok := c.rules[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e.value, e.value.Err()
	}
	c.misses.Add(1)

	compiled := compileRule(ruleID, expr)
	if len(compiled.Diagnostics) > 0 {
		c.logger.Debug("rule expression recovered", "rule", ruleID, "warnings", len(compiled.Diagnostics))
	}

	c.mu.Lock()
	if e, ok := c.rules[key]; ok {
		c.mu.Unlock()
		return e.value, e.value.Err()
	}
	c.seq++
	c.rules[key] = cacheEntry[*CompiledRule]{ruleID: ruleID, seq: c.seq, value: compiled}
	c.order = append(c.order, orderKey{key: key, seq: c.seq})
	c.evictLocked()
	c.mu.Unlock()

	return compiled, compiled.Err()
}

// CompilePatterns returns the compiled regexes of a legacy rule.
func (c *RuleCompiler) CompilePatterns(ruleID string, patterns []string, operator string, isRegex bool) *CompiledPatterns {
	key := ruleID + ":" + operator + ":" + strconv.FormatBool(isRegex) + ":" + strings.Join(patterns, "\x00")

	c.mu.RLock()
	e, ok := c.patterns[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e.value
	}
	c.misses.Add(1)

	compiled := compilePatterns(patterns, operator, isRegex)
	for _, err := range compiled.Errors {
		c.logger.Warn("rule pattern does not compile", "rule", ruleID, "error", err)
	}

	c.mu.Lock()
	if e, ok := c.patterns[key]; ok {
		c.mu.Unlock()
		return e.value
	}
	c.seq++
	c.patterns[key] = cacheEntry[*CompiledPatterns]{ruleID: ruleID, seq: c.seq, value: compiled}
	c.order = append(c.order, orderKey{key: key, pattern: true, seq: c.seq})
	c.evictLocked()
	c.mu.Unlock()

	return compiled
}

// Invalidate drops every cached entry of ruleID.
func (c *RuleCompiler) Invalidate(ruleID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.rules {
		if e.ruleID == ruleID {
			delete(c.rules, k)
			n++
		}
	}
	for k, e := range c.patterns {
		if e.ruleID == ruleID {
			delete(c.patterns, k)
			n++
		}
	}
	if n > 0 {
		c.compactLocked()
	}
	return n
}

// Stats returns a snapshot of cache counters.
func (c *RuleCompiler) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.rules) + len(c.patterns)
	c.mu.RUnlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

// evictLocked drops the oldest entries until the cache fits its bound.
func (c *RuleCompiler) evictLocked() {
	for len(c.rules)+len(c.patterns) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if oldest.pattern {
			if e, ok := c.patterns[oldest.key]; ok && e.seq == oldest.seq {
				delete(c.patterns, oldest.key)
			}
		} else if e, ok := c.rules[oldest.key]; ok && e.seq == oldest.seq {
			delete(c.rules, oldest.key)
		}
	}
}

// compactLocked removes order records whose entries are gone.
func (c *RuleCompiler) compactLocked() {
	kept := c.order[:0]
	for _, o := range c.order {
		var live bool
		if o.pattern {
			e, ok := c.patterns[o.key]
			live = ok && e.seq == o.seq
		} else {
			e, ok := c.rules[o.key]
			live = ok && e.seq == o.seq
		}
		if live {
			kept = append(kept, o)
		}
	}
	c.order = kept
}

// NormalizeOperator upper-cases a legacy operator; anything but AND or NOT
// means OR.
func NormalizeOperator(op string) string {
	switch op = strings.ToUpper(strings.TrimSpace(op)); op {
	case OperatorAnd, OperatorNot:
		return op
	default:
		return OperatorOr
	}
}

func compileRule(ruleID, expr string) *CompiledRule {
	tokens, diags := ruledsl.Tokenize(expr)
	ast, parseDiags := ruledsl.Parse(tokens)

	r := &CompiledRule{
		RuleID:      ruleID,
		Source:      expr,
		Tokens:      tokens,
		AST:         ast,
		Phrases:     ruledsl.Phrases(ast),
		Diagnostics: append(diags, parseDiags...),
		monotone:    ruledsl.IsMonotone(ast),
	}
	if len(r.Phrases) > 0 {
		builder := aho.NewAhoCorasickBuilder(aho.Opts{
			DFA:       true,
			MatchKind: aho.LeftMostFirstMatch,
		})
		automaton := builder.Build(r.Phrases)
		r.phrases = &automaton
	}
	return r
}

func compilePatterns(patterns []string, operator string, isRegex bool) *CompiledPatterns {
	p := &CompiledPatterns{Operator: NormalizeOperator(operator)}

	for _, src := range patterns {
		if strings.TrimSpace(src) == "" {
			continue
		}
		if !isRegex {
			src = regexp.QuoteMeta(src)
		}
		p.Sources = append(p.Sources, src)
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			p.Errors = append(p.Errors, fmt.Errorf("pattern %q: %w", src, err))
		}
		p.Regexps = append(p.Regexps, re)
	}

	if p.Operator == OperatorOr && len(p.Sources) > 0 {
		alts := make([]string, len(p.Sources))
		for i, src := range p.Sources {
			alts[i] = "(?:" + src + ")"
		}
		if re, err := regexp.Compile("(?i)" + strings.Join(alts, "|")); err == nil {
			p.Union = re
		}
	}
	return p
}
