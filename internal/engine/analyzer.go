package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRuleParallelism is the number of rules evaluated at once for one
// file.
const DefaultRuleParallelism = 8

// Summary counts the issues of a report by severity.
type Summary struct {
	TotalIssues    int `json:"total_issues"`
	HighSeverity   int `json:"high_severity"`
	MediumSeverity int `json:"medium_severity"`
}

// Report is the outcome of analyzing one file against a rule set.
type Report struct {
	FileID         string        `json:"file_id"`
	Digest         string        `json:"digest,omitempty"`
	RulesetVersion uint64        `json:"ruleset_version"`
	AnalyzedAt     time.Time     `json:"analyzed_at"`
	Duration       time.Duration `json:"duration"`
	Truncated      bool          `json:"truncated,omitempty"`
	Issues         []Issue       `json:"issues"`
	Summary        Summary       `json:"summary"`
	Stats          FileStats     `json:"stats"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	ContextLines    int
	RuleParallelism int
	Logger          *slog.Logger
}

// Analyzer runs a rule set over the text of one file.
type Analyzer struct {
	matcher      *Matcher
	contextLines int
	parallelism  int
	logger       *slog.Logger
}

// NewAnalyzer creates an Analyzer on top of matcher.
func NewAnalyzer(matcher *Matcher, opts AnalyzerOptions) *Analyzer {
	if opts.ContextLines <= 0 {
		opts.ContextLines = DefaultContextLines
	}
	if opts.RuleParallelism <= 0 {
		opts.RuleParallelism = DefaultRuleParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Analyzer{
		matcher:      matcher,
		contextLines: opts.ContextLines,
		parallelism:  opts.RuleParallelism,
		logger:       opts.Logger,
	}
}

// Analyze preprocesses text once and evaluates every rule against it. Rules
// run concurrently but issues come out in rule order, highest priority
// first. Rule problems end up in Report.Warnings; only cancellation of ctx
// fails the analysis.
func (a *Analyzer) Analyze(ctx context.Context, fileID, text string, rules []Rule) (*Report, error) {
	started := time.Now()
	ordered := SortByPriority(rules)
	c := Preprocess(text)

	issues := make([]*Issue, len(ordered))
	warnings := make([][]string, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, rule := range ordered {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			warnings[i] = a.ruleWarnings(rule)
			matches := a.matcher.MatchRule(rule, c)
			if issue, ok := BuildIssue(rule, matches, c, a.contextLines); ok {
				issues[i] = &issue
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", fileID, err)
	}

	report := &Report{
		FileID:     fileID,
		AnalyzedAt: started.UTC(),
		Issues:     make([]Issue, 0, len(ordered)),
		Stats:      computeFileStats(c),
	}
	for i := range ordered {
		report.Warnings = append(report.Warnings, warnings[i]...)
		if issues[i] == nil {
			continue
		}
		report.Issues = append(report.Issues, *issues[i])
		report.Summary.TotalIssues++
		if issues[i].Severity == SeverityHigh {
			report.Summary.HighSeverity++
		} else {
			report.Summary.MediumSeverity++
		}
	}
	report.Duration = time.Since(started)

	a.logger.Debug("file analyzed",
		"file", fileID,
		"lines", c.LineCount(),
		"rules", len(ordered),
		"issues", report.Summary.TotalIssues,
		"duration", report.Duration)
	return report, nil
}

func (a *Analyzer) ruleWarnings(rule Rule) []string {
	if !rule.Enabled {
		return nil
	}
	compiler := a.matcher.Compiler()
	if rule.IsDSL() {
		compiled, err := compiler.Compile(rule.ID, rule.DSL)
		if err == nil {
			return nil
		}
		out := make([]string, len(compiled.Diagnostics))
		for i, d := range compiled.Diagnostics {
			out[i] = rule.ID + ": " + d.String()
		}
		return out
	}
	p := compiler.CompilePatterns(rule.ID, rule.Patterns, rule.Operator, rule.IsRegex)
	out := make([]string, 0, len(p.Errors))
	for _, err := range p.Errors {
		out = append(out, rule.ID+": "+err.Error())
	}
	return out
}

// SortByPriority returns a copy of rules ordered by descending priority,
// keeping the input order among equal priorities.
func SortByPriority(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
