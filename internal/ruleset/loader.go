// Package ruleset loads detection rules from YAML or JSON files and keeps
// the active rule list of a running process.
package ruleset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valyala/fastjson"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/nanorule/internal/engine"
)

var (
	ErrDuplicateID = errors.New("duplicate rule ID")
	ErrInvalidRule = errors.New("invalid rule")
)

// yamlRule is the on-disk shape of a rule. Enabled and IsRegex default to
// true when absent.
type yamlRule struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Enabled     *bool    `yaml:"enabled"`
	DSL         string   `yaml:"dsl"`
	Patterns    []string `yaml:"patterns"`
	Operator    string   `yaml:"operator"`
	IsRegex     *bool    `yaml:"is_regex"`
	Priority    int      `yaml:"priority"`
	ProblemType string   `yaml:"problem_type"`
}

func (yr yamlRule) toRule() engine.Rule {
	r := engine.Rule{
		ID:          strings.TrimSpace(yr.ID),
		Name:        strings.TrimSpace(yr.Name),
		Description: yr.Description,
		Enabled:     yr.Enabled == nil || *yr.Enabled,
		DSL:         yr.DSL,
		Patterns:    yr.Patterns,
		IsRegex:     yr.IsRegex == nil || *yr.IsRegex,
		Priority:    yr.Priority,
		ProblemType: yr.ProblemType,
	}
	if !r.IsDSL() {
		r.Operator = strings.ToUpper(strings.TrimSpace(yr.Operator))
		if r.Operator == "" {
			r.Operator = engine.OperatorOr
		}
	}
	return r
}

// LoadFile loads the rules of one .yaml, .yml or .json file.
func LoadFile(p string) ([]engine.Rule, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", p, err)
	}
	rules, err := Parse(filepath.Base(p), data)
	if err != nil {
		return nil, err
	}
	return rules, Validate(rules)
}

// LoadFS loads every rule file in dir of fsys, in file name order. Rule IDs
// must be unique across files.
func LoadFS(fsys fs.FS, dir string) ([]engine.Rule, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir %q: %w", dir, err)
	}

	// Sort for deterministic load order
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var all []engine.Rule
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		p := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		rules, err := Parse(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, Validate(all)
}

func isRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Parse decodes rules from data; the format follows the extension of name.
func Parse(name string, data []byte) ([]engine.Rule, error) {
	var (
		raw []yamlRule
		err error
	)
	if strings.EqualFold(filepath.Ext(name), ".json") {
		raw, err = parseJSON(data)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	rules := make([]engine.Rule, len(raw))
	for i, yr := range raw {
		rules[i] = yr.toRule()
	}
	return rules, nil
}

// parseJSON accepts either a bare array of rules or {"rules": [...]}.
func parseJSON(data []byte) ([]yamlRule, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if v.Type() == fastjson.TypeObject {
		v = v.Get("rules")
		if v == nil {
			return nil, errors.New(`missing "rules" array`)
		}
	}
	items, err := v.Array()
	if err != nil {
		return nil, err
	}

	out := make([]yamlRule, 0, len(items))
	for i, item := range items {
		yr := yamlRule{
			ID:          string(item.GetStringBytes("id")),
			Name:        string(item.GetStringBytes("name")),
			Description: string(item.GetStringBytes("description")),
			DSL:         string(item.GetStringBytes("dsl")),
			Operator:    string(item.GetStringBytes("operator")),
			Priority:    item.GetInt("priority"),
			ProblemType: string(item.GetStringBytes("problem_type")),
		}
		if item.Exists("enabled") {
			b := item.GetBool("enabled")
			yr.Enabled = &b
		}
		if item.Exists("is_regex") {
			b := item.GetBool("is_regex")
			yr.IsRegex = &b
		}
		for _, pv := range item.GetArray("patterns") {
			s, err := pv.StringBytes()
			if err != nil {
				return nil, fmt.Errorf("rule %d: patterns: %w", i, err)
			}
			yr.Patterns = append(yr.Patterns, string(s))
		}
		out = append(out, yr)
	}
	return out, nil
}

// Validate checks that every rule has an ID and a name, that IDs are unique,
// that each rule has either an expression or patterns, and that pattern
// rules use AND, OR or NOT. A blank operator means OR.
func Validate(rules []engine.Rule) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has no id", ErrInvalidRule, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("%w: %q has no name", ErrInvalidRule, r.ID)
		}
		if r.IsDSL() && len(r.Patterns) > 0 {
			return fmt.Errorf("%w: %q has both dsl and patterns", ErrInvalidRule, r.ID)
		}
		if !r.IsDSL() && len(r.Patterns) == 0 {
			return fmt.Errorf("%w: %q has neither dsl nor patterns", ErrInvalidRule, r.ID)
		}
		if !r.IsDSL() {
			switch strings.ToUpper(strings.TrimSpace(r.Operator)) {
			case "", engine.OperatorAnd, engine.OperatorOr, engine.OperatorNot:
			default:
				return fmt.Errorf("%w: %q has unknown operator %q", ErrInvalidRule, r.ID, r.Operator)
			}
		}
	}
	return nil
}
