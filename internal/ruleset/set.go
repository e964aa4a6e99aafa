package ruleset

import (
	"slices"
	"sync"

	"github.com/coffersTech/nanorule/internal/engine"
)

// Set is the active rule list. Every change bumps its version.
type Set struct {
	mu      sync.RWMutex
	rules   []engine.Rule
	version uint64
}

// NewSet creates a set at version 1.
func NewSet(rules []engine.Rule) *Set {
	return &Set{rules: slices.Clone(rules), version: 1}
}

// Rules returns a copy of the rules and the version they belong to.
func (s *Set) Rules() ([]engine.Rule, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rules), s.version
}

// Version returns the current version.
func (s *Set) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns the rule with the given ID.
func (s *Set) Get(id string) (engine.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return engine.Rule{}, false
}

// Replace swaps in a new rule list and returns the IDs of rules that were
// changed or removed. The version only moves when something changed.
func (s *Set) Replace(rules []engine.Rule) []string {
	next := make(map[string]engine.Rule, len(rules))
	for _, r := range rules {
		next[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	prev := make(map[string]bool, len(s.rules))
	for _, old := range s.rules {
		prev[old.ID] = true
		if r, ok := next[old.ID]; !ok || !sameRule(old, r) {
			changed = append(changed, old.ID)
		}
	}
	added := false
	for _, r := range rules {
		if !prev[r.ID] {
			added = true
		}
	}
	orderChanged := len(rules) == len(s.rules) && !slices.EqualFunc(rules, s.rules, func(a, b engine.Rule) bool {
		return a.ID == b.ID
	})

	if len(changed) > 0 || added || orderChanged {
		s.rules = slices.Clone(rules)
		s.version++
	}
	return changed
}

func sameRule(a, b engine.Rule) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Description == b.Description &&
		a.Enabled == b.Enabled &&
		a.DSL == b.DSL &&
		slices.Equal(a.Patterns, b.Patterns) &&
		a.Operator == b.Operator &&
		a.IsRegex == b.IsRegex &&
		a.Priority == b.Priority &&
		a.ProblemType == b.ProblemType
}
