package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileIsCached(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	first, err := c.Compile("r1", `"kernel panic" | "fatal exception"`)
	require.NoError(t, err)
	second, err := c.Compile("r1", `"kernel panic" | "fatal exception"`)
	require.NoError(t, err)

	assert.Same(t, first, second)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, []string{"kernel panic", "fatal exception"}, first.Phrases)
}

func TestCompileNewExpressionIsNewEntry(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	a, _ := c.Compile("r1", "a")
	b, _ := c.Compile("r1", "b")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Stats().Entries)
	assert.Equal(t, int64(0), c.Stats().Hits)
}

func TestCompileReturnsDiagnostics(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	rule, err := c.Compile("r1", `error & (`)
	require.Error(t, err)
	require.NotNil(t, rule)
	assert.NotEmpty(t, rule.Diagnostics)

	_, err = c.Compile("r1", `error & (`)
	assert.Error(t, err, "cached rule keeps its diagnostics")
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestInvalidate(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	_, _ = c.Compile("r1", "a")
	_, _ = c.Compile("r1", "b")
	_, _ = c.Compile("r1:x", "a")
	c.CompilePatterns("r1", []string{"oom"}, "OR", false)

	assert.Equal(t, 3, c.Invalidate("r1"))
	assert.Equal(t, 1, c.Stats().Entries)

	_, _ = c.Compile("r1", "a")
	assert.Equal(t, int64(0), c.Stats().Hits, "invalidated entries are compiled again")
}

func TestCompilerEvictsOldest(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{MaxEntries: 2})

	first, _ := c.Compile("r1", "a")
	_, _ = c.Compile("r2", "b")
	_, _ = c.Compile("r3", "c")
	assert.Equal(t, 2, c.Stats().Entries)

	again, _ := c.Compile("r1", "a")
	assert.NotSame(t, first, again)
}

func TestCompileConcurrent(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rule, _ := c.Compile(fmt.Sprintf("r%d", i%4), "disk & full")
			assert.True(t, rule.Eval("disk is full"))
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, int64(32), stats.Hits+stats.Misses)
}

func TestCompilePatterns(t *testing.T) {
	c := NewRuleCompiler(CompilerOptions{})

	p := c.CompilePatterns("r1", []string{"a.b", " ", "c"}, "or", false)
	assert.Equal(t, OperatorOr, p.Operator)
	assert.Equal(t, []string{`a\.b`, "c"}, p.Sources)
	assert.NotNil(t, p.Union)
	assert.False(t, p.Broken())

	p = c.CompilePatterns("r2", []string{"(", "ok"}, "OR", true)
	assert.True(t, p.Broken())
	assert.Nil(t, p.Union)
	assert.Nil(t, p.Regexps[0])
	assert.NotNil(t, p.Regexps[1])

	again := c.CompilePatterns("r2", []string{"(", "ok"}, "OR", true)
	assert.Same(t, p, again)
}

func TestNormalizeOperator(t *testing.T) {
	assert.Equal(t, OperatorAnd, NormalizeOperator(" and "))
	assert.Equal(t, OperatorNot, NormalizeOperator("NOT"))
	assert.Equal(t, OperatorOr, NormalizeOperator(""))
	assert.Equal(t, OperatorOr, NormalizeOperator("xor"))
}
