package ruledsl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenStrings(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.String()
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{`"a" & "b"`, []string{"Phrase(a)", "And", "Phrase(b)"}},
		{`"a" "b"`, []string{"Phrase(a)", "And", "Phrase(b)"}},
		{`a|b`, []string{"Phrase(a)", "Or", "Phrase(b)"}},
		{`!a`, []string{"Not", "Phrase(a)"}},
		{`！a`, []string{"Not", "Phrase(a)"}},
		{`a !b`, []string{"Phrase(a)", "And", "Not", "Phrase(b)"}},
		{`(a) (b)`, []string{"LParen", "Phrase(a)", "RParen", "And", "LParen", "Phrase(b)", "RParen"}},
		{`"disk full" write`, []string{"Phrase(disk full)", "And", "Phrase(write)"}},
		{`  `, []string{}},
		{`a"b c"`, []string{"Phrase(a)", "And", "Phrase(b c)"}},
		{`&&`, []string{"And", "And"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input)
			assert.Empty(t, diags)
			assert.Equal(t, tt.expected, tokenStrings(tokens))
		})
	}
}

func TestTokenizeImplicitAndMatchesExplicit(t *testing.T) {
	explicit, _ := Tokenize(`"a" & "b"`)
	implicit, _ := Tokenize(`"a" "b"`)
	require.Len(t, implicit, len(explicit))
	for i := range explicit {
		assert.Equal(t, explicit[i].Type, implicit[i].Type)
		assert.Equal(t, explicit[i].Value, implicit[i].Value)
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	tokens, diags := Tokenize(`error & "out of mem`)
	assert.Equal(t, []string{"Phrase(error)", "And", "Phrase(out of mem)"}, tokenStrings(tokens))
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "unterminated quote")
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`a`, `"a"`},
		{`a | b & c`, `("a" OR ("b" AND "c"))`},
		{`a & b | c`, `(("a" AND "b") OR "c")`},
		{`a | b | c`, `(("a" OR "b") OR "c")`},
		{`!a & b`, `(NOT "a" AND "b")`},
		{`!(a | b)`, `NOT ("a" OR "b")`},
		{`!!a`, `NOT NOT "a"`},
		{`(disk full | no space) & !write`, `((("disk" AND "full") OR ("no" AND "space")) AND NOT "write")`},
		{`("disk full" | "no space") & !write`, `(("disk full" OR "no space") AND NOT "write")`},
		{`"a" "b" | c`, `(("a" AND "b") OR "c")`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, diags := ParseString(tt.input)
			assert.Empty(t, diags)
			assert.Equal(t, tt.expected, node.String())
		})
	}
}

func TestParseLenientRecovery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		diags    int
	}{
		{"empty", ``, `""`, 0},
		{"only operators", `&`, `("" AND "")`, 2},
		{"trailing and", `a &`, `("" AND "a")`, 1},
		{"leading or", `| a`, `("" OR "a")`, 1},
		{"dangling not", `a & !`, `("" AND NOT "a")`, 1},
		{"unmatched close", `a ) | b`, `("a" OR "b")`, 1},
		{"unclosed open", `(a | b`, `("a" OR "b")`, 1},
		{"only parens", `()`, `""`, 1},
		{"double and", `a && b`, `(("" AND "a") AND "b")`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, diags := ParseString(tt.input)
			require.NotNil(t, node)
			assert.Equal(t, tt.expected, node.String())
			assert.Len(t, diags, tt.diags)
			if tt.diags > 0 {
				assert.Error(t, diags.Err())
			} else {
				assert.NoError(t, diags.Err())
			}
		})
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	node, _ := ParseString(`alpha | beta & gamma`)

	assert.True(t, Evaluate(node, "beta gamma"))
	assert.True(t, Evaluate(node, "alpha"))
	assert.False(t, Evaluate(node, "beta"))
	assert.False(t, Evaluate(node, "gamma"))
}

func TestEvaluateGroupingAndNot(t *testing.T) {
	node, diags := ParseString(`("disk full" | "no space") & !write`)
	require.Empty(t, diags)

	assert.True(t, Evaluate(node, strings.ToLower("Error: disk full on /tmp")))
	assert.False(t, Evaluate(node, strings.ToLower("disk full during write operation")))
	assert.True(t, Evaluate(node, strings.ToLower("No space left on device")))
	assert.False(t, Evaluate(node, "all good"))
}

func TestEvaluateBlankLiteralNeverMatches(t *testing.T) {
	assert.False(t, Evaluate(Literal{}, ""))
	assert.False(t, Evaluate(Literal{Phrase: "   "}, "   "))
	assert.False(t, Evaluate(nil, "anything"))

	// the operand shift leaves a blank literal on the left of AND
	node, _ := ParseString(`a & !`)
	assert.False(t, Evaluate(node, "a"))

	node, _ = ParseString(`!`)
	assert.True(t, Evaluate(node, "anything"))
}

func TestEvaluateIgnoresPhraseCase(t *testing.T) {
	node, _ := ParseString(`"Kernel Panic"`)
	assert.True(t, Evaluate(node, "kernel panic - not syncing"))
}

func TestPhrases(t *testing.T) {
	node, _ := ParseString(`"Kernel panic" | "fatal exception" | !"KERNEL PANIC" | ""`)
	assert.Equal(t, []string{"kernel panic", "fatal exception"}, Phrases(node))
}

func TestIsMonotone(t *testing.T) {
	a, _ := ParseString(`a | (b & c)`)
	b, _ := ParseString(`a & !b`)
	assert.True(t, IsMonotone(a))
	assert.False(t, IsMonotone(b))
}
