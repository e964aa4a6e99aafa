package engine

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	c := Preprocess("Alpha\nBETA\ngamma\n")

	assert.Equal(t, []string{"Alpha", "BETA", "gamma"}, c.Lines)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, c.LinesLower)
	assert.Equal(t, []int{5, 10}, c.NewlineOffsets)
	assert.Equal(t, 3, c.LineCount())
}

func TestPreprocessEmpty(t *testing.T) {
	c := Preprocess("")
	assert.Equal(t, []string{""}, c.Lines)
	assert.Empty(t, c.NewlineOffsets)
	assert.Equal(t, 1, c.LineOf(0))
}

func TestLineOf(t *testing.T) {
	c := Preprocess("a\nb\nc")

	assert.Equal(t, 1, c.LineOf(0))
	assert.Equal(t, 2, c.LineOf(1), "a newline belongs to the line after it")
	assert.Equal(t, 2, c.LineOf(2))
	assert.Equal(t, 3, c.LineOf(4))
}

func TestLineOfAgreesWithLinearCount(t *testing.T) {
	var b strings.Builder
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		b.WriteString(strings.Repeat("x", rng.Intn(40)))
		b.WriteString("\n")
	}
	text := b.String()
	c := Preprocess(text)
	require.Equal(t, 10000, c.LineCount())

	for i := 0; i < 100; i++ {
		pos := rng.Intn(len(text) - 1) // the trailing newline is not indexed
		naive := strings.Count(text[:pos+1], "\n") + 1
		assert.Equal(t, naive, c.LineOf(pos), "offset %d", pos)
	}
}

func TestLineStartAndWindow(t *testing.T) {
	c := Preprocess("l1\nl2\nl3\nl4\nl5\nl6")

	assert.Equal(t, 0, c.LineStart(1))
	assert.Equal(t, 3, c.LineStart(2))
	assert.Equal(t, 15, c.LineStart(6))

	assert.Equal(t, []string{"l1", "l2", "l3"}, c.Window(1, 2))
	assert.Equal(t, []string{"l2", "l3", "l4", "l5", "l6"}, c.Window(4, 2))
	assert.Equal(t, []string{"l6"}, c.Window(6, 0))
}
