package engine

import (
	"sort"
	"strings"
)

// Content is the line index of one file. It is built once per analysis and
// shared read-only by every rule evaluated against it.
type Content struct {
	Text           string
	Lower          string
	Lines          []string
	LinesLower     []string
	NewlineOffsets []int
}

// Preprocess splits text into lines and records the offset of every
// newline except a trailing one after the final line.
func Preprocess(text string) *Content {
	c := &Content{Text: text, Lower: strings.ToLower(text)}

	body := strings.TrimSuffix(text, "\n")
	c.Lines = strings.Split(body, "\n")
	c.LinesLower = strings.Split(strings.TrimSuffix(c.Lower, "\n"), "\n")
	if len(c.LinesLower) != len(c.Lines) {
		// lowercasing never adds or removes newlines, but stay in step with Lines
		c.LinesLower = make([]string, len(c.Lines))
		for i, l := range c.Lines {
			c.LinesLower[i] = strings.ToLower(l)
		}
	}

	c.NewlineOffsets = make([]int, 0, len(c.Lines)-1)
	for i := 0; i < len(body); i++ {
		if body[i] == '\n' {
			c.NewlineOffsets = append(c.NewlineOffsets, i)
		}
	}
	return c
}

// LineCount returns the number of lines.
func (c *Content) LineCount() int {
	return len(c.Lines)
}

// LineOf maps a byte offset to its 1-based line number. A newline belongs
// to the line after it.
func (c *Content) LineOf(pos int) int {
	idx := sort.Search(len(c.NewlineOffsets), func(i int) bool {
		return c.NewlineOffsets[i] > pos
	})
	return idx + 1
}

// LineStart returns the offset of the first byte of a 1-based line.
func (c *Content) LineStart(line int) int {
	if line <= 1 {
		return 0
	}
	if line-2 >= len(c.NewlineOffsets) {
		return len(c.Text)
	}
	return c.NewlineOffsets[line-2] + 1
}

// Window returns lines [line-n, line+n], clipped to the content.
func (c *Content) Window(line, n int) []string {
	from := line - 1 - n
	if from < 0 {
		from = 0
	}
	to := line + n
	if to > len(c.Lines) {
		to = len(c.Lines)
	}
	if from >= to {
		return nil
	}
	return c.Lines[from:to]
}
