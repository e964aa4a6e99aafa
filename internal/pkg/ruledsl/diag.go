package ruledsl

import (
	"fmt"
	"strings"
)

// Diagnostic is a warning produced while recovering from malformed input.
type Diagnostic struct {
	Pos     int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("col %d: %s", d.Pos+1, d.Message)
}

// Diagnostics is an ordered list of parse warnings. A non-empty list never
// means the expression is unusable.
type Diagnostics []Diagnostic

func (d *Diagnostics) add(pos int, format string, args ...any) {
	*d = append(*d, Diagnostic{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Err folds the diagnostics into a single error, or nil when there are none.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	return &SyntaxError{Diagnostics: d}
}

// SyntaxError carries the diagnostics of a leniently parsed expression.
type SyntaxError struct {
	Diagnostics Diagnostics
}

func (e *SyntaxError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return "rule expression: " + strings.Join(msgs, "; ")
}
