package ruledsl

import (
	"strconv"
	"strings"
)

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
	String() string
}

const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// BinaryExpr represents a binary logical expression (AND, OR).
type BinaryExpr struct {
	Op    string // "AND" or "OR"
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

func (b BinaryExpr) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

// Literal matches when its phrase occurs in the text, ignoring case.
// A blank phrase never matches.
type Literal struct {
	Phrase string
}

func (Literal) node() {}

func (l Literal) String() string {
	return strconv.Quote(l.Phrase)
}

// Blank reports whether the literal can never match.
func (l Literal) Blank() bool {
	return strings.TrimSpace(l.Phrase) == ""
}

// NotExpr represents a NOT expression that negates its inner expression.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}

func (n NotExpr) String() string {
	return "NOT " + n.Expr.String()
}

// Phrases returns the distinct non-blank phrases of the tree, lowercased,
// in first-seen order.
func Phrases(node Node) []string {
	var out []string
	seen := make(map[string]bool)
	walk(node, func(l Literal) {
		if l.Blank() {
			return
		}
		p := strings.ToLower(l.Phrase)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	})
	return out
}

// IsMonotone reports whether the tree contains no negation. A monotone tree
// cannot be true for a text in which none of its phrases occur.
func IsMonotone(node Node) bool {
	switch n := node.(type) {
	case NotExpr:
		return false
	case BinaryExpr:
		return IsMonotone(n.Left) && IsMonotone(n.Right)
	default:
		return true
	}
}

func walk(node Node, fn func(Literal)) {
	switch n := node.(type) {
	case Literal:
		fn(n)
	case NotExpr:
		walk(n.Expr, fn)
	case BinaryExpr:
		walk(n.Left, fn)
		walk(n.Right, fn)
	}
}
