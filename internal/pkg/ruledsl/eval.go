package ruledsl

import (
	"strings"
)

// Evaluate reports whether the expression holds for text, which the caller
// has already lowercased. A nil node never matches.
func Evaluate(node Node, lowerText string) bool {
	switch n := node.(type) {
	case Literal:
		return evalLiteral(n, lowerText)
	case NotExpr:
		return !Evaluate(n.Expr, lowerText)
	case BinaryExpr:
		return evalBinary(n, lowerText)
	default:
		return false
	}
}

func evalBinary(expr BinaryExpr, lowerText string) bool {
	switch expr.Op {
	case OpAnd:
		return Evaluate(expr.Left, lowerText) && Evaluate(expr.Right, lowerText)
	case OpOr:
		return Evaluate(expr.Left, lowerText) || Evaluate(expr.Right, lowerText)
	default:
		return false
	}
}

func evalLiteral(lit Literal, lowerText string) bool {
	if lit.Blank() {
		return false
	}
	return strings.Contains(lowerText, strings.ToLower(lit.Phrase))
}
