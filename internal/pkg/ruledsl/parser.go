package ruledsl

// Operator precedence for the shunting-yard pass.
var precedence = map[TokenType]int{
	TokenNot: 3,
	TokenAnd: 2,
	TokenOr:  1,
}

// Parser converts a token stream into an AST. It never fails: missing
// operands become blank literals and stray parentheses are dropped, each
// recovery leaving a diagnostic behind.
type Parser struct {
	tokens []Token
	diags  Diagnostics
}

// ParseString tokenizes and parses an expression.
func ParseString(input string) (Node, Diagnostics) {
	tokens, diags := Tokenize(input)
	node, parseDiags := Parse(tokens)
	return node, append(diags, parseDiags...)
}

// Parse parses a token stream and returns the AST root node. An empty
// stream yields a blank literal, which never matches.
func Parse(tokens []Token) (Node, Diagnostics) {
	p := &Parser{tokens: tokens}
	rpn := p.toRPN()
	return p.reduce(rpn), p.diags
}

// toRPN reorders the tokens into reverse polish notation. Not is a prefix
// operator; And and Or are left-associative.
func (p *Parser) toRPN() []Token {
	var out, ops []Token

	for _, tok := range p.tokens {
		switch tok.Type {
		case TokenPhrase:
			out = append(out, tok)

		case TokenNot, TokenLParen:
			ops = append(ops, tok)

		case TokenAnd, TokenOr:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.Type == TokenLParen || precedence[top.Type] < precedence[tok.Type] {
					break
				}
				out = append(out, top)
				ops = ops[:len(ops)-1]
			}
			ops = append(ops, tok)

		case TokenRParen:
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.Type == TokenLParen {
					matched = true
					break
				}
				out = append(out, top)
			}
			if !matched {
				p.diags.add(tok.Pos, "unmatched ')' ignored")
			}
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.Type == TokenLParen {
			p.diags.add(top.Pos, "unclosed '(' dropped")
			continue
		}
		out = append(out, top)
	}

	return out
}

func (p *Parser) reduce(rpn []Token) Node {
	var stack []Node

	pop := func(op Token) Node {
		if len(stack) == 0 {
			p.diags.add(op.Pos, "missing operand for %s", op.Type)
			return Literal{}
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return n
	}

	for _, tok := range rpn {
		switch tok.Type {
		case TokenPhrase:
			stack = append(stack, Literal{Phrase: tok.Value})
		case TokenNot:
			stack = append(stack, NotExpr{Expr: pop(tok)})
		case TokenAnd, TokenOr:
			right := pop(tok)
			left := pop(tok)
			op := OpAnd
			if tok.Type == TokenOr {
				op = OpOr
			}
			stack = append(stack, BinaryExpr{Op: op, Left: left, Right: right})
		}
	}

	if len(stack) == 0 {
		if len(p.tokens) > 0 {
			p.diags.add(0, "expression has no operands")
		}
		return Literal{}
	}

	root := stack[0]
	if len(stack) > 1 {
		p.diags.add(0, "%d dangling operands joined with AND", len(stack)-1)
		for _, n := range stack[1:] {
			root = BinaryExpr{Op: OpAnd, Left: root, Right: n}
		}
	}
	return root
}
