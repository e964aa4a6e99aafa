package ruledsl

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenPhrase TokenType = iota
	TokenAnd
	TokenOr
	TokenNot
	TokenLParen
	TokenRParen
)

var tokenNames = map[TokenType]string{
	TokenPhrase: "Phrase",
	TokenAnd:    "And",
	TokenOr:     "Or",
	TokenNot:    "Not",
	TokenLParen: "LParen",
	TokenRParen: "RParen",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // byte offset in the expression
}

func (t Token) String() string {
	if t.Type == TokenPhrase {
		return fmt.Sprintf("Phrase(%s)", t.Value)
	}
	return t.Type.String()
}

// Lexer tokenizes rule expressions.
type Lexer struct {
	input string
	pos   int
	diags Diagnostics
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// NextToken returns the next token from the input. The second result is
// false once the input is exhausted.
func (l *Lexer) NextToken() (Token, bool) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{}, false
	}

	start := l.pos
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])

	switch r {
	case '&':
		l.pos += size
		return Token{Type: TokenAnd, Value: "&", Pos: start}, true
	case '|':
		l.pos += size
		return Token{Type: TokenOr, Value: "|", Pos: start}, true
	case '!', '！':
		l.pos += size
		return Token{Type: TokenNot, Value: "!", Pos: start}, true
	case '(':
		l.pos += size
		return Token{Type: TokenLParen, Value: "(", Pos: start}, true
	case ')':
		l.pos += size
		return Token{Type: TokenRParen, Value: ")", Pos: start}, true
	case '"':
		return l.readQuoted(), true
	}

	return l.readWord(), true
}

// Diagnostics returns the warnings collected so far.
func (l *Lexer) Diagnostics() Diagnostics {
	return l.diags
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

// readQuoted reads a double-quoted phrase verbatim. There are no escapes; an
// unterminated quote runs to the end of the input.
func (l *Lexer) readQuoted() Token {
	start := l.pos
	l.pos++ // skip opening quote
	end := strings.IndexByte(l.input[l.pos:], '"')
	if end < 0 {
		value := l.input[l.pos:]
		l.pos = len(l.input)
		l.diags.add(start, "unterminated quote, phrase runs to end of expression")
		return Token{Type: TokenPhrase, Value: value, Pos: start}
	}
	value := l.input[l.pos : l.pos+end]
	l.pos += end + 1
	return Token{Type: TokenPhrase, Value: value, Pos: start}
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if unicode.IsSpace(r) || isOperator(r) {
			break
		}
		l.pos += size
	}
	return Token{Type: TokenPhrase, Value: l.input[start:l.pos], Pos: start}
}

func isOperator(r rune) bool {
	switch r {
	case '&', '|', '!', '！', '(', ')', '"':
		return true
	}
	return false
}

// Tokenize splits an expression into tokens and inserts an implicit And
// between adjacent operands, so `"a" "b"` reads as `"a" & "b"`. It never
// fails; problems are reported as diagnostics.
func Tokenize(input string) ([]Token, Diagnostics) {
	l := NewLexer(input)
	var raw []Token
	for {
		tok, ok := l.NextToken()
		if !ok {
			break
		}
		raw = append(raw, tok)
	}
	return insertImplicitAnd(raw), l.Diagnostics()
}

func insertImplicitAnd(raw []Token) []Token {
	if len(raw) < 2 {
		return raw
	}
	out := make([]Token, 0, len(raw)+len(raw)/2)
	for i, tok := range raw {
		if i > 0 && closesValue(raw[i-1].Type) && opensValue(tok.Type) {
			out = append(out, Token{Type: TokenAnd, Value: "&", Pos: tok.Pos})
		}
		out = append(out, tok)
	}
	return out
}

func closesValue(t TokenType) bool {
	return t == TokenPhrase || t == TokenRParen
}

func opensValue(t TokenType) bool {
	return t == TokenPhrase || t == TokenLParen || t == TokenNot
}
