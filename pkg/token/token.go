package token

import "fmt"

// TokenType names double as the lexer rule names.
type TokenType string

const (
	// Special
	ILLEGAL    = "Illegal"
	EOF        = "EOF"
	WHITESPACE = "Whitespace"

	// Template
	TEXT        = "Text"
	BLOCK_START = "BlockStart"
	BRACE_RUN   = "BraceRun"
	BLOCK_END   = "BlockEnd"

	// Identifiers & Literals
	IDENT   = "Ident"
	INT     = "Int"
	STRING  = "String"
	KEYWORD = "Keyword"

	// Operators & Delimiters
	OPERATOR = "Operator"
)

// Operator and delimiter literals.
const (
	ASSIGN    = ":="
	PLUS      = "+"
	MINUS     = "-"
	ASTERISK  = "*"
	SLASH     = "/"
	DOT       = "."
	COMMA     = ","
	SEMICOLON = ";"
	LPAREN    = "("
	RPAREN    = ")"

	LT     = "<"
	GT     = ">"
	EQ     = "="
	NOT_EQ = "!="
	LTE    = "<="
	GTE    = ">="
)

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("Token(%s, %q, %d:%d)", t.Type, t.Literal, t.Line, t.Column)
}

var keywords = map[string]bool{
	"print":  true,
	"for":    true,
	"in":     true,
	"do":     true,
	"endfor": true,
	"if":     true,
	"endif":  true,
	"and":    true,
	"or":     true,
	"true":   true,
	"false":  true,
}

func IsKeyword(ident string) bool {
	return keywords[ident]
}

// Keywords returns the reserved words in no particular order.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}

func LookupIdent(ident string) TokenType {
	if keywords[ident] {
		return KEYWORD
	}
	return IDENT
}
