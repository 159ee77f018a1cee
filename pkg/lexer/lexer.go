// Package lexer defines the token rules of templates and bare code blocks.
package lexer

import (
	"dumbo/pkg/token"
	"regexp"
	"sort"
	"strings"

	plexer "github.com/alecthomas/participle/v2/lexer"
)

// Template lexes literal text with embedded {{ ... }} blocks.
var Template = plexer.MustStateful(plexer.Rules{
	"Root": {
		// in a run of three or more braces the last two open the block
		{Name: token.BRACE_RUN, Pattern: `\{\{\{+`, Action: plexer.Push("Block")},
		{Name: token.BLOCK_START, Pattern: `\{\{`, Action: plexer.Push("Block")},
		// a lone '{' is text, "{{" opens a block
		{Name: token.TEXT, Pattern: `(?:[^{]|\{[^{]|\{$)+`},
	},
	"Block": codeRules(true),
})

// Code lexes the inside of a block without the surrounding braces.
var Code = plexer.MustStateful(plexer.Rules{
	"Root": codeRules(false),
})

func codeRules(closable bool) []plexer.Rule {
	var rules []plexer.Rule
	if closable {
		rules = append(rules, plexer.Rule{Name: token.BLOCK_END, Pattern: `\}\}`, Action: plexer.Pop()})
	}
	return append(rules,
		plexer.Rule{Name: token.WHITESPACE, Pattern: `\s+`},
		plexer.Rule{Name: token.STRING, Pattern: `'[^']*'`},
		plexer.Rule{Name: token.INT, Pattern: `[0-9]+`},
		plexer.Rule{Name: token.KEYWORD, Pattern: keywordPattern()},
		plexer.Rule{Name: token.IDENT, Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		plexer.Rule{Name: token.OPERATOR, Pattern: `:=|<=|>=|!=|[-+*/<>=.,;()]`},
	)
}

func keywordPattern() string {
	words := token.Keywords()
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return `\b(?:` + strings.Join(words, "|") + `)\b`
}

// Tokenize runs def over src and returns the tokens without whitespace,
// terminated by an EOF token.
func Tokenize(def plexer.Definition, filename, src string) ([]token.Token, error) {
	lex, err := def.Lex(filename, strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	names := plexer.SymbolsByRune(def)

	var tokens []token.Token
	for {
		t, err := lex.Next()
		if err != nil {
			return tokens, err
		}
		if t.EOF() {
			tokens = append(tokens, token.Token{Type: token.EOF, Line: t.Pos.Line, Column: t.Pos.Column})
			return tokens, nil
		}
		typ := token.TokenType(names[t.Type])
		if typ == token.WHITESPACE {
			continue
		}
		tokens = append(tokens, token.Token{
			Type:    typ,
			Literal: t.Value,
			Line:    t.Pos.Line,
			Column:  t.Pos.Column,
		})
	}
}
