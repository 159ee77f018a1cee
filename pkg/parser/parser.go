package parser

import (
	"dumbo/pkg/ast"
	"dumbo/pkg/lexer"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// ErrSyntax wraps every parse failure.
var ErrSyntax = errors.New("syntax error")

var (
	templateParser = participle.MustBuild[ast.Template](
		participle.Lexer(lexer.Template),
		participle.Elide("Whitespace"),
	)
	programParser = participle.MustBuild[ast.Program](
		participle.Lexer(lexer.Code),
		participle.Elide("Whitespace"),
	)
)

// Parser turns source text into an ast. It keeps the messages of every
// failed parse so a session can report them later.
type Parser struct {
	template *participle.Parser[ast.Template]
	program  *participle.Parser[ast.Program]
	errors   []string
}

func New() *Parser {
	return &Parser{
		template: templateParser,
		program:  programParser,
		errors:   []string{},
	}
}

// ParseTemplate parses text with embedded {{ ... }} blocks.
func (p *Parser) ParseTemplate(name, src string) (*ast.Template, error) {
	return p.ReadTemplate(name, strings.NewReader(src))
}

func (p *Parser) ReadTemplate(name string, r io.Reader) (*ast.Template, error) {
	tmpl, err := p.template.Parse(name, r)
	if err != nil {
		return nil, p.fail(err)
	}
	return tmpl, nil
}

// ParseProgram parses the statements of a single block given without braces.
func (p *Parser) ParseProgram(name, src string) (*ast.Program, error) {
	program, err := p.program.ParseString(name, src)
	if err != nil {
		return nil, p.fail(err)
	}
	return program, nil
}

func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) fail(err error) error {
	p.errors = append(p.errors, err.Error())
	return fmt.Errorf("%w: %w", ErrSyntax, err)
}

// TemplateGrammar returns the EBNF of the template grammar.
func TemplateGrammar() string {
	return templateParser.String()
}
