// Package ast holds the typed tree produced by the parser. The struct tags
// are the grammar.
package ast

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

type Node interface {
	Position() lexer.Position
	String() string
}

type Statement interface {
	Node
	statementNode()
}

type Expression interface {
	Node
	expressionNode()
}

// Template is literal text interleaved with code blocks.
type Template struct {
	Pos   lexer.Position
	Parts []*Part `@@*`
}

func (t *Template) Position() lexer.Position { return t.Pos }
func (t *Template) String() string {
	var out bytes.Buffer
	for _, p := range t.Parts {
		out.WriteString(p.String())
	}
	return out.String()
}

// Blocks returns the code blocks of the template in source order.
func (t *Template) Blocks() []*Block {
	var blocks []*Block
	for _, p := range t.Parts {
		if p.Block != nil {
			blocks = append(blocks, p.Block)
		}
	}
	return blocks
}

type Part struct {
	Pos   lexer.Position
	Text  *string `  @Text`
	Block *Block  `| @@`
}

func (p *Part) Position() lexer.Position { return p.Pos }
func (p *Part) String() string {
	if p.Block != nil {
		return p.Block.String()
	}
	if p.Text != nil {
		return *p.Text
	}
	return ""
}

type Block struct {
	Pos        lexer.Position
	Open       string  `( "{{" | @BraceRun )`
	Statements []*Stmt `@@* "}}"`
}

// Lead returns the braces in front of the block opener, which are text.
func (b *Block) Lead() string {
	if len(b.Open) <= 2 {
		return ""
	}
	return b.Open[:len(b.Open)-2]
}

func (b *Block) Position() lexer.Position { return b.Pos }
func (b *Block) String() string {
	var out bytes.Buffer
	out.WriteString(b.Lead())
	out.WriteString("{{ ")
	for _, s := range b.Statements {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("}}")
	return out.String()
}

// Program is a bare statement list, a block without its braces.
type Program struct {
	Pos        lexer.Position
	Statements []*Stmt `@@*`
}

func (p *Program) Position() lexer.Position { return p.Pos }
func (p *Program) String() string {
	parts := make([]string, 0, len(p.Statements))
	for _, s := range p.Statements {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n")
}

// Block wraps the program in a block positioned like the program.
func (p *Program) Block() *Block {
	return &Block{Pos: p.Pos, Statements: p.Statements}
}

// Statements

// Stmt is one statement of a block. Exactly one alternative is set.
type Stmt struct {
	Pos    lexer.Position
	Print  *PrintStatement  `  @@`
	For    *ForStatement    `| @@`
	If     *IfStatement     `| @@`
	Assign *AssignStatement `| @@`
}

func (s *Stmt) Position() lexer.Position { return s.Pos }
func (s *Stmt) String() string {
	if n := s.Node(); n != nil {
		return n.String()
	}
	return ""
}

// Node returns the statement alternative that was parsed.
func (s *Stmt) Node() Statement {
	switch {
	case s.Print != nil:
		return s.Print
	case s.For != nil:
		return s.For
	case s.If != nil:
		return s.If
	case s.Assign != nil:
		return s.Assign
	}
	return nil
}

type PrintStatement struct {
	Pos   lexer.Position
	Value *BoolExpression `"print" @@ ";"`
}

func (ps *PrintStatement) statementNode()           {}
func (ps *PrintStatement) Position() lexer.Position { return ps.Pos }
func (ps *PrintStatement) String() string {
	return "print " + ps.Value.String() + ";"
}

type AssignStatement struct {
	Pos   lexer.Position
	Name  string          `@Ident ":="`
	Value *BoolExpression `@@ ";"`
}

func (as *AssignStatement) statementNode()           {}
func (as *AssignStatement) Position() lexer.Position { return as.Pos }
func (as *AssignStatement) String() string {
	return as.Name + " := " + as.Value.String() + ";"
}

type ForStatement struct {
	Pos      lexer.Position
	Iterator string          `"for" @Ident "in"`
	Value    *BoolExpression `@@ "do"`
	Body     []*Stmt         `@@* "endfor" ";"?`
}

func (fs *ForStatement) statementNode()           {}
func (fs *ForStatement) Position() lexer.Position { return fs.Pos }
func (fs *ForStatement) String() string {
	var out bytes.Buffer
	out.WriteString("for ")
	out.WriteString(fs.Iterator)
	out.WriteString(" in ")
	out.WriteString(fs.Value.String())
	out.WriteString(" do ")
	for _, s := range fs.Body {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("endfor;")
	return out.String()
}

type IfStatement struct {
	Pos       lexer.Position
	Condition *BoolExpression `"if" @@ "do"`
	Body      []*Stmt         `@@* "endif" ";"?`
}

func (is *IfStatement) statementNode()           {}
func (is *IfStatement) Position() lexer.Position { return is.Pos }
func (is *IfStatement) String() string {
	var out bytes.Buffer
	out.WriteString("if ")
	out.WriteString(is.Condition.String())
	out.WriteString(" do ")
	for _, s := range is.Body {
		out.WriteString(s.String())
		out.WriteString(" ")
	}
	out.WriteString("endif;")
	return out.String()
}

// Expressions, loosest binding first.

// BoolExpression is a chain of "or" operands.
type BoolExpression struct {
	Pos   lexer.Position
	Left  *Conjunction   `@@`
	Right []*Conjunction `( "or" @@ )*`
}

func (be *BoolExpression) expressionNode()          {}
func (be *BoolExpression) Position() lexer.Position { return be.Pos }
func (be *BoolExpression) String() string {
	parts := []string{be.Left.String()}
	for _, r := range be.Right {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " or ")
}

// Conjunction is a chain of "and" operands.
type Conjunction struct {
	Pos   lexer.Position
	Left  *Comparison   `@@`
	Right []*Comparison `( "and" @@ )*`
}

func (c *Conjunction) expressionNode()          {}
func (c *Conjunction) Position() lexer.Position { return c.Pos }
func (c *Conjunction) String() string {
	parts := []string{c.Left.String()}
	for _, r := range c.Right {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " and ")
}

type Comparison struct {
	Pos      lexer.Position
	Left     *StringExpression `@@`
	Operator string            `( @( "<=" | ">=" | "!=" | "<" | ">" | "=" )`
	Right    *StringExpression `  @@ )?`
}

func (c *Comparison) expressionNode()          {}
func (c *Comparison) Position() lexer.Position { return c.Pos }
func (c *Comparison) String() string {
	if c.Right == nil {
		return c.Left.String()
	}
	return c.Left.String() + " " + c.Operator + " " + c.Right.String()
}

// StringExpression is a chain of segments joined with ".".
type StringExpression struct {
	Pos      lexer.Position
	Segments []*Arithmetic `@@ ( "." @@ )*`
}

func (se *StringExpression) expressionNode()          {}
func (se *StringExpression) Position() lexer.Position { return se.Pos }
func (se *StringExpression) String() string {
	parts := make([]string, 0, len(se.Segments))
	for _, s := range se.Segments {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " . ")
}

// Arithmetic is a left-associative chain of "+" and "-".
type Arithmetic struct {
	Pos   lexer.Position
	Left  *Term         `@@`
	Right []*TermSuffix `@@*`
}

func (a *Arithmetic) expressionNode()          {}
func (a *Arithmetic) Position() lexer.Position { return a.Pos }
func (a *Arithmetic) String() string {
	var out bytes.Buffer
	out.WriteString(a.Left.String())
	for _, r := range a.Right {
		out.WriteString(" " + r.Operator + " ")
		out.WriteString(r.Term.String())
	}
	return out.String()
}

type TermSuffix struct {
	Pos      lexer.Position
	Operator string `@( "+" | "-" )`
	Term     *Term  `@@`
}

// Term is a left-associative chain of "*" and "/".
type Term struct {
	Pos   lexer.Position
	Left  *Unary          `@@`
	Right []*FactorSuffix `@@*`
}

func (t *Term) expressionNode()          {}
func (t *Term) Position() lexer.Position { return t.Pos }
func (t *Term) String() string {
	var out bytes.Buffer
	out.WriteString(t.Left.String())
	for _, r := range t.Right {
		out.WriteString(" " + r.Operator + " ")
		out.WriteString(r.Factor.String())
	}
	return out.String()
}

type FactorSuffix struct {
	Pos      lexer.Position
	Operator string `@( "*" | "/" )`
	Factor   *Unary `@@`
}

type Unary struct {
	Pos     lexer.Position
	Negate  bool     `@"-"?`
	Operand *Primary `@@`
}

func (u *Unary) expressionNode()          {}
func (u *Unary) Position() lexer.Position { return u.Pos }
func (u *Unary) String() string {
	if u.Negate {
		return "-" + u.Operand.String()
	}
	return u.Operand.String()
}

type Primary struct {
	Pos      lexer.Position
	Int      *int64   `  @Int`
	Str      *Quoted  `| @String`
	Bool     *Boolean `| @( "true" | "false" )`
	Variable *string  `| @Ident`
	Group    *Group   `| @@`
}

func (p *Primary) expressionNode()          {}
func (p *Primary) Position() lexer.Position { return p.Pos }
func (p *Primary) String() string {
	switch {
	case p.Int != nil:
		return strconv.FormatInt(*p.Int, 10)
	case p.Str != nil:
		return "'" + string(*p.Str) + "'"
	case p.Bool != nil:
		return strconv.FormatBool(bool(*p.Bool))
	case p.Variable != nil:
		return *p.Variable
	case p.Group != nil:
		return p.Group.String()
	}
	return ""
}

// Group is a parenthesised expression when it holds one item and a list
// literal otherwise.
type Group struct {
	Pos   lexer.Position
	Items []*BoolExpression `"(" @@ ( "," @@ )* ")"`
}

func (g *Group) expressionNode()          {}
func (g *Group) Position() lexer.Position { return g.Pos }
func (g *Group) String() string {
	parts := make([]string, 0, len(g.Items))
	for _, i := range g.Items {
		parts = append(parts, i.String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (g *Group) IsList() bool { return len(g.Items) > 1 }

// Quoted is a string literal with its quotes stripped.
type Quoted string

func (q *Quoted) Capture(values []string) error {
	*q = Quoted(strings.ReplaceAll(strings.Join(values, ""), "'", ""))
	return nil
}

type Boolean bool

func (b *Boolean) Capture(values []string) error {
	*b = values[0] == "true"
	return nil
}
