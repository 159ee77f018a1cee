// Package engine renders templates: literal text is copied, every code block
// is lowered and executed in its own scope under a shared global table.
package engine

import (
	"dumbo/pkg/ast"
	"dumbo/pkg/compiler"
	"dumbo/pkg/parser"
	"dumbo/pkg/symbol"
	"dumbo/pkg/vm"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Engine struct {
	root   *symbol.Table
	parser *parser.Parser

	// data files already loaded, by absolute path
	loaded map[string]bool

	logger zerolog.Logger
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		root:   symbol.New(),
		parser: parser.New(),
		loaded: make(map[string]bool),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Root returns the global table shared by every block.
func (e *Engine) Root() *symbol.Table {
	return e.root
}

// LoadData runs the blocks of a data template directly in the global
// scope, so what they declare is visible to every later render. Text
// outside the blocks is ignored.
func (e *Engine) LoadData(name, src string) error {
	tmpl, err := e.parser.ParseTemplate(name, src)
	if err != nil {
		return err
	}
	for i, block := range tmpl.Blocks() {
		e.logger.Debug().Str("data", name).Int("block", i).Msg("load block")
		if _, err := e.run(block, e.root); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// LoadDataFile loads a data file once. Loading the same path again is a
// no-op.
func (e *Engine) LoadDataFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if e.loaded[abs] {
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	if err := e.LoadData(path, string(content)); err != nil {
		return err
	}
	e.loaded[abs] = true
	return nil
}

func (e *Engine) Render(name, src string) (string, error) {
	tmpl, err := e.parser.ParseTemplate(name, src)
	if err != nil {
		return "", err
	}
	return e.RenderTemplate(tmpl)
}

func (e *Engine) RenderFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return e.Render(path, string(content))
}

// RenderTemplate copies text parts and runs each block in a fresh child of
// the global scope. The output of a failing block is kept up to the
// failure.
func (e *Engine) RenderTemplate(tmpl *ast.Template) (string, error) {
	var out strings.Builder
	block := 0
	for _, part := range tmpl.Parts {
		if part.Block == nil {
			if part.Text != nil {
				out.WriteString(*part.Text)
			}
			continue
		}

		e.logger.Debug().Int("block", block).Str("pos", part.Pos.String()).Msg("render block")
		out.WriteString(part.Block.Lead())
		scope := e.root.OpenChild()
		text, err := e.run(part.Block, scope)
		e.root.CloseChild(scope)
		out.WriteString(text)
		if err != nil {
			return out.String(), fmt.Errorf("block %d at %d:%d: %w", block, part.Pos.Line, part.Pos.Column, err)
		}
		block++
	}
	return out.String(), nil
}

// Exec runs bare code, without braces, in the global scope.
func (e *Engine) Exec(src string) (string, error) {
	program, err := e.parser.ParseProgram("exec", src)
	if err != nil {
		return "", err
	}
	return e.run(program.Block(), e.root)
}

// Compile lowers a block against scope without running it.
func (e *Engine) Compile(block ast.Node, scope *symbol.Table) (*compiler.Bytecode, error) {
	c := compiler.GetCompiler(scope, compiler.WithLogger(e.logger))
	defer compiler.PutCompiler(c)

	if err := c.Compile(block); err != nil {
		return nil, err
	}
	return c.Bytecode(), nil
}

func (e *Engine) run(block *ast.Block, scope *symbol.Table) (string, error) {
	defer closeOpenedSince(scope, len(scope.Children()))

	bytecode, err := e.Compile(block, scope)
	if err != nil {
		return "", err
	}

	machine := vm.New(bytecode, vm.WithLogger(e.logger))
	err = machine.Run()
	return machine.Output(), err
}

// closeOpenedSince drops the loop tables a block opened under scope.
func closeOpenedSince(scope *symbol.Table, n int) {
	opened := append([]*symbol.Table(nil), scope.Children()[n:]...)
	for _, child := range opened {
		scope.CloseChild(child)
	}
}
