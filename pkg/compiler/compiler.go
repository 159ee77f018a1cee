package compiler

import (
	"dumbo/pkg/ast"
	"dumbo/pkg/object"
	"dumbo/pkg/opcode"
	"dumbo/pkg/symbol"
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUndefinedName  = errors.New("undefined name")
	ErrDivisionByZero = errors.New("division by zero")
	ErrNested         = errors.New("nested control structure")
	ErrLoopVariable   = errors.New("assignment to loop variable")
	ErrUnknownValue   = errors.New("value not known while lowering")
)

// Bytecode is a lowered block: the instructions and the table the block
// was lowered against.
type Bytecode struct {
	Instructions opcode.Instructions
	Scope        *symbol.Table
}

// Compiler lowers the statements of a block into a flat instruction
// stream. Expressions are folded while lowering; only statements emit.
type Compiler struct {
	stream *opcode.Stream

	// base is the table the block was handed; scope is the active one.
	base  *symbol.Table
	scope *symbol.Table

	// Lowering-time values of names declared before this block. The tables
	// themselves only change when the instructions run.
	outer map[string]*object.Variable
	// names this block declared in base
	fresh map[string]bool

	// Bodies that may not run, innermost last.
	branches []*branch
	// Names whose value depends on a body that may not have run.
	uncertain map[string]bool
	// Alias targets a name may still hold at run time besides its binding.
	maybe     map[string][]string
	iterators map[string]bool

	loopVar string
	inLoop  bool
	inIf    bool

	logger zerolog.Logger
}

type Option func(*Compiler)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

func New(scope *symbol.Table, opts ...Option) *Compiler {
	c := &Compiler{
		stream: opcode.NewStream(),
		outer:     make(map[string]*object.Variable),
		fresh:     make(map[string]bool),
		uncertain: make(map[string]bool),
		maybe:     make(map[string][]string),
		iterators: make(map[string]bool),
		logger:    log.Logger,
	}
	c.reset(scope)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) reset(scope *symbol.Table) {
	c.stream.Reset()
	c.base = scope
	c.scope = scope
	clear(c.outer)
	clear(c.fresh)
	clear(c.uncertain)
	clear(c.maybe)
	clear(c.iterators)
	c.branches = nil
	c.loopVar = ""
	c.inLoop = false
	c.inIf = false
}

func (c *Compiler) Bytecode() *Bytecode {
	return &Bytecode{
		Instructions: c.stream.Instructions(),
		Scope:        c.base,
	}
}

func (c *Compiler) Compile(node ast.Node) error {
	switch node := node.(type) {
	case *ast.Program:
		return c.compileStatements(node.Statements)

	case *ast.Block:
		return c.compileStatements(node.Statements)

	case *ast.Stmt:
		stmt := node.Node()
		if stmt == nil {
			return fmt.Errorf("%s: empty statement", at(node.Pos))
		}
		return c.Compile(stmt)

	case *ast.PrintStatement:
		v, err := c.fold(node.Value)
		if err != nil {
			return err
		}
		if err := c.use(v, node.Pos); err != nil {
			return err
		}
		c.emit(opcode.Print(c.alias(v)))

	case *ast.AssignStatement:
		return c.compileAssign(node)

	case *ast.ForStatement:
		if c.inLoop {
			return fmt.Errorf("%s: %w: for inside for", at(node.Pos), ErrNested)
		}
		start, name, guarded, err := c.loopHeader(node)
		if err != nil {
			return err
		}
		if err := c.compileStatements(node.Body); err != nil {
			return err
		}
		c.loopFooter(start, name, guarded)

	case *ast.IfStatement:
		if c.inIf {
			return fmt.Errorf("%s: %w: if inside if", at(node.Pos), ErrNested)
		}
		cond, err := c.fold(node.Condition)
		if err != nil {
			return err
		}
		if err := c.use(cond, node.Pos); err != nil {
			return err
		}

		c.inIf = true
		c.emit(opcode.If(c.alias(cond)))
		taken, known := c.decided(cond)
		guarded := !known || !taken
		if guarded {
			c.enterBranch(known)
		}
		if err := c.compileStatements(node.Body); err != nil {
			return err
		}
		c.emit(opcode.EndIf())
		if guarded {
			c.leaveBranch()
		}
		c.inIf = false

	default:
		return fmt.Errorf("cannot lower %T", node)
	}

	return nil
}

func (c *Compiler) compileStatements(stmts []*ast.Stmt) error {
	for _, s := range stmts {
		if err := c.Compile(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileAssign(node *ast.AssignStatement) error {
	if c.inLoop && node.Name == c.loopVar {
		return fmt.Errorf("%s: %w: %s", at(node.Pos), ErrLoopVariable, node.Name)
	}

	v, err := c.fold(node.Value)
	if err != nil {
		return err
	}
	if err := c.use(v, node.Pos); err != nil {
		return err
	}

	if v.IsAnonymous() {
		binding := object.Named(node.Name, copyValue(v.Value))
		c.bind(binding)
		c.emit(opcode.Assign(binding))
		return nil
	}

	binding := object.Named(node.Name, &object.Reference{Target: v.Name})
	view := binding
	unknown := false
	certain, possible := c.cycle(node.Name, v.Name)
	switch {
	case certain:
		if target, err := c.follow(v); err == nil {
			binding = object.Named(node.Name, copyValue(target.Value))
			view = binding
		} else {
			unknown = true
		}
	case possible:
		// The machine decides when the assignment runs.
		unknown = true
	case !c.outlives(v.Name, node.Name):
		// The machine stores the value, as the target goes away first.
		target, err := c.follow(v)
		switch {
		case err != nil:
			unknown = true
		case target.Kind() != object.KindForList:
			view = object.Named(node.Name, copyValue(target.Value))
		}
	}

	c.bind(view)
	if unknown {
		c.uncertain[node.Name] = true
	}
	if ref, ok := binding.Value.(*object.Reference); ok && len(c.branches) > 0 {
		b := c.branches[len(c.branches)-1]
		b.aliases[node.Name] = append(b.aliases[node.Name], ref.Target)
	}
	c.emit(opcode.Assign(binding))
	return nil
}

// bind makes binding visible to the folds that follow it.
func (c *Compiler) bind(binding *object.Variable) {
	name := binding.Name
	if n := len(c.branches); n > 0 {
		c.branches[n-1].save(name, c)
	} else {
		delete(c.maybe, name)
	}
	delete(c.uncertain, name)
	c.setView(binding)
}

func (c *Compiler) setView(binding *object.Variable) {
	owner := c.scope.Owner(binding.Name)
	switch {
	case owner == nil:
		c.scope.Define(binding.Name, binding)
		if c.scope == c.base {
			c.fresh[binding.Name] = true
		}
	case c.declaredBefore(binding.Name, owner):
		c.outer[binding.Name] = binding
	default:
		owner.Replace(binding.Name, binding)
	}
}

func (c *Compiler) declaredBefore(name string, owner *symbol.Table) bool {
	return owner.Encloses(c.base) && !c.fresh[name]
}

// outlives reports whether target is declared in a table that lasts at
// least as long as the one name is bound in.
func (c *Compiler) outlives(target, name string) bool {
	owner := c.scope.Owner(name)
	if owner == nil {
		owner = c.scope
	}
	t := c.scope.Owner(target)
	return t == nil || t.Encloses(owner)
}

// cycle reports whether aliasing name to target lets a reference chain
// reach name again. certain is set when every name on the chain is bound
// the same way while lowering and at run time.
func (c *Compiler) cycle(name, target string) (certain, possible bool) {
	certain = c.reaches(target, name, false)
	return certain, certain || c.reaches(target, name, true)
}

// reaches walks reference chains from "from". With all set it also walks
// the aliases a branch may have left behind.
func (c *Compiler) reaches(from, name string, all bool) bool {
	seen := make(map[string]bool)
	pending := []string{from}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if cur == name {
			return true
		}
		if seen[cur] || (!all && c.uncertain[cur]) {
			continue
		}
		seen[cur] = true

		if v, err := c.resolve(cur); err == nil {
			if ref, ok := v.Value.(*object.Reference); ok {
				pending = append(pending, ref.Target)
			}
		}
		if all {
			pending = append(pending, c.maybe[cur]...)
			for _, b := range c.branches {
				pending = append(pending, b.aliases[cur]...)
			}
		}
	}
	return false
}

func (c *Compiler) loopHeader(node *ast.ForStatement) (int, string, bool, error) {
	iterable, err := c.fold(node.Value)
	if err != nil {
		return 0, "", false, err
	}
	if err := c.use(iterable, node.Pos); err != nil {
		return 0, "", false, err
	}
	runs, known := c.loopRuns(iterable)

	child := c.scope.OpenChild()
	loopVar := object.Named(node.Iterator, object.NewIterable([]*object.Variable{object.Undefined(node.Iterator)}))
	child.Define(node.Iterator, loopVar)

	start := c.emit(opcode.LoopStart(loopVar, c.alias(iterable), child))

	c.scope = child
	c.inLoop = true
	c.loopVar = node.Iterator
	c.iterators[node.Iterator] = true

	guarded := !known || !runs
	if guarded {
		c.enterBranch(known)
	}
	return start, node.Iterator, guarded, nil
}

func (c *Compiler) loopFooter(start int, name string, guarded bool) {
	c.emit(opcode.LoopEnd(start, name))
	if guarded {
		c.leaveBranch()
	}
	c.scope = c.scope.Parent()
	c.inLoop = false
	c.loopVar = ""
}

func (c *Compiler) emit(ins opcode.Instruction) int {
	pos := c.stream.Emit(ins)
	c.logger.Debug().Int("pos", pos).Str("op", ins.Op.String()).Msg("emit")
	return pos
}

// Resolve looks name up for a fold. A name a skipped body may have changed
// and a loop variable out of scope have no value while lowering.
func (c *Compiler) Resolve(name string) (*object.Variable, error) {
	if c.uncertain[name] {
		return nil, fmt.Errorf("%w: %s is set in a branch that may not run", ErrUnknownValue, name)
	}
	v, err := c.resolve(name)
	if err != nil && c.iterators[name] {
		return nil, fmt.Errorf("%w: loop variable %s has no value while lowering", object.ErrTypeMismatch, name)
	}
	return v, err
}

// resolve looks name up the way the table sees it: lowering-time values of
// outer names first, then the active scope chain.
func (c *Compiler) resolve(name string) (*object.Variable, error) {
	if owner := c.scope.Owner(name); owner != nil && c.declaredBefore(name, owner) {
		if v, ok := c.outer[name]; ok {
			return v, nil
		}
	}
	return c.scope.Resolve(name)
}

// follow resolves v to the value a fold may use. v itself may be a name
// without a known value.
func (c *Compiler) follow(v *object.Variable) (*object.Variable, error) {
	if !v.IsAnonymous() {
		if _, err := c.Resolve(v.Name); err != nil {
			return nil, err
		}
	}
	return object.Follow(v, c)
}

// lookup returns the variable bound to name or an unresolved placeholder.
func (c *Compiler) lookup(name string) *object.Variable {
	v, err := c.resolve(name)
	if err != nil {
		return object.Undefined(name)
	}
	return v
}

// use rejects a variable that is consumed before anything declared it.
func (c *Compiler) use(v *object.Variable, pos lexer.Position) error {
	if v.Kind() == object.KindUnresolved {
		return fmt.Errorf("%s: %w: %s", at(pos), ErrUndefinedName, v.Name)
	}
	return nil
}

// alias turns a named variable into a reference to it. Anonymous values
// pass through.
func (c *Compiler) alias(v *object.Variable) *object.Variable {
	if v.IsAnonymous() {
		return v
	}
	return object.Ref(v.Name)
}

func copyValue(v object.Value) object.Value {
	if it, ok := v.(*object.Iterable); ok {
		return it.Clone()
	}
	return v
}

func at(pos lexer.Position) string {
	return fmt.Sprintf("%d:%d", pos.Line, pos.Column)
}
