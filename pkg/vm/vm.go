package vm

import (
	"dumbo/pkg/compiler"
	"dumbo/pkg/object"
	"dumbo/pkg/opcode"
	"dumbo/pkg/symbol"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotIterable is returned when a loop walks something that is not a list.
var ErrNotIterable = errors.New("not iterable")

type VM struct {
	instructions opcode.Instructions
	ip           int
	scope        *symbol.Table

	out    strings.Builder
	logger zerolog.Logger
}

type Option func(*VM)

func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VM) {
		vm.logger = logger
	}
}

func New(bytecode *compiler.Bytecode, opts ...Option) *VM {
	vm := &VM{logger: log.Logger}
	vm.Reset(bytecode)
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Output returns everything printed so far, including the output of a run
// that failed part way.
func (vm *VM) Output() string {
	return vm.out.String()
}

// Scope returns the table the next instruction resolves names in.
func (vm *VM) Scope() *symbol.Table {
	return vm.scope
}

func (vm *VM) Run() error {
	ins := vm.instructions

	for vm.ip < len(ins) {
		in := ins[vm.ip]
		vm.logger.Trace().
			Int("ip", vm.ip).
			Stringer("ins", in).
			Int("depth", vm.scope.Depth()).
			Msg("step")

		switch in.Op {
		case opcode.OpPrint:
			s, err := object.Render(in.Var, vm.scope)
			if err != nil {
				return vm.fail(in, err)
			}
			vm.out.WriteString(s)
			vm.out.WriteByte('\n')
			vm.ip++

		case opcode.OpAssign:
			binding, err := vm.binding(in.Var)
			if err != nil {
				return vm.fail(in, err)
			}
			if err := vm.scope.Replace(binding.Name, binding); err != nil {
				return vm.fail(in, err)
			}
			vm.ip++

		case opcode.OpLoopStart:
			list, err := vm.iterable(in.Iterable)
			if err != nil {
				return vm.fail(in, err)
			}
			if len(list.Elements) == 0 {
				end, err := vm.find(vm.ip+1, func(next opcode.Instruction) bool {
					return next.Op == opcode.OpLoopEnd && next.Start == vm.ip
				})
				if err != nil {
					return vm.fail(in, err)
				}
				vm.ip = end + 1
				continue
			}

			vm.scope = in.Scope
			name := in.Var.Name
			if err := vm.scope.Replace(name, object.Named(name, object.NewIterable(list.Elements))); err != nil {
				return vm.fail(in, err)
			}
			vm.ip++

		case opcode.OpLoopEnd:
			v, err := vm.scope.Resolve(in.LoopVar)
			if err != nil {
				return vm.fail(in, err)
			}
			it, ok := v.Value.(*object.Iterable)
			if !ok {
				return vm.fail(in, fmt.Errorf("%w: loop variable %s is %s", object.ErrTypeMismatch, in.LoopVar, v.Kind()))
			}
			if _, more := it.Next(); more {
				it.Advance()
				vm.ip = in.Start + 1
				continue
			}
			it.Reset()
			vm.scope = vm.scope.Parent()
			vm.ip++

		case opcode.OpIf:
			cond, err := object.Deref(in.Var, vm.scope)
			if err != nil {
				return vm.fail(in, err)
			}
			if err := object.Expect(cond, object.KindBool); err != nil {
				return vm.fail(in, err)
			}
			if cond.Value.(*object.Boolean).Value {
				vm.ip++
				continue
			}
			end, err := vm.find(vm.ip+1, func(next opcode.Instruction) bool {
				return next.Op == opcode.OpEndIf
			})
			if err != nil {
				return vm.fail(in, err)
			}
			vm.ip = end + 1

		case opcode.OpEndIf:
			vm.ip++

		default:
			return vm.fail(in, fmt.Errorf("unknown opcode %s", in.Op))
		}
	}

	return nil
}

// binding returns what an assignment stores. An alias keeps pointing at its
// target unless the target is a loop variable, goes away before the name
// does, or already leads back to the name. Those store the current value.
func (vm *VM) binding(v *object.Variable) (*object.Variable, error) {
	ref, ok := v.Value.(*object.Reference)
	if !ok {
		return v, nil
	}
	target, err := object.Follow(v, vm.scope)
	if err != nil {
		return nil, err
	}
	if target.Kind() != object.KindForList && vm.outlives(ref.Target, v.Name) && !vm.reaches(ref.Target, v.Name) {
		return v, nil
	}
	cur, err := object.Deref(target, vm.scope)
	if err != nil {
		return nil, err
	}
	value, err := vm.freeze(cur.Value)
	if err != nil {
		return nil, err
	}
	vm.logger.Debug().Str("name", v.Name).Str("target", ref.Target).Msg("store value of alias")
	return object.Named(v.Name, value), nil
}

// freeze replaces the references inside a concatenation or list with the
// values they point at now.
func (vm *VM) freeze(v object.Value) (object.Value, error) {
	var parts []*object.Variable
	switch p := v.(type) {
	case *object.Concat:
		parts = p.Segments
	case *object.List:
		parts = p.Elements
	default:
		return v, nil
	}

	frozen := make([]*object.Variable, len(parts))
	for i, part := range parts {
		d, err := object.Deref(part, vm.scope)
		if err != nil {
			return nil, err
		}
		value, err := vm.freeze(d.Value)
		if err != nil {
			return nil, err
		}
		frozen[i] = object.Anonymous(value)
	}
	if _, ok := v.(*object.Concat); ok {
		return &object.Concat{Segments: frozen}, nil
	}
	return &object.List{Elements: frozen}, nil
}

func (vm *VM) outlives(target, name string) bool {
	owner := vm.scope.Owner(name)
	if owner == nil {
		owner = vm.scope
	}
	t := vm.scope.Owner(target)
	return t == nil || t.Encloses(owner)
}

// reaches reports whether the reference chain starting at from passes
// through name.
func (vm *VM) reaches(from, name string) bool {
	seen := make(map[string]bool)
	for cur := from; !seen[cur]; {
		if cur == name {
			return true
		}
		seen[cur] = true
		v, err := vm.scope.Resolve(cur)
		if err != nil {
			return false
		}
		ref, ok := v.Value.(*object.Reference)
		if !ok {
			return false
		}
		cur = ref.Target
	}
	return false
}

// iterable follows references from v to the list a loop walks.
func (vm *VM) iterable(v *object.Variable) (*object.List, error) {
	target, err := object.Follow(v, vm.scope)
	if err != nil {
		return nil, err
	}
	list, ok := target.Value.(*object.List)
	if !ok {
		name := target.DisplayName()
		if ref, isRef := v.Value.(*object.Reference); isRef {
			name = ref.Target
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrNotIterable, name, target.Kind())
	}
	return list, nil
}

// find returns the index of the first instruction at or after from that
// matches.
func (vm *VM) find(from int, match func(opcode.Instruction) bool) (int, error) {
	for i := from; i < len(vm.instructions); i++ {
		if match(vm.instructions[i]) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no matching instruction after %d", from-1)
}

func (vm *VM) fail(in opcode.Instruction, err error) error {
	return fmt.Errorf("%04d %s: %w", vm.ip, in.Op, err)
}
