package opcode

import (
	"bytes"
	"dumbo/pkg/object"
	"dumbo/pkg/symbol"
	"fmt"
)

type Opcode byte

const (
	// OpPrint renders its variable and appends it to the output
	OpPrint Opcode = iota
	// OpAssign writes its variable into the binding declared while lowering
	OpAssign
	// OpLoopStart binds the loop variable to a fresh iterable and enters the loop scope
	OpLoopStart
	// OpLoopEnd jumps back to the loop body while elements remain
	OpLoopEnd
	// OpIf skips to the matching OpEndIf when its condition is false
	OpIf
	// OpEndIf marks the end of a guarded block
	OpEndIf
)

type Definition struct {
	Name     string
	Operands []string
}

var definitions = map[Opcode]*Definition{
	OpPrint:     {"OpPrint", []string{"value"}},
	OpAssign:    {"OpAssign", []string{"binding"}},
	OpLoopStart: {"OpLoopStart", []string{"loopvar", "iterable"}},
	OpLoopEnd:   {"OpLoopEnd", []string{"start", "loopvar"}},
	OpIf:        {"OpIf", []string{"condition"}},
	OpEndIf:     {"OpEndIf", []string{}},
}

func Lookup(op Opcode) (*Definition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

func (op Opcode) String() string {
	def, ok := definitions[op]
	if !ok {
		return fmt.Sprintf("Opcode(%d)", op)
	}
	return def.Name
}

// Instruction is one step of a lowered block. Only the fields of its opcode
// are set.
type Instruction struct {
	Op Opcode

	// Var is the printed value, the assigned binding, the loop variable or
	// the condition.
	Var *object.Variable

	// Iterable and Scope belong to OpLoopStart. Scope is the table the loop
	// body was lowered in.
	Iterable *object.Variable
	Scope    *symbol.Table

	// Start and LoopVar belong to OpLoopEnd.
	Start   int
	LoopVar string
}

func Print(v *object.Variable) Instruction {
	return Instruction{Op: OpPrint, Var: v}
}

func Assign(v *object.Variable) Instruction {
	return Instruction{Op: OpAssign, Var: v}
}

func LoopStart(loopVar, iterable *object.Variable, scope *symbol.Table) Instruction {
	return Instruction{Op: OpLoopStart, Var: loopVar, Iterable: iterable, Scope: scope}
}

func LoopEnd(start int, loopVar string) Instruction {
	return Instruction{Op: OpLoopEnd, Start: start, LoopVar: loopVar}
}

func If(condition *object.Variable) Instruction {
	return Instruction{Op: OpIf, Var: condition}
}

func EndIf() Instruction {
	return Instruction{Op: OpEndIf}
}

func (ins Instruction) String() string {
	switch ins.Op {
	case OpPrint, OpAssign, OpIf:
		return fmt.Sprintf("%s %s", ins.Op, ins.Var)
	case OpLoopStart:
		return fmt.Sprintf("%s %s in %s", ins.Op, ins.Var.DisplayName(), ins.Iterable)
	case OpLoopEnd:
		return fmt.Sprintf("%s %d %s", ins.Op, ins.Start, ins.LoopVar)
	default:
		return ins.Op.String()
	}
}

type Instructions []Instruction

func (ins Instructions) String() string {
	var out bytes.Buffer
	for i, in := range ins {
		fmt.Fprintf(&out, "%04d %s\n", i, in)
	}
	return out.String()
}
