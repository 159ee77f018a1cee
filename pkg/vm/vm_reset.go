package vm

import (
	"dumbo/pkg/compiler"
)

// Reset points the VM at new bytecode and clears the output, avoiding new
// allocations
func (vm *VM) Reset(bytecode *compiler.Bytecode) {
	vm.instructions = bytecode.Instructions
	vm.ip = 0
	vm.scope = bytecode.Scope

	vm.out.Reset()
}
