package compiler

import (
	"dumbo/pkg/symbol"
	"sync"

	"github.com/rs/zerolog/log"
)

// Compiler pool for reusing compilers across the blocks of a template
var compilerPool = sync.Pool{
	New: func() interface{} {
		return New(nil)
	},
}

// GetCompiler retrieves a compiler from the pool, bound to scope
func GetCompiler(scope *symbol.Table, opts ...Option) *Compiler {
	c := compilerPool.Get().(*Compiler)
	c.reset(scope)
	c.logger = log.Logger
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PutCompiler returns a compiler to the pool after use. Bytecode taken
// from it before stays valid.
func PutCompiler(c *Compiler) {
	c.reset(nil)
	compilerPool.Put(c)
}
