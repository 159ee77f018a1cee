// Package symbol implements the lexically nested symbol tables used while
// lowering and executing a block.
package symbol

import (
	"dumbo/pkg/object"
	"errors"
	"fmt"
	"sort"
)

var ErrSymbolNotFound = errors.New("symbol not found")

// Table maps names to variables. A table owns its children; the parent link
// is only used for lookups.
type Table struct {
	parent   *Table
	store    map[string]*object.Variable
	children []*Table
}

func New() *Table {
	return &Table{
		store: make(map[string]*object.Variable),
	}
}

func newEnclosed(parent *Table) *Table {
	t := New()
	t.parent = parent
	return t
}

func (t *Table) Parent() *Table { return t.parent }

// Define declares name in this table. It returns false and leaves the table
// unchanged if name is already declared here.
func (t *Table) Define(name string, v *object.Variable) bool {
	if _, ok := t.store[name]; ok {
		return false
	}
	t.store[name] = v
	return true
}

// Resolve walks from t up through its ancestors, nearest declaration wins.
func (t *Table) Resolve(name string) (*object.Variable, error) {
	if owner := t.owner(name); owner != nil {
		return owner.store[name], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
}

func (t *Table) Contains(name string) bool {
	return t.owner(name) != nil
}

// Replace overwrites name in the table that declared it.
func (t *Table) Replace(name string, v *object.Variable) error {
	owner := t.owner(name)
	if owner == nil {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	owner.store[name] = v
	return nil
}

// Owner returns the table that declares name as seen from t, or nil.
func (t *Table) Owner(name string) *Table {
	return t.owner(name)
}

// Encloses reports whether t is other or one of its ancestors.
func (t *Table) Encloses(other *Table) bool {
	for s := other; s != nil; s = s.parent {
		if s == t {
			return true
		}
	}
	return false
}

func (t *Table) owner(name string) *Table {
	for s := t; s != nil; s = s.parent {
		if _, ok := s.store[name]; ok {
			return s
		}
	}
	return nil
}

// OpenChild creates a table enclosed by t and owned by it.
func (t *Table) OpenChild() *Table {
	child := newEnclosed(t)
	t.children = append(t.children, child)
	return child
}

// CloseChild detaches child from t and drops everything it declared.
func (t *Table) CloseChild(child *Table) bool {
	for i, c := range t.children {
		if c != child {
			continue
		}
		t.children = append(t.children[:i], t.children[i+1:]...)
		child.release()
		return true
	}
	return false
}

func (t *Table) release() {
	for _, c := range t.children {
		c.release()
	}
	t.children = nil
	t.store = make(map[string]*object.Variable)
	t.parent = nil
}

func (t *Table) Children() []*Table {
	return t.children
}

// Names returns the names declared directly in t, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.store))
	for name := range t.store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Depth is 0 for a root table.
func (t *Table) Depth() int {
	depth := 0
	for s := t.parent; s != nil; s = s.parent {
		depth++
	}
	return depth
}
