package object

import (
	"fmt"
	"strings"
)

// Iterable is the payload of a loop variable: the list being walked and a
// cursor on the current element.
type Iterable struct {
	Elements []*Variable
	cursor   int
}

func NewIterable(elements []*Variable) *Iterable {
	return &Iterable{Elements: elements}
}

func (it *Iterable) Kind() Kind { return KindForList }
func (it *Iterable) Inspect() string {
	parts := make([]string, 0, len(it.Elements))
	for _, e := range it.Elements {
		parts = append(parts, e.Value.Inspect())
	}
	return fmt.Sprintf("(%s)@%d", strings.Join(parts, ","), it.cursor)
}
func (it *Iterable) value() {}

func (it *Iterable) Cursor() int { return it.cursor }

func (it *Iterable) Len() int { return len(it.Elements) }

// Current returns the element under the cursor.
func (it *Iterable) Current() (*Variable, bool) {
	if it.cursor < 0 || it.cursor >= len(it.Elements) {
		return nil, false
	}
	return it.Elements[it.cursor], true
}

// Next returns the element after the cursor. The second result is false at
// the end of the list. Next does not move the cursor.
func (it *Iterable) Next() (*Variable, bool) {
	if it.cursor+1 >= len(it.Elements) {
		return nil, false
	}
	return it.Elements[it.cursor+1], true
}

func (it *Iterable) Advance() { it.cursor++ }

func (it *Iterable) Reset() { it.cursor = 0 }

// Clone returns an iterable over the same elements with its own cursor at 0.
func (it *Iterable) Clone() *Iterable {
	return NewIterable(it.Elements)
}
