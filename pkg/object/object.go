// Package object holds the variable model shared by the compiler and the VM.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AnonymousName is how an anonymous variable renders its name.
const AnonymousName = "__ANON__"

// ErrTypeMismatch is returned when an operation meets a variable of the wrong kind.
var ErrTypeMismatch = errors.New("type mismatch")

// Value is the payload of a variable. The set of implementations is closed:
// only the types of this package satisfy it.
type Value interface {
	Kind() Kind
	Inspect() string
	value()
}

type Integer struct {
	Value int64
}

func (i *Integer) Kind() Kind      { return KindInt }
func (i *Integer) Inspect() string { return strconv.FormatInt(i.Value, 10) }
func (i *Integer) value()          {}

type Float struct {
	Value float64
}

func (f *Float) Kind() Kind      { return KindFloat }
func (f *Float) Inspect() string { return strconv.FormatFloat(f.Value, 'g', -1, 64) }
func (f *Float) value()          {}

type String struct {
	Value string
}

func (s *String) Kind() Kind      { return KindString }
func (s *String) Inspect() string { return s.Value }
func (s *String) value()          {}

type Boolean struct {
	Value bool
}

func (b *Boolean) Kind() Kind      { return KindBool }
func (b *Boolean) Inspect() string { return strconv.FormatBool(b.Value) }
func (b *Boolean) value()          {}

// Concat is an ordered list of string segments, rendered space separated.
type Concat struct {
	Segments []*Variable
}

func (c *Concat) Kind() Kind { return KindStringConcat }
func (c *Concat) Inspect() string {
	parts := make([]string, 0, len(c.Segments))
	for _, s := range c.Segments {
		parts = append(parts, s.String())
	}
	return "[" + strings.Join(parts, " . ") + "]"
}
func (c *Concat) value() {}

type List struct {
	Elements []*Variable
}

func (l *List) Kind() Kind { return KindList }
func (l *List) Inspect() string {
	parts := make([]string, 0, len(l.Elements))
	for _, e := range l.Elements {
		parts = append(parts, e.Value.Inspect())
	}
	return "(" + strings.Join(parts, ",") + ")"
}
func (l *List) value() {}

// Reference names another variable. It is resolved through a symbol table
// every time it is read.
type Reference struct {
	Target string
}

func (r *Reference) Kind() Kind      { return KindReference }
func (r *Reference) Inspect() string { return "&" + r.Target }
func (r *Reference) value()          {}

// Unresolved marks a name that was looked up before anything declared it.
type Unresolved struct{}

func (u *Unresolved) Kind() Kind      { return KindUnresolved }
func (u *Unresolved) Inspect() string { return "<unresolved>" }
func (u *Unresolved) value()          {}

// Variable binds an optional name to a value. A variable without a name is
// anonymous: it only lives while an expression is being folded.
type Variable struct {
	Name  string
	Value Value
}

func Named(name string, v Value) *Variable {
	return &Variable{Name: name, Value: v}
}

func Anonymous(v Value) *Variable {
	return &Variable{Value: v}
}

// Undefined returns the placeholder produced by looking up an unknown name.
func Undefined(name string) *Variable {
	return &Variable{Name: name, Value: &Unresolved{}}
}

// Ref returns an anonymous reference to name.
func Ref(name string) *Variable {
	return Anonymous(&Reference{Target: name})
}

func (v *Variable) IsAnonymous() bool { return v.Name == "" }

func (v *Variable) Kind() Kind {
	if v == nil || v.Value == nil {
		return KindUnresolved
	}
	return v.Value.Kind()
}

// DisplayName returns the variable name or the anonymous sentinel.
func (v *Variable) DisplayName() string {
	if v.IsAnonymous() {
		return AnonymousName
	}
	return v.Name
}

func (v *Variable) String() string {
	var out bytes.Buffer
	out.WriteString(v.DisplayName())
	out.WriteString(":")
	out.WriteString(v.Kind().String())
	if v.Value != nil {
		out.WriteString("=")
		out.WriteString(v.Value.Inspect())
	}
	return out.String()
}

// Expect returns an error wrapping ErrTypeMismatch unless v has the given kind.
func Expect(v *Variable, kind Kind) error {
	if v.Kind() != kind {
		return fmt.Errorf("%w: %s is %s, want %s", ErrTypeMismatch, v.DisplayName(), v.Kind(), kind)
	}
	return nil
}

func NewInteger(value int64) *Variable { return Anonymous(&Integer{Value: value}) }

func NewFloat(value float64) *Variable { return Anonymous(&Float{Value: value}) }

func NewString(value string) *Variable { return Anonymous(&String{Value: value}) }

func NewBoolean(value bool) *Variable { return Anonymous(&Boolean{Value: value}) }
