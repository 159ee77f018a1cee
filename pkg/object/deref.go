package object

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolved is returned when a dereference ends on a variable that was
// never given a value.
var ErrUnresolved = errors.New("unresolved variable")

// ErrCycle is returned when a reference chain leads back to itself.
var ErrCycle = errors.New("reference cycle")

// Resolver looks names up. *symbol.Table is the usual implementation.
type Resolver interface {
	Resolve(name string) (*Variable, error)
}

// Follow resolves reference payloads until it reaches a variable that is
// not a reference.
func Follow(v *Variable, r Resolver) (*Variable, error) {
	var seen map[string]bool
	for v.Kind() == KindReference {
		target := v.Value.(*Reference).Target
		if seen[target] {
			return nil, fmt.Errorf("%w: through %s", ErrCycle, target)
		}
		if seen == nil {
			seen = make(map[string]bool)
		}
		seen[target] = true
		next, err := r.Resolve(target)
		if err != nil {
			return nil, err
		}
		v = next
	}
	return v, nil
}

// Deref is Follow that also steps into the current element of a loop
// variable, repeatedly, until a plain value is left.
func Deref(v *Variable, r Resolver) (*Variable, error) {
	v, err := Follow(v, r)
	if err != nil {
		return nil, err
	}
	it, ok := v.Value.(*Iterable)
	if !ok {
		return v, nil
	}
	cur, ok := it.Current()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no current element", ErrUnresolved, v.DisplayName())
	}
	return Deref(cur, r)
}

// Render returns the output text of v: strings raw, numbers in decimal,
// booleans as true/false, lists as (a,b) and concatenations joined by a
// single space.
func Render(v *Variable, r Resolver) (string, error) {
	d, err := Deref(v, r)
	if err != nil {
		return "", err
	}

	switch p := d.Value.(type) {
	case *Concat:
		return renderAll(p.Segments, r, " ")
	case *List:
		s, err := renderAll(p.Elements, r, ",")
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil
	case *Unresolved:
		return "", fmt.Errorf("%w: %s", ErrUnresolved, d.DisplayName())
	case nil:
		return "", fmt.Errorf("%w: %s", ErrUnresolved, d.DisplayName())
	default:
		return p.Inspect(), nil
	}
}

func renderAll(vars []*Variable, r Resolver, sep string) (string, error) {
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		s, err := Render(v, r)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}
