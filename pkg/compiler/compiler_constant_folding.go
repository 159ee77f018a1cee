package compiler

import (
	"dumbo/pkg/ast"
	"dumbo/pkg/object"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// fold evaluates an expression while lowering. The result is either a
// named variable found in scope, an anonymous value, or an unresolved
// placeholder for a name nothing declared yet.
func (c *Compiler) fold(node ast.Expression) (*object.Variable, error) {
	switch node := node.(type) {
	case *ast.BoolExpression:
		if len(node.Right) == 0 {
			return c.fold(node.Left)
		}
		operands := []ast.Expression{node.Left}
		for _, r := range node.Right {
			operands = append(operands, r)
		}
		return c.foldLogic("or", node.Pos, operands)

	case *ast.Conjunction:
		if len(node.Right) == 0 {
			return c.fold(node.Left)
		}
		operands := []ast.Expression{node.Left}
		for _, r := range node.Right {
			operands = append(operands, r)
		}
		return c.foldLogic("and", node.Pos, operands)

	case *ast.Comparison:
		left, err := c.fold(node.Left)
		if err != nil || node.Right == nil {
			return left, err
		}
		right, err := c.fold(node.Right)
		if err != nil {
			return nil, err
		}
		return c.compare(node.Operator, node.Pos, left, right)

	case *ast.StringExpression:
		if len(node.Segments) == 1 {
			return c.fold(node.Segments[0])
		}
		return c.foldConcat(node)

	case *ast.Arithmetic:
		acc, err := c.fold(node.Left)
		if err != nil {
			return nil, err
		}
		for _, r := range node.Right {
			right, err := c.fold(r.Term)
			if err != nil {
				return nil, err
			}
			if acc, err = c.arithmetic(r.Operator, r.Pos, acc, right); err != nil {
				return nil, err
			}
		}
		return acc, nil

	case *ast.Term:
		acc, err := c.fold(node.Left)
		if err != nil {
			return nil, err
		}
		for _, r := range node.Right {
			right, err := c.fold(r.Factor)
			if err != nil {
				return nil, err
			}
			if acc, err = c.arithmetic(r.Operator, r.Pos, acc, right); err != nil {
				return nil, err
			}
		}
		return acc, nil

	case *ast.Unary:
		v, err := c.fold(node.Operand)
		if err != nil || !node.Negate {
			return v, err
		}
		return c.negate(node.Pos, v)

	case *ast.Primary:
		return c.foldPrimary(node)

	case *ast.Group:
		if !node.IsList() {
			return c.fold(node.Items[0])
		}
		elements := make([]*object.Variable, 0, len(node.Items))
		for _, item := range node.Items {
			v, err := c.fold(item)
			if err != nil {
				return nil, err
			}
			if err := c.use(v, item.Pos); err != nil {
				return nil, err
			}
			elements = append(elements, c.alias(v))
		}
		list := object.Anonymous(&object.List{Elements: elements})
		c.traceFold("list", node.Pos, list)
		return list, nil
	}

	return nil, fmt.Errorf("cannot fold %T", node)
}

func (c *Compiler) foldPrimary(node *ast.Primary) (*object.Variable, error) {
	var v *object.Variable
	switch {
	case node.Int != nil:
		v = object.NewInteger(*node.Int)
	case node.Str != nil:
		v = object.NewString(string(*node.Str))
	case node.Bool != nil:
		v = object.NewBoolean(bool(*node.Bool))
	case node.Variable != nil:
		v = c.lookup(*node.Variable)
	case node.Group != nil:
		return c.fold(node.Group)
	default:
		return nil, fmt.Errorf("%s: empty expression", at(node.Pos))
	}
	c.traceFold("", node.Pos, v)
	return v, nil
}

// foldLogic folds every operand before combining them. There is no short
// circuit: a false left side of "and" still folds the right side.
func (c *Compiler) foldLogic(op string, pos lexer.Position, operands []ast.Expression) (*object.Variable, error) {
	values := make([]bool, 0, len(operands))
	for _, operand := range operands {
		v, err := c.fold(operand)
		if err != nil {
			return nil, err
		}
		b, err := c.boolean(v, operand.Position())
		if err != nil {
			return nil, err
		}
		values = append(values, b)
	}

	result := values[0]
	for _, b := range values[1:] {
		if op == "and" {
			result = result && b
		} else {
			result = result || b
		}
	}

	v := object.NewBoolean(result)
	c.traceFold(op, pos, v)
	return v, nil
}

func (c *Compiler) boolean(v *object.Variable, pos lexer.Position) (bool, error) {
	d, err := c.value(v, pos)
	if err != nil {
		return false, err
	}
	if err := object.Expect(d, object.KindBool); err != nil {
		return false, fmt.Errorf("%s: %w", at(pos), err)
	}
	return d.Value.(*object.Boolean).Value, nil
}

func (c *Compiler) foldConcat(node *ast.StringExpression) (*object.Variable, error) {
	var segments []*object.Variable
	for _, s := range node.Segments {
		v, err := c.fold(s)
		if err != nil {
			return nil, err
		}
		if err := c.use(v, s.Pos); err != nil {
			return nil, err
		}
		if concat, ok := v.Value.(*object.Concat); ok && v.IsAnonymous() {
			segments = append(segments, concat.Segments...)
			continue
		}
		segments = append(segments, c.alias(v))
	}

	v := object.Anonymous(&object.Concat{Segments: segments})
	c.traceFold(".", node.Pos, v)
	return v, nil
}

// value returns the plain value behind v for an operator to consume.
func (c *Compiler) value(v *object.Variable, pos lexer.Position) (*object.Variable, error) {
	if err := c.use(v, pos); err != nil {
		return nil, err
	}
	f, err := c.follow(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", at(pos), err)
	}
	if f.Kind() == object.KindForList {
		return nil, fmt.Errorf("%s: %w: loop variable %s has no value while lowering",
			at(pos), object.ErrTypeMismatch, f.Name)
	}
	if err := c.use(f, pos); err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Compiler) arithmetic(op string, pos lexer.Position, left, right *object.Variable) (*object.Variable, error) {
	l, err := c.value(left, pos)
	if err != nil {
		return nil, err
	}
	r, err := c.value(right, pos)
	if err != nil {
		return nil, err
	}
	if !l.Kind().Numeric() || !r.Kind().Numeric() {
		return nil, fmt.Errorf("%s: %w: %s %s %s", at(pos), object.ErrTypeMismatch, l.Kind(), op, r.Kind())
	}

	var result *object.Variable
	li, lInt := l.Value.(*object.Integer)
	ri, rInt := r.Value.(*object.Integer)
	if lInt && rInt {
		var n int64
		switch op {
		case "+":
			n = li.Value + ri.Value
		case "-":
			n = li.Value - ri.Value
		case "*":
			n = li.Value * ri.Value
		case "/":
			if ri.Value == 0 {
				return nil, fmt.Errorf("%s: %w", at(pos), ErrDivisionByZero)
			}
			n = li.Value / ri.Value
		default:
			return nil, fmt.Errorf("%s: unknown operator %s", at(pos), op)
		}
		result = object.NewInteger(n)
	} else {
		lf, rf := toFloat(l), toFloat(r)
		var n float64
		switch op {
		case "+":
			n = lf + rf
		case "-":
			n = lf - rf
		case "*":
			n = lf * rf
		case "/":
			if rf == 0 {
				return nil, fmt.Errorf("%s: %w", at(pos), ErrDivisionByZero)
			}
			n = lf / rf
		default:
			return nil, fmt.Errorf("%s: unknown operator %s", at(pos), op)
		}
		result = object.NewFloat(n)
	}

	c.traceFold(op, pos, result)
	return result, nil
}

func (c *Compiler) negate(pos lexer.Position, v *object.Variable) (*object.Variable, error) {
	d, err := c.value(v, pos)
	if err != nil {
		return nil, err
	}

	var result *object.Variable
	switch n := d.Value.(type) {
	case *object.Integer:
		result = object.NewInteger(-n.Value)
	case *object.Float:
		result = object.NewFloat(-n.Value)
	default:
		return nil, fmt.Errorf("%s: %w: -%s", at(pos), object.ErrTypeMismatch, d.Kind())
	}
	c.traceFold("neg", pos, result)
	return result, nil
}

func (c *Compiler) compare(op string, pos lexer.Position, left, right *object.Variable) (*object.Variable, error) {
	l, err := c.value(left, pos)
	if err != nil {
		return nil, err
	}
	r, err := c.value(right, pos)
	if err != nil {
		return nil, err
	}

	var cmp int
	switch {
	case l.Kind().Numeric() && r.Kind().Numeric():
		cmp = compareNumbers(l, r)
	case isText(l) && isText(r):
		ls, err := object.Render(l, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at(pos), err)
		}
		rs, err := object.Render(r, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at(pos), err)
		}
		cmp = strings.Compare(ls, rs)
	case l.Kind() == object.KindBool && r.Kind() == object.KindBool:
		if op != "=" && op != "!=" {
			return nil, fmt.Errorf("%s: %w: booleans only compare with = and !=", at(pos), object.ErrTypeMismatch)
		}
		if l.Value.(*object.Boolean).Value != r.Value.(*object.Boolean).Value {
			cmp = 1
		}
	default:
		return nil, fmt.Errorf("%s: %w: %s %s %s", at(pos), object.ErrTypeMismatch, l.Kind(), op, r.Kind())
	}

	var result bool
	switch op {
	case "<":
		result = cmp < 0
	case ">":
		result = cmp > 0
	case "<=":
		result = cmp <= 0
	case ">=":
		result = cmp >= 0
	case "=":
		result = cmp == 0
	case "!=":
		result = cmp != 0
	default:
		return nil, fmt.Errorf("%s: unknown operator %s", at(pos), op)
	}

	v := object.NewBoolean(result)
	c.traceFold(op, pos, v)
	return v, nil
}

func compareNumbers(l, r *object.Variable) int {
	li, lInt := l.Value.(*object.Integer)
	ri, rInt := r.Value.(*object.Integer)
	if lInt && rInt {
		switch {
		case li.Value < ri.Value:
			return -1
		case li.Value > ri.Value:
			return 1
		}
		return 0
	}
	lf, rf := toFloat(l), toFloat(r)
	switch {
	case lf < rf:
		return -1
	case lf > rf:
		return 1
	}
	return 0
}

func toFloat(v *object.Variable) float64 {
	switch n := v.Value.(type) {
	case *object.Integer:
		return float64(n.Value)
	case *object.Float:
		return n.Value
	}
	return 0
}

func isText(v *object.Variable) bool {
	return v.Kind() == object.KindString || v.Kind() == object.KindStringConcat
}

func (c *Compiler) traceFold(op string, pos lexer.Position, v *object.Variable) {
	e := c.logger.Debug().Str("pos", at(pos)).Stringer("result", v)
	if op != "" {
		e = e.Str("op", op)
	}
	e.Msg("fold")
}
