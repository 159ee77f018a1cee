package engine

import (
	"dumbo/pkg/object"
	"dumbo/pkg/token"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LoadVars seeds the global scope from a YAML mapping. Scalars become
// strings, integers, floats and booleans; sequences become lists.
func (e *Engine) LoadVars(r io.Reader) error {
	var doc map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode vars: %w", err)
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !identRe.MatchString(name) || token.IsKeyword(name) {
			return fmt.Errorf("invalid variable name %q", name)
		}
		value, err := toValue(doc[name])
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		v := object.Named(name, value)
		if !e.root.Define(name, v) {
			if err := e.root.Replace(name, v); err != nil {
				return err
			}
		}
		e.logger.Debug().Stringer("var", v).Msg("seed")
	}
	return nil
}

func (e *Engine) LoadVarsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vars file: %w", err)
	}
	defer f.Close()
	return e.LoadVars(f)
}

func toValue(raw interface{}) (object.Value, error) {
	switch v := raw.(type) {
	case string:
		return &object.String{Value: v}, nil
	case int:
		return &object.Integer{Value: int64(v)}, nil
	case int64:
		return &object.Integer{Value: v}, nil
	case uint64:
		return &object.Integer{Value: int64(v)}, nil
	case float64:
		return &object.Float{Value: v}, nil
	case bool:
		return &object.Boolean{Value: v}, nil
	case []interface{}:
		elements := make([]*object.Variable, 0, len(v))
		for _, item := range v {
			value, err := toValue(item)
			if err != nil {
				return nil, err
			}
			elements = append(elements, object.Anonymous(value))
		}
		return &object.List{Elements: elements}, nil
	}
	return nil, fmt.Errorf("%w: unsupported value %T", object.ErrTypeMismatch, raw)
}
