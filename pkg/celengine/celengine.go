package celengine

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
)

// BuildCelEnvFromAttributes declares one CEL variable per attribute, typed from its sample value.
func BuildCelEnvFromAttributes(attrs map[string]any) (*cel.Env, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	variables := make([]cel.EnvOption, 0, len(keys))
	for _, key := range keys {
		switch attrs[key].(type) {
		case string:
			variables = append(variables, cel.Variable(key, cel.StringType))
		case int, int32, int64:
			variables = append(variables, cel.Variable(key, cel.IntType))
		case float32, float64:
			variables = append(variables, cel.Variable(key, cel.DoubleType))
		case bool:
			variables = append(variables, cel.Variable(key, cel.BoolType))
		case map[string]any:
			variables = append(variables, cel.Variable(key, cel.MapType(cel.StringType, cel.DynType)))
		case []any:
			variables = append(variables, cel.Variable(key, cel.ListType(cel.DynType)))
		default:
			variables = append(variables, cel.Variable(key, cel.DynType))
		}
	}

	return cel.NewEnv(variables...)
}

// Program is a compiled boolean expression.
type Program struct {
	expr string
	prg  cel.Program
}

// Compile type-checks expr against the sample attributes and requires a bool result.
func Compile(expr string, sample map[string]any) (*Program, error) {
	env, err := BuildCelEnvFromAttributes(sample)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	return &Program{expr: expr, prg: prg}, nil
}

func (p *Program) String() string {
	return p.expr
}

func (p *Program) Evaluate(attrs map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}

	return b, nil
}
