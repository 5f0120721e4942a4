package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

const (
	// maxExpressionLength bounds document-declared predicate source.
	maxExpressionLength = 2048

	// maxCostBudget is the CEL runtime cost limit per evaluation.
	maxCostBudget = 100_000

	// interruptCheckFreq is how often comprehensions check for cancellation.
	interruptCheckFreq = 100
)

// NewCELEnvironment creates the environment in which document predicates
// are compiled. Variables: text, stage, tool_name, session_id, locale,
// arguments, output, metadata, fields (the three structured roots) and args.
func NewCELEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("text", cel.StringType),
		cel.Variable("stage", cel.StringType),
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("locale", cel.StringType),
		cel.Variable("arguments", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("output", cel.DynType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),

		// contains_phrase: keyword semantics (case and whitespace insensitive).
		cel.Function("contains_phrase",
			cel.Overload("contains_phrase_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(text, phrase ref.Val) ref.Val {
					re, err := phraseRegexp(phrase.Value().(string))
					if err != nil {
						return types.NewErr("contains_phrase: %v", err)
					}
					return types.Bool(re.MatchString(Fold(text.Value().(string))))
				}),
			),
		),
	)
}

// CompileCEL compiles a boolean CEL expression into a Predicate.
func CompileCEL(env *cel.Env, expr string) (Predicate, error) {
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	checked, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if out := checked.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}

	prg, err := env.Program(checked,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return func(ctx context.Context, in *Input, args map[string]any) (bool, string, error) {
		result, _, err := prg.ContextEval(ctx, activation(in, args))
		if err != nil {
			return false, "", fmt.Errorf("evaluation failed: %w", err)
		}
		matched, ok := result.Value().(bool)
		if !ok {
			return false, "", fmt.Errorf("expression did not return a boolean, got %T", result.Value())
		}
		return matched, "", nil
	}, nil
}

func activation(in *Input, args map[string]any) map[string]any {
	arguments := orEmpty(in.Arguments)
	metadata := orEmpty(in.Metadata)
	var output any = map[string]any{}
	if in.Output != nil {
		output = in.Output
	}

	return map[string]any{
		"text":       in.Normalized,
		"stage":      string(in.Stage),
		"tool_name":  in.ToolName,
		"session_id": in.SessionID,
		"locale":     in.locale(""),
		"arguments":  arguments,
		"output":     output,
		"metadata":   metadata,
		"fields": map[string]any{
			"arguments": arguments,
			"output":    output,
			"metadata":  metadata,
		},
		"args": orEmpty(args),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
