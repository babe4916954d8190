// Package tools provides the local tools used by the tutorial agents.
package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/elizabethfuentes12/bedrock-agentcore-samples/internal/agent"
)

var mathEnv = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"sqrt":  math.Sqrt,
	"pow":   math.Pow,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"log10": math.Log10,
	"exp":   math.Exp,
}

// Calculate evaluates a math expression such as "sqrt(16) + 2 ** 3".
func Calculate(expression string) (string, error) {
	program, err := expr.Compile(expression, expr.Env(mathEnv))
	if err != nil {
		return "", fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	out, err := expr.Run(program, mathEnv)
	if err != nil {
		return "", fmt.Errorf("evaluating %q: %w", expression, err)
	}

	switch v := out.(type) {
	case int:
		return strconv.Itoa(v), nil
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", fmt.Errorf("evaluating %q: result is not a finite number", expression)
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("evaluating %q: unsupported result type %T", expression, out)
	}
}

// Calculator is the calculator tool.
func Calculator() agent.Tool {
	return agent.NewTool(
		"calculator",
		"Evaluate a mathematical expression. Supports + - * / % ** and sqrt, pow, sin, cos, tan, log, log10, exp, abs, floor, ceil, round, pi, e.",
		agent.ObjectSchema([]string{"expression"}, map[string]string{
			"expression": "The expression to evaluate, for example \"sqrt(16) * 3\"",
		}),
		func(_ context.Context, input map[string]any) ([]agent.ContentBlock, error) {
			expression, err := agent.StringArg(input, "expression")
			if err != nil {
				return nil, err
			}
			result, err := Calculate(expression)
			if err != nil {
				return nil, err
			}
			return []agent.ContentBlock{agent.TextBlock("Result: " + result)}, nil
		},
	)
}
